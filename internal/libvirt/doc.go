// Package libvirt wraps github.com/digitalocean/go-libvirt with
// connection management and domain XML generation for run guests.
//
// Connecting:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// GenerateDomainXML turns a BuildRun's VM spec into the domain
// definition passed to DomainDefineXML.
//
// The package deliberately defines no interfaces of its own. Consumers
// (internal/vm, internal/storage, internal/metadata) each declare a
// LibvirtClient interface listing only the calls they make, and
// *libvirt.Libvirt (reachable via Client.Libvirt()) satisfies all of
// them. That keeps test fakes small and scoped to one package.
package libvirt
