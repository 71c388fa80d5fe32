// Package metadata persists BuildRun records in libvirt's custom domain
// metadata. The record travels with the guest domain, so there is no
// state to keep anywhere else; crucible can be pointed at a host and
// reconstruct every run from the domains alone.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/crucible/api/v1alpha1"
)

const (
	// MetadataNamespace is the XML namespace for crucible metadata.
	MetadataNamespace = "http://crucible.cofront.xyz/v1alpha1"

	// MetadataKey is the element key the record is stored under.
	MetadataKey = "crucible-build-run"
)

// LibvirtClient is the subset of libvirt operations this package needs.
// *libvirt.Libvirt satisfies it implicitly.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// CrucibleMetadata is the XML envelope around the stored record. The
// BuildRun itself is kept as YAML text so `virsh dumpxml` stays readable.
type CrucibleMetadata struct {
	XMLName xml.Name `xml:"metadata"`
	Xmlns   string   `xml:"xmlns,attr"`
	RunYAML string   `xml:",innerxml"`
}

// Store writes the full BuildRun (TypeMeta, ObjectMeta, Spec, Status)
// into the domain's metadata, replacing any existing record.
func Store(l LibvirtClient, domain libvirt.Domain, run *v1alpha1.BuildRun) error {
	yamlData, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run to YAML: %w", err)
	}

	xmlData, err := xml.MarshalIndent(CrucibleMetadata{
		Xmlns:   MetadataNamespace,
		RunYAML: string(yamlData),
	}, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load reads the BuildRun record back out of a domain.
func Load(l LibvirtClient, domain libvirt.Domain) (*v1alpha1.BuildRun, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var metadata CrucibleMetadata
	if err := xml.Unmarshal([]byte(xmlStr), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var run v1alpha1.BuildRun
	if err := yaml.Unmarshal([]byte(metadata.RunYAML), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run from YAML: %w", err)
	}

	return &run, nil
}

// Update rewrites the stored record after a status change, bumping the
// generation so readers can tell the record moved.
func Update(l LibvirtClient, domain libvirt.Domain, run *v1alpha1.BuildRun) error {
	run.Generation++
	return Store(l, domain, run)
}

// Delete removes the crucible record from a domain. Called during
// environment teardown.
func Delete(l LibvirtClient, domain libvirt.Domain) error {
	// An empty metadata string with the remove flag clears the element.
	err := l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{""},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(1),
	)
	if err != nil {
		return fmt.Errorf("failed to delete libvirt domain metadata: %w", err)
	}

	return nil
}

// Exists reports whether a domain carries a crucible record.
func Exists(l LibvirtClient, domain libvirt.Domain) bool {
	_, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	return err == nil
}
