package storage

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
)

// qemuConfPath is the libvirt daemon config that names the account qemu
// processes run as. Volumes must be owned by that account or the guest
// cannot open its own disks.
const qemuConfPath = "/etc/libvirt/qemu.conf"

// fallbackQEMUID is the Fedora/RHEL packaging default for the qemu user
// and group, used when no qemu account can be resolved on this host.
const fallbackQEMUID = "107"

type qemuIdentity struct {
	uid string
	gid string
	err error
}

var resolveQEMUOnce = sync.OnceValue(resolveQEMUIdentity)

// GetQEMUUserGroup returns the UID and GID the qemu processes run as.
//
// Resolution order: the account configured in qemu.conf, then the common
// distro account names, then the hardcoded fallback. The non-nil error on
// the fallback path is advisory; the returned IDs are still usable.
func GetQEMUUserGroup() (uid, gid string, err error) {
	id := resolveQEMUOnce()
	return id.uid, id.gid, id.err
}

func resolveQEMUIdentity() qemuIdentity {
	confUser, confGroup := parseQEMUConf(qemuConfPath)

	if confUser != "" {
		if u, err := user.Lookup(confUser); err == nil {
			gid := u.Gid
			if confGroup != "" {
				if g, err := user.LookupGroup(confGroup); err == nil {
					gid = g.Gid
				}
			}
			return qemuIdentity{uid: u.Uid, gid: gid}
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := user.Lookup(name); err == nil {
			return qemuIdentity{uid: u.Uid, gid: u.Gid}
		}
	}

	return qemuIdentity{
		uid: fallbackQEMUID,
		gid: fallbackQEMUID,
		err: fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %s", fallbackQEMUID),
	}
}

// parseQEMUConf extracts the user and group settings from a qemu.conf
// file. Missing file or settings yield empty strings.
func parseQEMUConf(path string) (username, groupname string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ""
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
