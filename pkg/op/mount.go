package op

import (
	"fmt"
	"strings"

	"github.com/kairos-io/cryptroot/internal/constants"
)

// Mount mounts what on where with the given comma separated options.
func Mount(description, what, where, options string) Operation {
	args := []string{"mount"}
	if options != "" {
		args = append(args, "-o", options)
	}
	return newOp(description, append(args, what, where)...)
}

// MountRaw mounts the top level of the btrfs volume, needed to create subvolumes.
func MountRaw(device, mountRoot string) Operation {
	return Mount("Mounting BTRFS volume for subvolume creation", device, mountRoot, "")
}

func MountSubvolume(device, mountRoot, options string, s Subvolume) Operation {
	description := fmt.Sprintf("Mounting subvolume %s", s.Name)
	if s.IsRoot() {
		description = "Remounting BTRFS root subvolume"
	}
	return Mount(description, device, s.MountPath(mountRoot), JoinOptions(options, "subvol="+s.Name))
}

func MountEFI(device, where string) Operation {
	return Mount("Mounting EFI partition", device, where, constants.EFIMountOptions)
}

func Umount(description, where string) Operation {
	return newOp(description, "umount", where)
}

// UmountRecursive unmounts where and everything below it.
func UmountRecursive(where string) Operation {
	return newOp(fmt.Sprintf("Unmounting all filesystems under %s", where), "umount", "-R", where)
}

func Mkdir(description, dir string) Operation {
	return newOp(description, "mkdir", "-p", dir)
}

// JoinOptions joins mount option lists skipping the empty ones.
func JoinOptions(opts ...string) string {
	var res []string
	for _, o := range opts {
		o = strings.Trim(strings.TrimSpace(o), ",")
		if o != "" {
			res = append(res, o)
		}
	}
	return strings.Join(res, ",")
}
