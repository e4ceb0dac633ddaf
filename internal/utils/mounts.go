package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/moby/sys/mountinfo"
)

// PartitionDevice returns the device node for partition n of disk.
// Kernels add a "p" separator when the disk name ends in a digit (nvme0n1p2, mmcblk0p1, loop0p1).
func PartitionDevice(disk string, n int) string {
	disk = strings.TrimRight(disk, "/")
	if disk != "" && unicode.IsDigit(rune(disk[len(disk)-1])) {
		return fmt.Sprintf("%sp%d", disk, n)
	}
	return fmt.Sprintf("%s%d", disk, n)
}

// DiskMounts returns the mounts whose source is disk or one of its partitions.
func DiskMounts(disk string, infos []*mountinfo.Info) []*mountinfo.Info {
	var res []*mountinfo.Info
	for _, i := range infos {
		if i.Source == disk || strings.HasPrefix(i.Source, disk) && isPartitionSuffix(strings.TrimPrefix(i.Source, disk)) {
			res = append(res, i)
		}
	}
	return res
}

func isPartitionSuffix(s string) bool {
	s = strings.TrimPrefix(s, "p")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// MountsUnder returns the mounts at root or below it.
func MountsUnder(root string, infos []*mountinfo.Info) []*mountinfo.Info {
	root = filepath.Clean(root)
	var res []*mountinfo.Info
	for _, i := range infos {
		if i.Mountpoint == root || strings.HasPrefix(i.Mountpoint, root+"/") {
			res = append(res, i)
		}
	}
	return res
}

// GetMounts lists the host mounts.
func GetMounts() ([]*mountinfo.Info, error) {
	return mountinfo.GetMounts(nil)
}
