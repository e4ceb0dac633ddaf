package op

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/pkg/failure"
)

func MkfsVfat(device, label string) Operation {
	args := []string{"mkfs.vfat", "-F32"}
	if label != "" {
		args = append(args, "-n", label)
	}
	return newOp("Creating EFI filesystem", append(args, device)...)
}

func MkfsBtrfs(device, label string) Operation {
	return newOp("Creating BTRFS filesystem", "mkfs.btrfs", "-f", "-L", label, device)
}

// SubvolumeCreate creates subvolume s at the top level of the volume mounted at mountRoot.
func SubvolumeCreate(mountRoot string, s Subvolume) Operation {
	return newOp(fmt.Sprintf("Creating BTRFS subvolume %s", s.Name), "btrfs", "subvolume", "create", filepath.Join(mountRoot, s.Name))
}

// Subvolume is a normalized subvolume: Name is the btrfs identifier, Path where it is mounted
// relative to the target root.
type Subvolume struct {
	Name string
	Path string
}

func (s Subvolume) IsRoot() bool {
	return s.Name == constants.RootSubvolume
}

// MountPath is where the subvolume goes on the host.
func (s Subvolume) MountPath(mountRoot string) string {
	if s.IsRoot() {
		return mountRoot
	}
	return filepath.Join(mountRoot, s.Path)
}

// Depth is the number of path elements, 0 for the root subvolume.
func (s Subvolume) Depth() int {
	if s.IsRoot() {
		return 0
	}
	return len(strings.Split(strings.Trim(s.Path, "/"), "/"))
}

// NormalizeSubvolume turns a configured path ("/", "/var/tmp", "@home", "var/") into a Subvolume.
// It never fails, "/var/tmp" gives "@var-tmp" mounted at /var/tmp.
func NormalizeSubvolume(raw string) Subvolume {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "/")
	s = strings.TrimLeft(s, "@")
	clean := strings.Trim(path.Clean("/"+s), "/")
	if clean == "" {
		return Subvolume{Name: constants.RootSubvolume, Path: "/"}
	}
	return Subvolume{
		Name: constants.RootSubvolume + strings.ReplaceAll(clean, "/", "-"),
		Path: "/" + clean,
	}
}

// SubvolumeSet normalizes raw in config order, root first and without duplicates.
// Two different paths ending up with the same name is a configuration error.
func SubvolumeSet(raw []string) ([]Subvolume, error) {
	set := []Subvolume{{Name: constants.RootSubvolume, Path: "/"}}
	byName := map[string]Subvolume{constants.RootSubvolume: set[0]}
	for _, r := range raw {
		s := NormalizeSubvolume(r)
		if existing, ok := byName[s.Name]; ok {
			if existing.Path != s.Path {
				return nil, failure.Configurationf("subvolumes %s and %s both map to %s", existing.Path, s.Path, s.Name)
			}
			continue
		}
		byName[s.Name] = s
		set = append(set, s)
	}
	return set, nil
}

// MountOrder returns the non root subvolumes with less depth first and in alphabetical order,
// so parents are mounted before their children.
func MountOrder(set []Subvolume) []Subvolume {
	var res []Subvolume
	for _, s := range set {
		if !s.IsRoot() {
			res = append(res, s)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Depth() == res[j].Depth() {
			return res[i].Path < res[j].Path
		}
		return res[i].Depth() < res[j].Depth()
	})
	return res
}
