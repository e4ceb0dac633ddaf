package schema

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/internal/utils"
	"github.com/kairos-io/cryptroot/pkg/failure"
)

// SetDefaults fills in what the installer config may leave out.
func (d *DiskPlan) SetDefaults() {
	if d.TableKind == "" {
		d.TableKind = GPT
	}
	d.TableKind = TableKind(strings.ToUpper(string(d.TableKind)))
	for i := range d.Partitions {
		p := &d.Partitions[i]
		if p.Start == "" {
			p.Start = "0"
		}
		p.Filesystem = Filesystem(strings.ToLower(string(p.Filesystem)))
		if p.Encrypted && p.CryptKind == "" {
			p.CryptKind = constants.DefaultCryptKind
		}
		p.CryptKind = CryptKind(strings.ToLower(string(p.CryptKind)))
		p.BtrfsSubvolumes = utils.CleanupSlice(p.BtrfsSubvolumes)
	}
}

// Validate checks the plan and locates the EFI and root partitions.
// Every violation found is reported, wrapped in a single configuration error.
func (d *DiskPlan) Validate() (*Layout, error) {
	errs := &multierror.Error{ErrorFormat: listFormat}

	if strings.TrimSpace(d.Path) == "" {
		errs = multierror.Append(errs, fmt.Errorf("disk path is empty"))
	}
	if d.TableKind != "" && d.TableKind != GPT && d.TableKind != MBR {
		errs = multierror.Append(errs, fmt.Errorf("unknown partition table type %q", d.TableKind))
	}
	if len(d.Partitions) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no partitions defined for %s", d.Path))
	}
	if d.TableKind == MBR && len(d.Partitions) > 4 {
		errs = multierror.Append(errs, fmt.Errorf("MBR supports at most 4 primary partitions, got %d", len(d.Partitions)))
	}

	var efi, root []int
	seen := map[int]bool{}
	for i, p := range d.Partitions {
		if p.Number < 1 {
			errs = multierror.Append(errs, fmt.Errorf("partition %q: number must be positive, got %d", p.Label, p.Number))
		} else if seen[p.Number] {
			errs = multierror.Append(errs, fmt.Errorf("partition number %d used more than once", p.Number))
		}
		seen[p.Number] = true

		if strings.TrimSpace(p.Size) == "" {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: size is empty", p.Number))
		}
		if !p.Filesystem.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: unsupported filesystem %q", p.Number, p.Filesystem))
		}
		if p.MountPath != "" && !filepath.IsAbs(p.MountPath) {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: mount path %q is not absolute", p.Number, p.MountPath))
		}
		if p.Filesystem.IsFAT() {
			efi = append(efi, i)
		}
		if !p.Encrypted {
			continue
		}
		if p.CryptKind != "" && p.CryptKind != LUKS1 && p.CryptKind != LUKS2 {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: unsupported encryption type %q", p.Number, p.CryptKind))
		}
		if strings.ContainsAny(p.CryptMapperName, "/ ") {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: invalid mapper name %q", p.Number, p.CryptMapperName))
		}
		if !p.IsRoot() {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: only the btrfs root partition can be encrypted", p.Number))
			continue
		}
		root = append(root, i)
		if len(p.BtrfsSubvolumes) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: encrypted btrfs root needs at least one subvolume", p.Number))
		}
		for _, s := range p.BtrfsSubvolumes {
			if strings.TrimSpace(s) == "" {
				errs = multierror.Append(errs, fmt.Errorf("partition %d: empty subvolume path", p.Number))
			}
		}
	}

	switch len(efi) {
	case 0:
		errs = multierror.Append(errs, fmt.Errorf("no fat32/vfat EFI partition defined"))
	case 1:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%d fat32/vfat partitions defined, exactly one EFI partition is required", len(efi)))
	}
	switch len(root) {
	case 0:
		errs = multierror.Append(errs, fmt.Errorf("no encrypted btrfs root partition defined"))
	case 1:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%d encrypted btrfs partitions defined, exactly one root partition is required", len(root)))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, failure.WrapConfiguration(err, "invalid disk plan")
	}
	return &Layout{
		Disk: d,
		EFI:  &d.Partitions[efi[0]],
		Root: &d.Partitions[root[0]],
	}, nil
}

func listFormat(es []error) string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Layout is a validated plan with its two special partitions located.
type Layout struct {
	Disk *DiskPlan
	EFI  *PartitionSpec
	Root *PartitionSpec
}

func (l *Layout) Device(p *PartitionSpec) string {
	return utils.PartitionDevice(l.Disk.Path, p.Number)
}

func (l *Layout) EFIDevice() string {
	return l.Device(l.EFI)
}

func (l *Layout) RootDevice() string {
	return l.Device(l.Root)
}

// MapperName is the configured mapper name, linuxroot when none is set.
func (l *Layout) MapperName() string {
	return MapperNameOrDefault(l.Root.CryptMapperName)
}

func (l *Layout) MapperPath() string {
	return filepath.Join(constants.MapperDir, l.MapperName())
}

// BtrfsLabel prefers the crypt label, then the partition label.
func (l *Layout) BtrfsLabel() string {
	switch {
	case l.Root.CryptLabel != "":
		return l.Root.CryptLabel
	case l.Root.Label != "":
		return l.Root.Label
	default:
		return constants.DefaultBtrfsLabel
	}
}

func (l *Layout) BtrfsOptions() string {
	if o := strings.TrimSpace(l.Root.BtrfsMountOptions); o != "" {
		return o
	}
	return constants.DefaultBtrfsOpts
}

func (l *Layout) EFIMountPath() string {
	if l.EFI.MountPath != "" {
		return l.EFI.MountPath
	}
	return constants.DefaultEFIPath
}

// MapperNameOrDefault is the mapper naming rule shared by open and cleanup.
func MapperNameOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return constants.DefaultMapperName
}
