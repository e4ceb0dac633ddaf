package op

import (
	"strings"

	"github.com/deniswernert/go-fstab"
	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/pkg/schema"
)

// ParseOptions turns "noatime,compress=zstd" into the fstab option map.
func ParseOptions(options string) map[string]string {
	res := map[string]string{}
	for _, o := range strings.Split(options, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		k, v, _ := strings.Cut(o, "=")
		res[k] = v
	}
	return res
}

// FstabEntries returns the fstab of the provisioned system: every subvolume of the
// encrypted root in mount order followed by the EFI partition.
func FstabEntries(l *schema.Layout, set []Subvolume) schema.FsTabs {
	var fstabs schema.FsTabs
	add := func(s Subvolume) {
		fstabs = append(fstabs, &fstab.Mount{
			Spec:    l.MapperPath(),
			File:    s.Path,
			VfsType: string(schema.BTRFS),
			MntOps:  ParseOptions(JoinOptions(l.BtrfsOptions(), "subvol="+s.Name)),
			Freq:    0,
			PassNo:  0,
		})
	}
	for _, s := range set {
		if s.IsRoot() {
			add(s)
		}
	}
	for _, s := range MountOrder(set) {
		add(s)
	}
	fstabs = append(fstabs, &fstab.Mount{
		Spec:    l.EFIDevice(),
		File:    l.EFIMountPath(),
		VfsType: "vfat",
		MntOps:  ParseOptions(constants.EFIMountOptions),
		Freq:    0,
		PassNo:  2,
	})
	return fstabs
}

// RenderFstab writes one line per entry.
func RenderFstab(fstabs schema.FsTabs) string {
	var b strings.Builder
	for _, f := range fstabs {
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	return b.String()
}
