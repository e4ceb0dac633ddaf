package schema_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kairos-io/cryptroot/pkg/failure"
	"github.com/kairos-io/cryptroot/pkg/schema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func efi(n int) schema.PartitionSpec {
	return schema.PartitionSpec{Number: n, Label: "EFI", TypeCode: "EF00", Size: "4G", Filesystem: schema.VFAT, MountPath: "/efi"}
}

func root(n int) schema.PartitionSpec {
	return schema.PartitionSpec{
		Number:          n,
		Label:           "ROOT",
		TypeCode:        "8304",
		Size:            "10G",
		Filesystem:      schema.BTRFS,
		Encrypted:       true,
		BtrfsSubvolumes: []string{"/", "/var", "/.snapshots"},
	}
}

const tomlDoc = `
[host]
hostname = "archbox"

[[disk]]
path = "/dev/sdb"
wipe = true
type = "gpt"

[[disk.partition]]
number = 1
label = "EFI"
type = "EF00"
size = "4G"
path = "/efi"
filesystem = "vfat"

[[disk.partition]]
number = 2
label = "ROOT"
type = "8304"
size = "10G"
filesystem = "BTRFS"
crypt = true
cryptname = "cryptroot"
btrfsoptions = "noatime,compress=zstd:3"
btrfssubvolumes = ["/", "/var", "/.snapshots"]
`

const yamlDoc = `
disk:
  - path: /dev/nvme0n1
    partition:
      - number: 1
        label: ESP
        guid: c12a7328-f81f-11d2-ba4b-00a0c93ec93b
        size: 512M
        filesystem: fat32
      - number: 2
        label: ROOT
        type: "8304"
        size: "0"
        filesystem: btrfs
        crypt: true
        crypttype: luks1
        btrfssubvolumes: ["/", "/home"]
`

var _ = Describe("DiskPlan", func() {
	var plan *schema.DiskPlan

	BeforeEach(func() {
		plan = &schema.DiskPlan{Path: "/dev/sdb", Wipe: true, Partitions: []schema.PartitionSpec{efi(1), root(2)}}
	})

	Context("validation", func() {
		It("accepts exactly one EFI and one encrypted btrfs root", func() {
			l, err := plan.Validate()
			Expect(err).ToNot(HaveOccurred())
			Expect(l.EFI.Number).To(Equal(1))
			Expect(l.Root.Number).To(Equal(2))
			Expect(l.EFIDevice()).To(Equal("/dev/sdb1"))
			Expect(l.RootDevice()).To(Equal("/dev/sdb2"))
			Expect(l.MapperName()).To(Equal("linuxroot"))
			Expect(l.MapperPath()).To(Equal("/dev/mapper/linuxroot"))
			Expect(l.BtrfsOptions()).To(Equal("noatime,compress=zstd"))
			Expect(l.BtrfsLabel()).To(Equal("ROOT"))
			Expect(l.EFIMountPath()).To(Equal("/efi"))
		})
		It("rejects plans without an EFI partition", func() {
			plan.Partitions = []schema.PartitionSpec{root(2)}
			_, err := plan.Validate()
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))
			Expect(err.Error()).To(ContainSubstring("no fat32/vfat EFI partition"))
		})
		It("rejects plans with more than one EFI partition", func() {
			second := efi(3)
			second.Filesystem = schema.FAT32
			plan.Partitions = append(plan.Partitions, second)
			_, err := plan.Validate()
			Expect(errors.Is(err, failure.ErrConfiguration)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("exactly one EFI partition"))
		})
		It("rejects plans without an encrypted btrfs root", func() {
			plain := root(2)
			plain.Encrypted = false
			plan.Partitions = []schema.PartitionSpec{efi(1), plain}
			_, err := plan.Validate()
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))
			Expect(err.Error()).To(ContainSubstring("no encrypted btrfs root"))
		})
		It("rejects plans with two encrypted btrfs partitions", func() {
			plan.Partitions = append(plan.Partitions, root(3))
			_, err := plan.Validate()
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))
			Expect(err.Error()).To(ContainSubstring("exactly one root partition"))
		})
		It("requires subvolumes on the root", func() {
			r := root(2)
			r.BtrfsSubvolumes = nil
			plan.Partitions = []schema.PartitionSpec{efi(1), r}
			_, err := plan.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("at least one subvolume"))

			r.BtrfsSubvolumes = []string{"/", " "}
			plan.Partitions = []schema.PartitionSpec{efi(1), r}
			_, err = plan.Validate()
			Expect(err).To(HaveOccurred())
		})
		It("reports every violation at once", func() {
			bad := efi(1)
			bad.Size = ""
			other := schema.PartitionSpec{Number: 1, Size: "1G", Filesystem: "zfs", Encrypted: true, CryptKind: "luks3"}
			plan.Path = ""
			plan.Partitions = []schema.PartitionSpec{bad, other}
			_, err := plan.Validate()
			Expect(err).To(HaveOccurred())
			msg := err.Error()
			for _, s := range []string{"disk path is empty", "size is empty", "used more than once", "unsupported filesystem", "unsupported encryption type", "only the btrfs root", "no encrypted btrfs root"} {
				Expect(msg).To(ContainSubstring(s))
			}
		})
		It("limits MBR tables to four partitions", func() {
			plan.TableKind = schema.MBR
			for i := 3; i <= 5; i++ {
				plan.Partitions = append(plan.Partitions, schema.PartitionSpec{Number: i, Size: "1G", Filesystem: schema.EXT4})
			}
			_, err := plan.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("at most 4"))
		})
		It("uses the p separator on nvme disks", func() {
			plan.Path = "/dev/nvme0n1"
			l, err := plan.Validate()
			Expect(err).ToNot(HaveOccurred())
			Expect(l.RootDevice()).To(Equal("/dev/nvme0n1p2"))
		})
	})

	Context("loading", func() {
		var dir string
		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "cryptroot")
			Expect(err).ToNot(HaveOccurred())
		})
		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("reads toml documents and applies defaults", func() {
			p := filepath.Join(dir, "config.toml")
			Expect(os.WriteFile(p, []byte(tomlDoc), 0644)).To(Succeed())
			c, err := schema.Load(p)
			Expect(err).ToNot(HaveOccurred())
			d, err := c.Disk(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(d.TableKind).To(Equal(schema.GPT))
			Expect(d.Partitions).To(HaveLen(2))
			Expect(d.Partitions[0].Start).To(Equal("0"))
			Expect(d.Partitions[1].Filesystem).To(Equal(schema.BTRFS))
			Expect(d.Partitions[1].CryptKind).To(Equal(schema.LUKS2))

			l, err := d.Validate()
			Expect(err).ToNot(HaveOccurred())
			Expect(l.MapperPath()).To(Equal("/dev/mapper/cryptroot"))
			Expect(l.BtrfsOptions()).To(Equal("noatime,compress=zstd:3"))

			_, err = c.Disk(1)
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))
		})
		It("reads yaml documents", func() {
			p := filepath.Join(dir, "config.yaml")
			Expect(os.WriteFile(p, []byte(yamlDoc), 0644)).To(Succeed())
			c, err := schema.Load(p)
			Expect(err).ToNot(HaveOccurred())
			d, _ := c.Disk(0)
			Expect(d.Partitions[0].PartitionType()).To(Equal("c12a7328-f81f-11d2-ba4b-00a0c93ec93b"))
			Expect(d.Partitions[1].CryptKind).To(Equal(schema.LUKS1))
			l, err := d.Validate()
			Expect(err).ToNot(HaveOccurred())
			Expect(l.EFIDevice()).To(Equal("/dev/nvme0n1p1"))
			Expect(l.EFIMountPath()).To(Equal("/efi"))
		})
		It("returns configuration errors for broken documents", func() {
			p := filepath.Join(dir, "config.toml")
			Expect(os.WriteFile(p, []byte("[[disk]\npath="), 0644)).To(Succeed())
			_, err := schema.Load(p)
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))

			_, err = schema.Load(filepath.Join(dir, "missing.toml"))
			Expect(failure.KindOf(err)).To(Equal(failure.Configuration))
		})
	})
})
