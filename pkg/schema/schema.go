package schema

import (
	"github.com/deniswernert/go-fstab"
)

type TableKind string

const (
	GPT TableKind = "GPT"
	MBR TableKind = "MBR"
)

type Filesystem string

const (
	FAT32 Filesystem = "fat32"
	VFAT  Filesystem = "vfat"
	EXT4  Filesystem = "ext4"
	BTRFS Filesystem = "btrfs"
	XFS   Filesystem = "xfs"
	F2FS  Filesystem = "f2fs"
)

func (f Filesystem) Valid() bool {
	switch f {
	case FAT32, VFAT, EXT4, BTRFS, XFS, F2FS:
		return true
	}
	return false
}

// IsFAT tells if the filesystem is the one an EFI system partition carries.
func (f Filesystem) IsFAT() bool {
	return f == FAT32 || f == VFAT
}

type CryptKind string

const (
	LUKS1 CryptKind = "luks1"
	LUKS2 CryptKind = "luks2"
)

// Config is the installer document, only the disk tables matter here.
type Config struct {
	Disks []DiskPlan `toml:"disk" yaml:"disk"`
}

// DiskPlan describes how a single disk gets laid out.
type DiskPlan struct {
	Path       string          `toml:"path" yaml:"path"`
	Wipe       bool            `toml:"wipe" yaml:"wipe"`
	TableKind  TableKind       `toml:"type" yaml:"type"`
	Partitions []PartitionSpec `toml:"partition" yaml:"partition"`
}

type PartitionSpec struct {
	Number int    `toml:"number" yaml:"number"`
	Label  string `toml:"label" yaml:"label"`
	// TypeCode is the sgdisk short code (EF00, 8304...), GUID wins when both are set.
	TypeCode          string     `toml:"type" yaml:"type"`
	GUID              string     `toml:"guid" yaml:"guid"`
	Size              string     `toml:"size" yaml:"size"`
	Start             string     `toml:"start" yaml:"start"`
	MountPath         string     `toml:"path" yaml:"path"`
	Filesystem        Filesystem `toml:"filesystem" yaml:"filesystem"`
	Encrypted         bool       `toml:"crypt" yaml:"crypt"`
	CryptKind         CryptKind  `toml:"crypttype" yaml:"crypttype"`
	CryptMapperName   string     `toml:"cryptname" yaml:"cryptname"`
	CryptLabel        string     `toml:"cryptlabel" yaml:"cryptlabel"`
	BtrfsMountOptions string     `toml:"btrfsoptions" yaml:"btrfsoptions"`
	BtrfsSubvolumes   []string   `toml:"btrfssubvolumes" yaml:"btrfssubvolumes"`
}

// PartitionType is the value handed to sgdisk -t.
func (p PartitionSpec) PartitionType() string {
	if p.GUID != "" {
		return p.GUID
	}
	return p.TypeCode
}

// IsRoot tells if the partition is the encrypted btrfs root.
func (p PartitionSpec) IsRoot() bool {
	return p.Encrypted && p.Filesystem == BTRFS
}

type FsTabs []*fstab.Mount
