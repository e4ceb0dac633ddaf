package constants

import (
	"errors"
	"time"
)

var (
	ErrAlreadyMounted = errors.New("already mounted")
	ErrNoPassphrase   = errors.New("no passphrase provided")
)

const (
	OpValidate          = "validate-plan"
	OpWipeTable         = "wipe-table"
	OpCreatePartitions  = "create-partitions"
	OpEncryptRoot       = "encrypt-root"
	OpOpenRoot          = "open-root"
	OpFormatFilesystems = "format-filesystems"
	OpCreateSubvolumes  = "create-subvolumes"
	OpRemountSubvolumes = "remount-subvolumes"
	OpMountEfi          = "mount-efi"

	MountRoot          = "/mnt"
	ChrootCommand      = "arch-chroot"
	DefaultMapperName  = "linuxroot"
	DefaultBtrfsLabel  = "linuxroot"
	DefaultCryptKind   = "luks2"
	DefaultEFIPath     = "/efi"
	DefaultBtrfsOpts   = "noatime,compress=zstd"
	EFIMountOptions    = "uid=0,gid=0,umask=077"
	MapperDir          = "/dev/mapper"
	RootSubvolume      = "@"
	LogDir             = "/run/cryptroot"
	EnvFile            = "/etc/cryptroot/cryptroot.env"
	PassphraseEnv      = "CRYPTROOT_PASSPHRASE"
	DebugCmdlineStanza = "rd.cryptroot.debug"

	DefaultCommandTimeout = 5 * time.Minute
	DeviceWaitTimeout     = 30 * time.Second
	CleanupTimeout        = 2 * time.Minute
)

// Ops returns the provisioning operations in execution order.
func Ops() []string {
	return []string{
		OpValidate,
		OpWipeTable,
		OpCreatePartitions,
		OpEncryptRoot,
		OpOpenRoot,
		OpFormatFilesystems,
		OpCreateSubvolumes,
		OpRemountSubvolumes,
		OpMountEfi,
	}
}
