package state

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	cnst "github.com/kairos-io/cryptroot/internal/constants"
	internalUtils "github.com/kairos-io/cryptroot/internal/utils"
	"github.com/kairos-io/cryptroot/pkg/failure"
	"github.com/kairos-io/cryptroot/pkg/op"
	"github.com/kairos-io/cryptroot/pkg/schema"
)

func (s *State) validate(_ context.Context) error {
	if s.Plan == nil {
		return failure.Configurationf("no disk plan given")
	}
	if s.Runner == nil {
		return failure.Configurationf("no command runner given")
	}
	l, err := s.Plan.Validate()
	if err != nil {
		return err
	}
	set, err := op.SubvolumeSet(l.Root.BtrfsSubvolumes)
	if err != nil {
		return err
	}
	if len(s.Passphrase) == 0 && !s.DryRun {
		return failure.Configurationf("no passphrase for the encrypted root partition %s", l.RootDevice())
	}
	if err := s.preflight(); err != nil {
		return err
	}

	s.layout = l
	s.subvolumes = set
	s.fstabs = op.FstabEntries(l, set)
	internalUtils.Log.Info().
		Str("disk", s.Plan.Path).
		Str("efi", l.EFIDevice()).
		Str("root", l.RootDevice()).
		Str("mapper", l.MapperPath()).
		Int("subvolumes", len(set)).
		Msg("Disk plan validated")
	return nil
}

// preflight refuses to touch a disk that is in use or to mount over an existing mount tree.
func (s *State) preflight() error {
	if s.DryRun || s.Mounts == nil {
		return nil
	}
	infos, err := s.Mounts()
	if err != nil {
		internalUtils.Log.Warn().Err(err).Msg("Could not read the mount table, skipping preflight checks")
		return nil
	}
	if busy := internalUtils.DiskMounts(s.Plan.Path, infos); len(busy) > 0 {
		var in []string
		for _, m := range busy {
			in = append(in, fmt.Sprintf("%s on %s", m.Source, m.Mountpoint))
		}
		return failure.Configurationf("disk %s is in use: %s", s.Plan.Path, strings.Join(in, ", "))
	}
	if busy := internalUtils.MountsUnder(s.mountRoot(), infos); len(busy) > 0 {
		return &failure.Error{
			Kind:    failure.Configuration,
			Message: fmt.Sprintf("mount root %s is busy, %s on %s", s.mountRoot(), busy[0].Source, busy[0].Mountpoint),
			Err:     cnst.ErrAlreadyMounted,
		}
	}
	return nil
}

func (s *State) wipeTable(ctx context.Context) error {
	if !s.Plan.Wipe {
		s.reporter().Info(fmt.Sprintf("Keeping the existing partition table on %s", s.Plan.Path))
		return nil
	}
	return s.run(ctx, op.WipeTable(s.Plan.Path))
}

func (s *State) createPartitions(ctx context.Context) error {
	if err := s.run(ctx, op.CreatePartitions(s.Plan.Path, s.Plan.Partitions)); err != nil {
		return err
	}
	if s.Plan.TableKind == schema.MBR {
		if err := s.run(ctx, op.ConvertToMBR(s.Plan.Path, s.Plan.Partitions)); err != nil {
			return err
		}
	}
	if err := s.run(ctx, op.Partprobe(s.Plan.Path)); err != nil {
		return err
	}
	return s.waitForDevices(ctx)
}

// waitForDevices waits for udev to create the partition nodes partprobe announced.
func (s *State) waitForDevices(ctx context.Context) error {
	if s.DryRun || s.Fs == nil {
		return nil
	}
	timeout := s.DeviceWaitTimeout
	if timeout == 0 {
		timeout = cnst.DeviceWaitTimeout
	}
	delay := s.DeviceWaitDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	attempts := uint(timeout / delay)
	if attempts == 0 {
		attempts = 1
	}

	for _, p := range s.Plan.Partitions {
		dev := s.layout.Device(&p)
		err := retry.Do(
			func() error {
				_, err := s.Fs.Stat(dev)
				return err
			},
			retry.Attempts(attempts),
			retry.Delay(delay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
		)
		if err != nil {
			s.LogIfError(err, "waiting for "+dev)
			return &failure.Error{
				Kind:    failure.CommandTimeout,
				Message: "Waiting for partition devices",
				Command: dev,
				Timeout: timeout,
				Err:     err,
			}
		}
	}
	return nil
}

func (s *State) encryptRoot(ctx context.Context) error {
	l := s.layout
	return s.run(ctx, op.LuksFormat(l.RootDevice(), l.Root.CryptKind, l.Root.CryptLabel, s.Passphrase))
}

func (s *State) openRoot(ctx context.Context) error {
	l := s.layout
	return s.run(ctx, op.LuksOpen(l.RootDevice(), l.MapperName(), s.Passphrase))
}

func (s *State) formatFilesystems(ctx context.Context) error {
	l := s.layout
	if err := s.run(ctx, op.MkfsVfat(l.EFIDevice(), l.EFI.Label)); err != nil {
		return err
	}
	return s.run(ctx, op.MkfsBtrfs(l.MapperPath(), l.BtrfsLabel()))
}

// createSubvolumes mounts the top level of the volume, creates every subvolume and unmounts it.
func (s *State) createSubvolumes(ctx context.Context) error {
	mapper := s.layout.MapperPath()
	if err := s.run(ctx, op.MountRaw(mapper, s.mountRoot())); err != nil {
		return err
	}
	for _, sv := range s.subvolumes {
		if err := s.run(ctx, op.SubvolumeCreate(s.mountRoot(), sv)); err != nil {
			return err
		}
	}
	return s.run(ctx, op.Umount("Unmounting BTRFS volume", s.mountRoot()))
}

// remountSubvolumes mounts @ at the mount root and every other subvolume below it.
func (s *State) remountSubvolumes(ctx context.Context) error {
	mapper := s.layout.MapperPath()
	opts := s.layout.BtrfsOptions()
	for _, sv := range s.subvolumes {
		if sv.IsRoot() {
			if err := s.run(ctx, op.MountSubvolume(mapper, s.mountRoot(), opts, sv)); err != nil {
				return err
			}
		}
	}
	for _, sv := range op.MountOrder(s.subvolumes) {
		where := sv.MountPath(s.mountRoot())
		if err := s.run(ctx, op.Mkdir(fmt.Sprintf("Creating mount point %s", where), where)); err != nil {
			return err
		}
		if err := s.run(ctx, op.MountSubvolume(mapper, s.mountRoot(), opts, sv)); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) mountEfi(ctx context.Context) error {
	where := filepath.Join(s.mountRoot(), s.layout.EFIMountPath())
	if err := s.run(ctx, op.Mkdir("Creating EFI mount point", where)); err != nil {
		return err
	}
	return s.run(ctx, op.MountEFI(s.layout.EFIDevice(), where))
}
