package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jaypipes/ghw"
	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/internal/utils"
	"github.com/kairos-io/cryptroot/internal/version"
	"github.com/kairos-io/cryptroot/pkg/op"
	"github.com/kairos-io/cryptroot/pkg/runner"
	"github.com/kairos-io/cryptroot/pkg/schema"
	"github.com/kairos-io/cryptroot/pkg/state"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"
)

var planFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "installer config (toml or yaml) holding the disk layout",
		EnvVars:  []string{"CRYPTROOT_CONFIG"},
		Required: true,
	},
	&cli.IntFlag{
		Name:    "disk-index",
		Usage:   "which [[disk]] entry of the config to use",
		EnvVars: []string{"CRYPTROOT_DISK_INDEX"},
	},
	&cli.StringFlag{
		Name:    "mount-root",
		Usage:   "where the new system gets mounted",
		Value:   constants.MountRoot,
		EnvVars: []string{"CRYPTROOT_MOUNT_ROOT"},
	},
}

var Commands = []*cli.Command{
	{
		Name:      "provision",
		Usage:     "partition, encrypt and mount a disk",
		UsageText: "provision --config install.toml [--dry-run]",
		Description: `
Wipes and partitions the disk described in the config, creates a LUKS encrypted
btrfs root with its subvolumes and mounts everything, EFI included, under the mount root.
On failure everything under the mount root is unmounted and the LUKS volume is closed.
`,
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "log the commands without running them",
				EnvVars: []string{"CRYPTROOT_DRY_RUN"},
			},
			&cli.StringFlag{
				Name:    "passphrase-file",
				Usage:   "file holding the LUKS passphrase, defaults to $" + constants.PassphraseEnv + " or a prompt",
				EnvVars: []string{"CRYPTROOT_PASSPHRASE_FILE"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "timeout for each command",
				Value:   constants.DefaultCommandTimeout,
				EnvVars: []string{"CRYPTROOT_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "chroot-command",
				Usage:   "command used to run commands inside the mount root",
				Value:   constants.ChrootCommand,
				EnvVars: []string{"CRYPTROOT_CHROOT_COMMAND"},
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "do not ask for confirmation before wiping the disk",
				EnvVars: []string{"CRYPTROOT_YES"},
			},
		}, planFlags...),
		Action: func(c *cli.Context) error {
			dryRun := c.Bool("dry-run")
			plan, err := loadPlan(c)
			if err != nil {
				return err
			}

			var passphrase []byte
			if !dryRun {
				passphrase, err = utils.ReadPassphrase(c.String("passphrase-file"))
				if err != nil {
					return err
				}
				if !c.Bool("yes") {
					if err := confirm(os.Stdin, os.Stderr, plan); err != nil {
						return err
					}
				}
			}

			reporter := runner.NewLogReporter(utils.Log)
			e := runner.NewExecutor(reporter, c.String("mount-root"), dryRun)
			e.DefaultTimeout = c.Duration("timeout")
			e.ChrootCommand = c.String("chroot-command")

			s := &state.State{
				Plan:       plan,
				Runner:     e,
				Reporter:   reporter,
				Passphrase: passphrase,
				MountRoot:  c.String("mount-root"),
				DryRun:     dryRun,
				Fs:         vfs.OSFS,
				Mounts:     utils.GetMounts,
			}
			report, err := s.Provision(context.Background())
			if report != nil {
				utils.Log.Debug().Msg(report.DAG)
			}
			if err != nil {
				return err
			}
			utils.Log.Info().Str("mapper", report.MapperPath).Strs("states", report.States).Msg("Provisioning finished")
			fmt.Print(op.RenderFstab(report.Fstab))
			return nil
		},
	},
	{
		Name:  "plan",
		Usage: "validate the disk layout and show what provision would run",
		Flags: planFlags,
		Action: func(c *cli.Context) error {
			plan, err := loadPlan(c)
			if err != nil {
				return err
			}
			e := runner.NewExecutor(runner.Discard, c.String("mount-root"), true)
			rec := &recorder{Runner: e}
			s := &state.State{Plan: plan, Runner: rec, DryRun: true, MountRoot: c.String("mount-root")}
			report, err := s.Provision(context.Background())
			if err != nil {
				return err
			}
			l := s.Layout()
			fmt.Printf("disk:   %s (%s, wipe: %t)\n", plan.Path, plan.TableKind, plan.Wipe)
			fmt.Printf("efi:    %s -> %s\n", l.EFIDevice(), l.EFIMountPath())
			fmt.Printf("root:   %s -> %s (%s)\n", l.RootDevice(), l.MapperPath(), l.Root.CryptKind)
			fmt.Println()
			fmt.Print(report.DAG)
			fmt.Println()
			for i, line := range rec.lines {
				fmt.Printf("%2d. %s\n", i+1, line)
			}
			return nil
		},
	},
	{
		Name:  "fstab",
		Usage: "print the fstab of the provisioned system",
		Flags: planFlags,
		Action: func(c *cli.Context) error {
			plan, err := loadPlan(c)
			if err != nil {
				return err
			}
			l, err := plan.Validate()
			if err != nil {
				return err
			}
			set, err := op.SubvolumeSet(l.Root.BtrfsSubvolumes)
			if err != nil {
				return err
			}
			fmt.Print(op.RenderFstab(op.FstabEntries(l, set)))
			return nil
		},
	},
	{
		Name:  "disks",
		Usage: "list the block devices that can be provisioned",
		Action: func(_ *cli.Context) error {
			block, err := ghw.Block()
			if err != nil {
				return err
			}
			for _, d := range block.Disks {
				fmt.Printf("/dev/%s\t%d MiB\t%s\t%s\n", d.Name, d.SizeBytes/1024/1024, d.DriveType, d.Model)
				for _, p := range d.Partitions {
					fmt.Printf("  /dev/%s\t%d MiB\t%s\t%s\n", p.Name, p.SizeBytes/1024/1024, p.Type, p.MountPoint)
				}
			}
			return nil
		},
	},
	{
		Name:  "version",
		Usage: "version",
		Action: func(_ *cli.Context) error {
			v := version.Get()
			utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("cryptroot")
			return nil
		},
	},
}

func loadPlan(c *cli.Context) (*schema.DiskPlan, error) {
	config, err := schema.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return config.Disk(c.Int("disk-index"))
}

// confirm asks for an explicit YES before the disk gets wiped.
func confirm(in io.Reader, out io.Writer, plan *schema.DiskPlan) error {
	warn := color.New(color.FgRed, color.Bold)
	warn.Fprintf(out, "All data on %s will be destroyed.\n", plan.Path)
	fmt.Fprint(out, "Type YES to continue: ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(answer) != "YES" {
		return fmt.Errorf("aborted by user")
	}
	return nil
}

// recorder keeps the full command line of every dry run call.
type recorder struct {
	runner.Runner
	lines []string
}

func (r *recorder) Run(ctx context.Context, description string, cmd runner.Command, opts ...runner.Option) (runner.Result, error) {
	r.lines = append(r.lines, fmt.Sprintf("%s: %s", description, cmd.String()))
	return r.Runner.Run(ctx, description, cmd, opts...)
}
