package main

import (
	"fmt"
	"os"

	"github.com/kairos-io/cryptroot/internal/cmd"
	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/internal/utils"
	"github.com/kairos-io/cryptroot/internal/version"
	"github.com/urfave/cli/v2"
)

// Provision encrypted btrfs root disks.
func main() {
	// Env files have to be loaded before the flags read their env vars
	if err := utils.LoadEnv(constants.EnvFile, os.Getenv("CRYPTROOT_ENV_FILE")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	app := cli.NewApp()
	app.Name = "cryptroot"
	app.Usage = "provision LUKS encrypted btrfs root disks"
	app.Version = version.Get().String()
	app.Authors = []*cli.Author{{Name: "Kairos authors"}}
	app.Copyright = "kairos authors"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			EnvVars: []string{"CRYPTROOT_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Value:   constants.LogDir,
			EnvVars: []string{"CRYPTROOT_LOG_DIR"},
		},
	}
	app.Before = func(c *cli.Context) error {
		utils.SetLogger(c.Bool("debug"), c.String("log-dir"))
		v := version.Get()
		utils.Log.Debug().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("cryptroot")
		return nil
	}
	app.Commands = cmd.Commands

	err := app.Run(os.Args)
	if err != nil {
		utils.Log.Error().Err(err).Send()
		os.Exit(1)
	}
}
