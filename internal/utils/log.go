package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/rs/zerolog"
)

// Log is the logger shared by the cli and the provisioning steps.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// IsDebug tells if debug logging was requested through the env or the cmdline.
func IsDebug() bool {
	return os.Getenv("CRYPTROOT_DEBUG") != "" || len(ReadCMDLineArg(constants.DebugCmdlineStanza)) > 0
}

// SetLogger sets Log to write to stderr and, when dir is writable, to a json file in it.
func SetLogger(debug bool, dir string) {
	level := zerolog.InfoLevel
	if debug || IsDebug() {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	if dir != "" {
		_ = os.MkdirAll(dir, os.ModeDir|os.ModePerm)
		f, err := os.OpenFile(filepath.Join(dir, "cryptroot.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err == nil {
			writers = append(writers, f)
		}
	}

	Log = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
}
