package utils

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// GetHostProcCmdline returns the path to the kernel cmdline, overridable for tests.
func GetHostProcCmdline() string {
	proc := os.Getenv("HOST_PROC_CMDLINE")
	if proc == "" {
		return "/proc/cmdline"
	}
	return proc
}

// ReadCMDLineArg returns the values of every cmdline field starting with arg.
func ReadCMDLineArg(arg string) []string {
	cmdLine, err := os.ReadFile(GetHostProcCmdline())
	if err != nil {
		return []string{}
	}
	res := []string{}
	fields := strings.Fields(string(cmdLine))
	for _, f := range fields {
		if strings.HasPrefix(f, arg) {
			dat := strings.Split(f, arg)
			res = append(res, dat[1])
		}
	}
	return res
}

// ReadEnv parses an env file without touching the process environment.
func ReadEnv(file string) (map[string]string, error) {
	return godotenv.Read(file)
}

// LoadEnv loads the given env files into the process environment.
// Missing files are skipped, variables already set are kept.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range UniqueSlice(CleanupSlice(files)) {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			Log.Debug().Str("file", f).Msg("env file not found, skipping")
			continue
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// UniqueSlice removes duplicated entries keeping the first occurrence.
func UniqueSlice(slice []string) []string {
	keys := make(map[string]bool)
	var list []string
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

// CleanupSlice trims every entry and drops the empty ones.
func CleanupSlice(slice []string) []string {
	var cleanSlice []string
	for _, item := range slice {
		if strings.TrimSpace(item) == "" {
			continue
		}
		cleanSlice = append(cleanSlice, strings.TrimSpace(item))
	}
	return cleanSlice
}
