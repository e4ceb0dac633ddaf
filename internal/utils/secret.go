package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kairos-io/cryptroot/internal/constants"
	"golang.org/x/term"
)

// ReadPassphrase returns the LUKS passphrase from file, the environment or, as a last
// resort, a double prompt on the terminal. A single trailing newline in the file is dropped.
func ReadPassphrase(file string) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = bytes.TrimSuffix(data, []byte("\n"))
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", constants.ErrNoPassphrase, file)
		}
		return data, nil
	}
	if p := os.Getenv(constants.PassphraseEnv); p != "" {
		return []byte(p), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, constants.ErrNoPassphrase
	}
	return PromptPassphrase(os.Stderr, func() ([]byte, error) { return term.ReadPassword(fd) })
}

// PromptPassphrase asks twice through read and fails when the answers differ.
func PromptPassphrase(out io.Writer, read func() ([]byte, error)) ([]byte, error) {
	fmt.Fprint(out, "LUKS passphrase: ")
	first, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, constants.ErrNoPassphrase
	}
	fmt.Fprint(out, "Confirm passphrase: ")
	second, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}
