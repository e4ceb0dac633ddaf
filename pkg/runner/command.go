package runner

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is either a structured argument list, used verbatim, or a single line
// that gets split into words (or handed to a shell, see WithShell).
type Command struct {
	argv []string
	line string
}

// Args builds a structured command.
func Args(args ...string) Command {
	return Command{argv: args}
}

// Line builds a command from a command line string.
func Line(s string) Command {
	return Command{line: s}
}

// Argv returns the structured argument list, nil for line commands.
func (c Command) Argv() []string {
	return c.argv
}

func (c Command) IsEmpty() bool {
	if c.argv != nil {
		for _, a := range c.argv {
			if strings.TrimSpace(a) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(c.line) == ""
}

func (c Command) String() string {
	if c.argv != nil {
		return shellquote.Join(c.argv...)
	}
	return c.line
}
