// Package op builds the commands a provisioning run executes.
// Builders take only the values they need and never run anything themselves.
package op

import (
	"context"

	"github.com/kairos-io/cryptroot/pkg/runner"
)

// Operation is a single command together with the description it is reported under.
type Operation struct {
	Description string
	Command     runner.Command
	Options     []runner.Option
}

// Run executes the operation with r, extra options are applied after the operation ones.
func (o Operation) Run(ctx context.Context, r runner.Runner, extra ...runner.Option) (runner.Result, error) {
	opts := append(append([]runner.Option{}, o.Options...), extra...)
	return r.Run(ctx, o.Description, o.Command, opts...)
}

func (o Operation) String() string {
	return o.Command.String()
}

func newOp(description string, args ...string) Operation {
	return Operation{Description: description, Command: runner.Args(args...)}
}
