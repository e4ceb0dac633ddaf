package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	cnst "github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/pkg/op"
	"github.com/kairos-io/cryptroot/pkg/runner"
)

// CleanupHandler undoes what a failed run may have left behind: the mounts under MountRoot
// and the LUKS mapping. It never returns an error, failures are only reported.
type CleanupHandler struct {
	Runner     runner.Runner
	Reporter   runner.Reporter
	MountRoot  string
	MapperName string
	// Timeout bounds the whole cleanup, cnst.CleanupTimeout when zero.
	Timeout time.Duration

	commands []string
}

// Commands returns the descriptions of the cleanup commands issued.
func (c *CleanupHandler) Commands() []string {
	return append([]string{}, c.commands...)
}

// Run attempts every cleanup command, even when ctx is already done.
func (c *CleanupHandler) Run(ctx context.Context) {
	r := c.Reporter
	if r == nil {
		r = runner.Discard
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.Critical("Cleanup aborted", fmt.Errorf("%v", rec))
		}
	}()
	timeout := c.Timeout
	if timeout == 0 {
		timeout = cnst.CleanupTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	r.Warn(fmt.Sprintf("Cleaning up %s and LUKS volume %s", c.MountRoot, c.MapperName))
	var errs *multierror.Error
	for _, o := range []op.Operation{
		op.UmountRecursive(c.MountRoot),
		op.LuksClose(c.MapperName),
	} {
		if err := c.attempt(ctx, o); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		r.Error("Cleanup incomplete, check the mounts and the LUKS mapping by hand", err)
		return
	}
	r.Info("Cleanup done")
}

func (c *CleanupHandler) attempt(ctx context.Context, o op.Operation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: aborted: %v", o.Description, rec)
		}
	}()
	c.commands = append(c.commands, o.Description)
	res, err := o.Run(ctx, c.Runner, runner.WithoutExitCheck())
	switch {
	case err != nil:
		return err
	case res.ExitCode != 0:
		return fmt.Errorf("%s: exit code %d: %s", o.Description, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
