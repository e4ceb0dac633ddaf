// Package runner executes external commands for the provisioning engine.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/pkg/failure"
	"github.com/kballard/go-shellquote"
)

const (
	DryRunStdout = "DRY_RUN_STDOUT"
	DryRunStderr = "DRY_RUN_STDERR"
)

// Result of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs a single command and reports it under description.
type Runner interface {
	Run(ctx context.Context, description string, cmd Command, opts ...Option) (Result, error)
}

// Process is what the Executor hands to a SpawnFunc once the argv is final.
type Process struct {
	Argv  []string
	Stdin io.Reader
	Dir   string
}

// SpawnFunc starts a process and waits for it. A non-zero exit is not an error,
// errors are reserved for processes that could not be started or waited for.
type SpawnFunc func(ctx context.Context, p Process) (Result, error)

// Executor is the Runner used in production.
type Executor struct {
	Reporter Reporter
	// MountRoot is the directory chrooted commands run in.
	MountRoot     string
	ChrootCommand string
	// DryRun applies to every call, on top of WithDryRun.
	DryRun         bool
	DefaultTimeout time.Duration
	Spawn          SpawnFunc
}

// NewExecutor returns an Executor with the default chroot and spawn settings.
func NewExecutor(r Reporter, mountRoot string, dryRun bool) *Executor {
	return &Executor{
		Reporter:       r,
		MountRoot:      mountRoot,
		ChrootCommand:  constants.ChrootCommand,
		DryRun:         dryRun,
		DefaultTimeout: constants.DefaultCommandTimeout,
		Spawn:          ExecSpawn,
	}
}

func (e *Executor) reporter() Reporter {
	if e.Reporter == nil {
		return Discard
	}
	return e.Reporter
}

func (e *Executor) Run(ctx context.Context, description string, cmd Command, opts ...Option) (Result, error) {
	o := Apply(opts...)
	dry := e.DryRun || o.DryRun
	r := e.reporter()

	step := r.Step(description)
	argv, err := e.prepare(cmd, o)
	if err != nil {
		step.Failure(err)
		return Result{}, err
	}
	line := shellquote.Join(argv...)

	if dry {
		r.Debug(fmt.Sprintf("dry run: %s", line))
		step.Success()
		return Result{ExitCode: 0, Stdout: DryRunStdout, Stderr: DryRunStderr}, nil
	}

	if err := ctx.Err(); err != nil {
		ferr := aborted(description, line, Result{}, err)
		step.Failure(ferr)
		return Result{}, ferr
	}
	r.Debug(fmt.Sprintf("running: %s", line))
	if len(o.Stdin) > 0 && !o.SecretStdin {
		r.Debug(fmt.Sprintf("stdin: %d bytes", len(o.Stdin)))
	}
	timeout := o.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p := Process{Argv: argv, Dir: o.Dir}
	if o.Stdin != nil {
		p.Stdin = bytes.NewReader(o.Stdin)
	}
	spawn := e.Spawn
	if spawn == nil {
		spawn = ExecSpawn
	}
	res, spawnErr := spawn(runCtx, p)

	if err := ctx.Err(); err != nil {
		ferr := aborted(description, line, res, err)
		step.Failure(ferr)
		return res, ferr
	}
	// Only the per call deadline is a command timeout.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		ferr := &failure.Error{
			Kind:     failure.CommandTimeout,
			Message:  description,
			Command:  line,
			ExitCode: 124,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Timeout:  timeout,
			Err:      runCtx.Err(),
		}
		step.Failure(ferr)
		return res, ferr
	}
	if spawnErr != nil {
		ferr := classifySpawn(description, line, spawnErr)
		step.Failure(ferr)
		return res, ferr
	}
	if res.ExitCode != 0 && o.CheckExitCode {
		ferr := classify(description, line, res)
		step.Failure(ferr)
		return res, ferr
	}
	step.Success()
	return res, nil
}

// prepare turns cmd into the final argv, applying shell and chroot wrapping.
func (e *Executor) prepare(cmd Command, o Options) ([]string, error) {
	if cmd.IsEmpty() {
		return nil, failure.Configurationf("empty command")
	}
	var argv []string
	switch {
	case o.Shell:
		argv = []string{"sh", "-c", cmd.String()}
	case cmd.Argv() != nil:
		argv = append(argv, cmd.Argv()...)
	default:
		words, err := shellquote.Split(cmd.String())
		if err != nil {
			return nil, &failure.Error{Kind: failure.Configuration, Message: fmt.Sprintf("cannot parse command %q", cmd.String()), Err: err}
		}
		argv = words
	}
	if o.Chroot {
		chroot := e.ChrootCommand
		if chroot == "" {
			chroot = constants.ChrootCommand
		}
		argv = append([]string{chroot, e.MountRoot}, argv...)
	}
	return argv, nil
}

func classify(description, line string, res Result) *failure.Error {
	kind := failure.ShellCommand
	stderr := strings.ToLower(res.Stderr)
	switch {
	case res.ExitCode == 127 || strings.Contains(stderr, "command not found"):
		kind = failure.CommandNotFound
	case res.ExitCode == 126 || strings.Contains(stderr, "permission denied") || strings.Contains(stderr, "operation not permitted"):
		kind = failure.PermissionDenied
	}
	return &failure.Error{
		Kind:     kind,
		Message:  description,
		Command:  line,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

// aborted is the error of a command cut short by the caller's context.
func aborted(description, line string, res Result, cause error) *failure.Error {
	return &failure.Error{
		Kind:     failure.ShellCommand,
		Message:  fmt.Sprintf("%s aborted: %s", description, cause),
		Command:  line,
		ExitCode: -1,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Err:      cause,
	}
}

func classifySpawn(description, line string, err error) *failure.Error {
	kind := failure.ShellCommand
	exitCode := -1
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		kind = failure.CommandNotFound
		exitCode = 127
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		kind = failure.PermissionDenied
		exitCode = 126
	}
	return &failure.Error{
		Kind:     kind,
		Message:  description,
		Command:  line,
		ExitCode: exitCode,
		Stderr:   err.Error(),
		Err:      err,
	}
}

// ExecSpawn runs p with os/exec.
func ExecSpawn(ctx context.Context, p Process) (Result, error) {
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = p.Stdin
	cmd.Dir = p.Dir
	// Children holding the pipes open must not outlive the timeout by much.
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, err
}
