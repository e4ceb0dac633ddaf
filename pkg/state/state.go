package state

import (
	"context"
	"fmt"
	"time"

	cnst "github.com/kairos-io/cryptroot/internal/constants"
	internalUtils "github.com/kairos-io/cryptroot/internal/utils"
	"github.com/kairos-io/cryptroot/pkg/op"
	"github.com/kairos-io/cryptroot/pkg/runner"
	"github.com/kairos-io/cryptroot/pkg/schema"
	"github.com/moby/sys/mountinfo"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

// State drives a single provisioning run of Plan.
type State struct {
	Plan       *schema.DiskPlan
	Runner     runner.Runner
	Reporter   runner.Reporter
	Passphrase []byte
	MountRoot  string // where the new system is assembled, /mnt by default
	DryRun     bool

	// Fs is used to wait for the partition device nodes, nil skips the wait.
	Fs vfs.FS
	// Mounts lists the host mounts for the preflight checks, nil skips them.
	Mounts            func() ([]*mountinfo.Info, error)
	DeviceWaitTimeout time.Duration
	DeviceWaitDelay   time.Duration

	layout     *schema.Layout
	subvolumes []op.Subvolume
	fstabs     schema.FsTabs

	visited  []string
	commands []string
	touched  bool
	failed   error
	failedOp string
	cleanup  *CleanupHandler
}

// Report is what a run leaves behind, successful or not.
type Report struct {
	// States are the operations entered, in order.
	States []string
	// Commands are the descriptions of every command issued, in order.
	Commands []string
	// Cleanup holds the cleanup command descriptions, empty when no cleanup ran.
	Cleanup    []string
	FailedOp   string
	MapperPath string
	Fstab      schema.FsTabs
	DAG        string
}

func (s *State) mountRoot() string {
	if s.MountRoot == "" {
		return cnst.MountRoot
	}
	return s.MountRoot
}

func (s *State) reporter() runner.Reporter {
	if s.Reporter == nil {
		return runner.Discard
	}
	return s.Reporter
}

// Layout returns the validated layout, nil before validate-plan ran.
func (s *State) Layout() *schema.Layout {
	return s.layout
}

// Register adds the provisioning operations to g, each one depending on the previous.
func (s *State) Register(g *herd.Graph) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{cnst.OpValidate, s.validate},
		{cnst.OpWipeTable, s.wipeTable},
		{cnst.OpCreatePartitions, s.createPartitions},
		{cnst.OpEncryptRoot, s.encryptRoot},
		{cnst.OpOpenRoot, s.openRoot},
		{cnst.OpFormatFilesystems, s.formatFilesystems},
		{cnst.OpCreateSubvolumes, s.createSubvolumes},
		{cnst.OpRemountSubvolumes, s.remountSubvolumes},
		{cnst.OpMountEfi, s.mountEfi},
	}

	var deps []string
	for _, st := range steps {
		err := g.Add(st.name,
			herd.WithDeps(deps...),
			herd.WithCallback(s.step(st.name, st.fn)),
		)
		if err != nil {
			return err
		}
		deps = []string{st.name}
	}
	return nil
}

// step wraps fn so that nothing runs once an operation has failed, and the first failure is kept.
func (s *State) step(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.failed != nil {
			return fmt.Errorf("not running %s: %s failed", name, s.failedOp)
		}
		s.visited = append(s.visited, name)
		internalUtils.Log.Debug().Str("op", name).Msg("Starting")
		if err := fn(ctx); err != nil {
			s.failed = err
			s.failedOp = name
			return err
		}
		internalUtils.Log.Debug().Str("op", name).Msg("Done")
		return nil
	}
}

// Provision runs the whole sequence. On failure the mounts and the LUKS mapping are cleaned up
// and the error of the failing command is returned untouched.
func (s *State) Provision(ctx context.Context) (*Report, error) {
	g := herd.DAG()
	if err := s.Register(g); err != nil {
		return nil, err
	}
	internalUtils.Log.Debug().Msg(s.WriteDAG(g))

	runErr := g.Run(ctx)

	path := "<no plan>"
	if s.Plan != nil {
		path = s.Plan.Path
	}
	if s.failed != nil {
		s.reporter().Critical(fmt.Sprintf("Provisioning of %s failed at %s", path, s.failedOp), s.failed)
		if s.touched {
			s.cleanup = s.cleanupHandler()
			s.cleanup.Run(ctx)
		}
		return s.report(g), s.failed
	}
	if runErr != nil {
		return s.report(g), runErr
	}
	s.reporter().Info(fmt.Sprintf("Provisioned %s, new root mounted at %s", path, s.mountRoot()))
	return s.report(g), nil
}

func (s *State) cleanupHandler() *CleanupHandler {
	name := ""
	if s.layout != nil {
		name = s.layout.Root.CryptMapperName
	}
	return &CleanupHandler{
		Runner:     s.Runner,
		Reporter:   s.reporter(),
		MountRoot:  s.mountRoot(),
		MapperName: schema.MapperNameOrDefault(name),
	}
}

func (s *State) report(g *herd.Graph) *Report {
	r := &Report{
		States:   append([]string{}, s.visited...),
		Commands: append([]string{}, s.commands...),
		FailedOp: s.failedOp,
		Fstab:    s.fstabs,
		DAG:      s.WriteDAG(g),
	}
	if s.layout != nil {
		r.MapperPath = s.layout.MapperPath()
	}
	if s.cleanup != nil {
		r.Cleanup = s.cleanup.Commands()
	}
	return r
}

// run issues o through the runner and records it.
func (s *State) run(ctx context.Context, o op.Operation) error {
	s.commands = append(s.commands, o.Description)
	s.touched = true
	_, err := o.Run(ctx, s.Runner)
	return err
}

// WriteDAG writes the dag.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, op := range layer {
			if op.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s) (background: %t) (weak: %t) (run: %t)\n", op.Name, op.Error.Error(), op.Background, op.WeakDeps, op.Executed)
			} else {
				out += fmt.Sprintf(" <%s> (background: %t) (weak: %t) (run: %t)\n", op.Name, op.Background, op.WeakDeps, op.Executed)
			}
		}
	}
	return
}

// LogIfError will log if there is an error with the given context as message
// Context can be empty.
func (s *State) LogIfError(e error, msgContext string) {
	if e != nil {
		internalUtils.Log.Err(e).Msg(msgContext)
	}
}
