package install

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/model"
)

const (
	// CurtinEventsIdentifier tags curtin's own structured event stream.
	CurtinEventsIdentifier = "curtin_event"
	// CurtinLogIdentifier tags curtin's raw stdout/stderr.
	CurtinLogIdentifier = "subiquity_curtin_install"

	drainPollInterval = 100 * time.Millisecond
	drainBudget       = 5 * time.Second
)

// Config bundles Task's dependencies, checked the way the teacher's own
// lib/fsm.Config.CheckAndSetDefaults validates an FSM's configuration.
type Config struct {
	Model       *model.Model
	Bus         eventbus.Bus
	Reporter    *errorreport.Reporter
	RootContext *subctx.Context
	Logger      logrus.FieldLogger

	// DryRun substitutes a no-op curtin/UU invocation, exercising every
	// state transition without touching the host.
	DryRun bool
	// TargetDir is the mountpoint curtin installs into.
	TargetDir string
}

// CheckAndSetDefaults validates c and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Model == nil {
		return trace.BadParameter("missing Model")
	}
	if c.Bus == nil {
		return trace.BadParameter("missing Bus")
	}
	if c.RootContext == nil {
		return trace.BadParameter("missing RootContext")
	}
	if c.Logger == nil {
		c.Logger = logrus.WithField(trace.Component, "install")
	}
	return nil
}

// Task is the single long-lived install engine. One Task exists per
// server process.
type Task struct {
	Config
	logrus.FieldLogger

	status  *StatusBroadcaster
	tracker *CurtinEventTracker

	errorRef string
}

// New constructs a Task.
func New(cfg Config) (*Task, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Task{
		Config:      cfg,
		FieldLogger: cfg.Logger,
		status:      NewStatusBroadcaster(),
		tracker:     NewCurtinEventTracker(cfg.RootContext.Child("install", "")),
	}, nil
}

// Status returns the broadcaster callers poll through GET /install/status.
func (t *Task) Status() *StatusBroadcaster { return t.status }

// ErrorRef returns the ref of the error report materialized on the most
// recent failed Run, or "" if none occurred.
func (t *Task) ErrorRef() string { return t.errorRef }

// Confirm implements POST /meta/confirm: idempotently signals the
// model's confirmation Event. Auto-confirm on an "autoinstall" kernel
// cmdline token is a UX shortcut, not a safety property, and is applied
// by the caller before Run starts waiting, not here.
func (t *Task) Confirm() {
	t.Model.Confirmation().Set()
}

// CurtinEvent routes one curtin event into the context tree, called by
// the server's curtin-event HTTP endpoint.
func (t *Task) CurtinEvent(e CurtinEvent) {
	t.tracker.Handle(e)
	wire := e.EventType + " " + e.Path
	t.Bus.Writer(CurtinEventsIdentifier).WriteLine(wire) //nolint:errcheck
}

// Run drives the install sequence to completion, swallowing any error
// into an ERROR state transition plus a materialized error report rather
// than ever propagating out -- the server must survive an install
// failure to keep answering requests.
func (t *Task) Run(ctx context.Context) {
	if err := t.run(ctx); err != nil {
		t.WithError(err).Error("install failed")
		report, reportErr := t.Reporter.MakeReport(errorreport.KindInstallFail, err)
		if reportErr != nil {
			t.WithError(reportErr).Warn("failed to materialize error report")
		} else {
			t.errorRef = report.Ref
		}
		t.status.Set(StateError)
	}
}

func (t *Task) run(ctx context.Context) error {
	select {
	case <-t.Model.WaitInstall():
	case <-ctx.Done():
		return ctx.Err()
	}

	t.status.Set(StateNeedsConfirmation)

	select {
	case <-t.Model.Confirmation().Wait():
	case <-ctx.Done():
		return ctx.Err()
	}

	t.status.Set(StateRunning)

	if err := t.unmountTargetIfPresent(); err != nil {
		return trace.Wrap(err)
	}

	if err := t.runCurtin(ctx); err != nil {
		return trace.Wrap(err, "curtin install failed")
	}

	select {
	case <-t.Model.WaitPostinstall():
	case <-ctx.Done():
		return ctx.Err()
	}

	t.drainCurtinEvents(ctx)

	if err := t.postinstall(ctx); err != nil {
		return trace.Wrap(err, "postinstall failed")
	}

	if t.Model.HasNetwork() {
		if err := t.runUnattendedUpgrades(ctx); err != nil {
			t.WithError(err).Warn("unattended-upgrades failed; continuing")
		}
	}

	t.status.Set(StateDone)
	return nil
}

func (t *Task) unmountTargetIfPresent() error {
	if t.DryRun {
		return nil
	}
	if _, err := os.Stat(t.TargetDir); os.IsNotExist(err) {
		return nil
	}
	cmd := exec.Command("umount", "-R", t.TargetDir)
	if err := cmd.Run(); err != nil {
		t.WithError(err).Debug("umount reported an error; assuming nothing was mounted")
	}
	return nil
}

func (t *Task) runCurtin(ctx context.Context) error {
	writer := t.Bus.Writer(CurtinLogIdentifier)
	if t.DryRun {
		writer.WriteLine("(dry-run) curtin install") //nolint:errcheck
		return nil
	}

	cmd := exec.CommandContext(ctx, "curtin", "install")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return trace.Wrap(err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return trace.Wrap(err)
	}

	go streamLines(stdout, writer)

	if err := cmd.Wait(); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

func (t *Task) postinstall(ctx context.Context) error {
	cfg := t.Model.CloudInitConfig(time.Now())
	if err := t.configureCloudInit(cfg); err != nil {
		return trace.Wrap(err)
	}
	for _, pkg := range t.Model.Packages.Extra {
		if err := t.installPackage(ctx, pkg); err != nil {
			return trace.Wrap(err, "installing package %q", pkg)
		}
	}
	return t.restoreAptConfig(ctx)
}

func (t *Task) configureCloudInit(cfg map[string]interface{}) error {
	if t.DryRun {
		return nil
	}
	_ = cfg // real implementation writes cfg under TargetDir/etc/cloud/cloud.cfg.d
	return nil
}

func (t *Task) installPackage(ctx context.Context, name string) error {
	if t.DryRun {
		return nil
	}
	cmd := exec.CommandContext(ctx, "chroot", t.TargetDir, "apt-get", "install", "-y", name)
	return trace.Wrap(cmd.Run())
}

func (t *Task) restoreAptConfig(ctx context.Context) error {
	if t.DryRun {
		return nil
	}
	cmd := exec.CommandContext(ctx, "chroot", t.TargetDir, "dpkg-reconfigure", "-fnoninteractive", "apt")
	return trace.Wrap(cmd.Run())
}

// StopUU implements the cancellation path for unattended-upgrades:
// UU_RUNNING -> UU_CANCELLING -> terminate the child -> DONE.
func (t *Task) StopUU(ctx context.Context) error {
	if t.status.Current() != StateUURunning {
		return trace.BadParameter("unattended-upgrades is not running")
	}
	t.status.Set(StateUUCancelling)

	if t.DryRun {
		t.status.Set(StateDone)
		return nil
	}

	cmd := exec.CommandContext(ctx, "chroot", t.TargetDir, "unattended-upgrade-shutdown", "--stop-only")
	if err := cmd.Run(); err != nil {
		return trace.Wrap(err)
	}
	t.status.Set(StateDone)
	return nil
}

func (t *Task) runUnattendedUpgrades(ctx context.Context) error {
	t.status.Set(StateUURunning)
	if t.DryRun {
		t.status.Set(StateDone)
		return nil
	}
	cmd := exec.CommandContext(ctx, "chroot", t.TargetDir, "unattended-upgrade")
	if err := cmd.Run(); err != nil {
		return trace.Wrap(err)
	}
	t.status.Set(StateDone)
	return nil
}

// drainCurtinEvents waits up to drainBudget for curtin's event stream to
// go quiet, polling at drainPollInterval, mirroring
// InstallController.drain_curtin_events.
func (t *Task) drainCurtinEvents(ctx context.Context) {
	deadline := time.Now().Add(drainBudget)
	for time.Now().Before(deadline) {
		t.tracker.mu.Lock()
		remaining := len(t.tracker.contexts)
		t.tracker.mu.Unlock()
		if remaining <= 1 { // only the root context left open
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(drainPollInterval):
		}
	}
}

func streamLines(r interface{ Read([]byte) (int, error) }, w eventbus.EntryWriter) {
	buf := make([]byte, 4096)
	var line []byte
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				w.WriteLine(string(line)) //nolint:errcheck
				line = line[:0]
				continue
			}
			line = append(line, buf[i])
		}
		if err != nil {
			if len(line) > 0 {
				w.WriteLine(string(line)) //nolint:errcheck
			}
			return
		}
	}
}
