// Package client implements the terminal client's screen orchestrator:
// a linear walk over the controller list with three distinguished
// control-flow outcomes (skip, confirm, abort) and the progress-display
// throttling policy, grounded on subiquity's client/client.py and
// client/core.py.
package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/subiquityd/internal/controller"
)

// MaxBlockTime is how long ProgressTimer waits for a screen's data
// before showing a progress indicator, ported verbatim from spec.md.
const MaxBlockTime = 100 * time.Millisecond

// MinShowProgressTime is the minimum time a progress indicator stays up
// once shown, so it never flashes for a single frame.
const MinShowProgressTime = time.Second

// ErrSkip is returned by RespHook when the controller's own
// GenericResult reported "skip": autoinstall already answered for this
// screen, so the orchestrator should move directly to the next one.
var ErrSkip = errors.New("screen skipped")

// ErrConfirm is returned when the controller reported "confirm": the
// install screen is asking the user to confirm before it proceeds.
var ErrConfirm = errors.New("screen requires confirmation")

// ErrAbort is returned when the server reported a hard failure. Ref
// names the materialized error report the user can be pointed at.
type ErrAbort struct {
	Ref string
}

func (e *ErrAbort) Error() string {
	return fmt.Sprintf("aborted: see error report %s", e.Ref)
}

// RespHook translates a raw response's status field into the three
// distinguished errors above, or nil for an ordinary "ok" response --
// the Go replacement for subiquity's exception-raising resp_hook.
func RespHook(status, errorRef string) error {
	switch status {
	case "skip":
		return ErrSkip
	case "confirm":
		return ErrConfirm
	case "error":
		return &ErrAbort{Ref: errorRef}
	default:
		return nil
	}
}

// Orchestrator walks Controllers in order, tracking the current index the
// way client/client.py's SubiquityClient does.
type Orchestrator struct {
	Controllers []controller.Controller
	Index       int

	// LastScreenPath, if set, is where Index is persisted between runs
	// (see persistence.go).
	LastScreenPath string
}

// CurrentController returns the controller at Index, or nil if the walk
// is finished.
func (o *Orchestrator) CurrentController() controller.Controller {
	if o.Index < 0 || o.Index >= len(o.Controllers) {
		return nil
	}
	return o.Controllers[o.Index]
}

// Advance moves to the next screen and persists the new index.
func (o *Orchestrator) Advance() {
	o.Index++
	o.persist()
}

// Retreat moves to the previous screen (the client's Back button) and
// persists the new index.
func (o *Orchestrator) Retreat() {
	if o.Index > 0 {
		o.Index--
	}
	o.persist()
}

// Done reports whether every screen has been walked.
func (o *Orchestrator) Done() bool {
	return o.Index >= len(o.Controllers)
}
