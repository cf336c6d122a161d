// Package controller implements the controller framework and autoinstall
// binding lifecycle shared by every feature controller (network,
// filesystem, identity, ...), grounded on subiquity's
// server/controller.py SubiquityController base class.
package controller

import (
	"github.com/gravitational/trace"
	"github.com/santhosh-tekuri/jsonschema/v5"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/model"
)

// App is the narrow interface a controller is given instead of a
// reference to the whole server, replacing the cyclic app-to-controller
// reference the original snapshot carries; a controller can reach the
// model, the event bus, and its own slice of the autoinstall document,
// nothing else.
type App interface {
	Model() *model.Model
	EventBus() eventbus.Bus
	AutoinstallConfig() map[string]interface{}
	RootContext() *subctx.Context
}

// Controller is the behavior every feature controller implements,
// mirroring SubiquityController's public surface.
type Controller interface {
	Name() string
	SetupAutoinstall(app App) error
	Interactive() bool
	Configured()
	GenericResult() string
	Context() *subctx.Context
}

// Base is embedded by every feature controller and supplies the
// autoinstall lifecycle mechanics (LoadAutoinstall, Interactive,
// Configured, GenericResult) so each controller only has to implement its
// own endpoint methods, SetupAutoinstall and autoinstall-application logic.
type Base struct {
	// ControllerName is the dotted autoinstall key and model-readiness
	// name, e.g. "network".
	ControllerName string
	// AutoinstallSchema validates this controller's slice of the
	// autoinstall document, if non-nil.
	AutoinstallSchema *jsonschema.Schema
	// AutoinstallDefault is used when the key is absent from the
	// document.
	AutoinstallDefault interface{}

	app  App
	data interface{}
	ctx  *subctx.Context

	interactiveSections map[string]bool
}

// Init must be called once, after the zero-value Base is embedded, before
// any other method.
func (b *Base) Init(app App, interactiveSections map[string]bool) {
	b.app = app
	b.interactiveSections = interactiveSections
	b.ctx = app.RootContext().Child(b.ControllerName, "")
}

// Name returns the controller's autoinstall key.
func (b *Base) Name() string { return b.ControllerName }

// Context returns the controller's root breadcrumb context.
func (b *Base) Context() *subctx.Context { return b.ctx }

// LoadAutoinstall loads, validates and stores this controller's slice of
// the autoinstall document, mirroring
// SubiquityController.__init__->setup_autoinstall. apply is called with
// the loaded (or default) data so the controller can mutate its own
// sub-model; apply's error, if any, is returned wrapped. A concrete
// controller's own SetupAutoinstall(App) implementation calls this after
// Init, giving it a place to supply the apply callback -- Base cannot
// know the concrete sub-model type, so it cannot call apply itself.
func (b *Base) LoadAutoinstall(apply func(data interface{}) error) error {
	doc := b.app.AutoinstallConfig()
	raw, ok := doc[b.ControllerName]
	if !ok {
		raw = b.AutoinstallDefault
	}
	if raw == nil {
		return nil
	}
	if b.AutoinstallSchema != nil {
		if err := b.AutoinstallSchema.Validate(raw); err != nil {
			return trace.BadParameter("invalid autoinstall data for %q: %v", b.ControllerName, err)
		}
	}
	b.data = raw
	if apply != nil {
		if err := apply(raw); err != nil {
			return trace.Wrap(err, "applying autoinstall config for %q", b.ControllerName)
		}
	}
	return nil
}

// Interactive reports whether this controller's screen should be shown to
// a human, mirroring SubiquityController.interactive(): true if no
// autoinstall document was loaded at all, or if "*" or this controller's
// name is listed under interactive-sections.
func (b *Base) Interactive() bool {
	if len(b.app.AutoinstallConfig()) == 0 {
		return true
	}
	if b.interactiveSections["*"] {
		return true
	}
	return b.interactiveSections[b.ControllerName]
}

// Configured marks this controller's readiness event, gating the install
// state machine's wait-for-install/wait-for-postinstall barriers.
func (b *Base) Configured() {
	b.app.Model().SetConfigured(b.ControllerName)
}

// GenericResult reports the status merged into every response from this
// controller's endpoints, computed the same way every request
// SubiquityController.generic_result() is: "skip" if autoinstall already
// answered for a non-interactive controller, "confirm" if the install is
// fully configured and awaiting /meta/confirm and this controller hasn't
// itself been marked configured yet, else "ok".
func (b *Base) GenericResult() string {
	if !b.Interactive() {
		return "skip"
	}
	model := b.app.Model()
	if model.NeedsConfirmation() && !model.IsConfigured(b.ControllerName) {
		return "confirm"
	}
	return "ok"
}
