// Package section implements the generic controller used for every
// autoinstall section that needs nothing beyond "store the document's
// raw mapping, serve it back, let the client replace it" -- the Go
// equivalent of the several subiquity controllers (e.g. keyboard.py,
// timezone.py in their simplest form) whose entire body is a thin
// get/set pair around one model attribute, grounded on
// controller.Base plus network.Controller's Routes shape.
package section

import (
	"context"
	"net/http"

	"github.com/cuemby/subiquityd/internal/api"
	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/controller"
)

// Controller is a minimal screen: its configuration is whatever JSON
// value was under its autoinstall key (or nil), readable with GET and
// replaceable with POST. It is the right shape for a section with no
// validation beyond its own schema and no side effects on Configured.
type Controller struct {
	controller.Base

	app  controller.App
	data interface{}
}

// New returns an unbound Controller for the given autoinstall/model
// name, e.g. "keyboard" or "timezone".
func New(name string) *Controller {
	c := &Controller{}
	c.Base.ControllerName = name
	return c
}

// SetupAutoinstall implements controller.Controller.
func (c *Controller) SetupAutoinstall(app controller.App) error {
	c.app = app
	c.Base.Init(app, interactiveSectionsOf(app))
	return c.Base.LoadAutoinstall(func(data interface{}) error {
		c.data = data
		return nil
	})
}

func interactiveSectionsOf(app controller.App) map[string]bool {
	raw, _ := app.AutoinstallConfig()["interactive-sections"].([]interface{})
	out := make(map[string]bool, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}

// GET returns the section's current value.
func (c *Controller) GET(ctx context.Context) (interface{}, error) {
	return c.data, nil
}

// SetPOST replaces the section's current value and marks the section
// configured, the same way keyboard.py's apply_settings() calls
// self.configured() once it has a value worth keeping -- this is what
// lets an interactive session's install.Task.WaitInstall() ever see
// this section as done.
func (c *Controller) SetPOST(ctx context.Context, value interface{}) error {
	c.data = value
	c.Configured()
	return nil
}

// Routes builds this section's single-node endpoint tree, wiring both
// its GET and POST Handlers directly to GET/SetPOST above.
func Routes(c *Controller) *api.Group {
	return api.NewGroup(c.Name()).
		Method(http.MethodGet, c.Name()+"_GET", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return c.GET(context.Background())
			}).
		Method(http.MethodPost, c.Name()+"_SET_POST", true,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return nil, c.SetPOST(context.Background(), payload)
			})
}
