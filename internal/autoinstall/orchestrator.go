package autoinstall

import (
	"github.com/cuemby/subiquityd/internal/controller"
)

// ApplyNonInteractive marks every controller that is not interactive as
// Configured, at server startup. Each controller's autoinstall section was
// already loaded by the single SetupAutoinstall call made when the server
// constructed it, so it is not loaded again here.
func ApplyNonInteractive(app controller.App, controllers []controller.Controller) error {
	for _, c := range controllers {
		if c.Interactive() {
			continue
		}
		c.Configured()
	}
	return nil
}
