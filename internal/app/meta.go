package app

import (
	"context"
	"net/http"

	"github.com/gravitational/trace"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/install"
	"github.com/cuemby/subiquityd/lib/httplib"

	"github.com/cuemby/subiquityd/internal/api"
)

// metaImpl implements the Responder for the handful of top-level
// endpoints that don't belong to any one feature controller:
// ApplicationState, confirmation, curtin's event callback, restart, and
// mark_configured. It has no autoinstall section of its own.
type metaImpl struct {
	server *Server
	ctx    *subctx.Context
}

func (m *metaImpl) Context() *subctx.Context {
	if m.ctx == nil {
		m.ctx = m.server.rootCtx.Child("meta", "")
	}
	return m.ctx
}

func (m *metaImpl) GenericResult() string { return "ok" }

func (m *metaImpl) statusGET() ApplicationState {
	return m.server.applicationState()
}

func (m *metaImpl) confirmPOST() {
	m.server.installTask.Confirm()
}

func (m *metaImpl) restartPOST(ctx context.Context) error {
	// The real effect (re-exec) belongs to the process, not this request
	// handler; the daemon supervisor (systemd) is what actually restarts
	// subiquityd. This endpoint only
	// tears the listener down so the client's POST can observe a
	// connection reset, matching subiquity's own restart semantics.
	go func() {
		_ = m.server.listener.Close()
	}()
	return nil
}

func (m *metaImpl) curtinEventPOST(payload interface{}) error {
	fields, ok := payload.(map[string]interface{})
	if !ok {
		return trace.BadParameter("curtin_event payload must be a mapping")
	}
	event := install.CurtinEvent{
		EventType: stringField(fields, "event_type"),
		Path:      stringField(fields, "name"),
		Name:      stringField(fields, "name"),
		Result:    stringField(fields, "result"),
	}
	m.server.installTask.CurtinEvent(event)
	return nil
}

// markConfiguredPOST implements "meta.mark_configured POST": the client
// names a list of controllers it is taking responsibility for marking
// done without going through that controller's own SET endpoint, e.g. a
// screen the operator skipped outright. Each name is resolved against
// the bound controller list and its Configured() called directly,
// exactly as mark_configured does in subiquity's own MetaController.
func (m *metaImpl) markConfiguredPOST(payload interface{}) error {
	names, ok := payload.([]interface{})
	if !ok {
		return trace.BadParameter("mark_configured payload must be a list of names")
	}
	for _, raw := range names {
		name, ok := raw.(string)
		if !ok {
			return trace.BadParameter("mark_configured entries must be strings")
		}
		c := m.server.controllerNamed(name)
		if c == nil {
			return trace.NotFound("no such controller %q", name)
		}
		c.Configured()
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// metaRoutes builds the /meta endpoint tree.
func metaRoutes(m *metaImpl) *api.Group {
	return api.NewGroup("meta",
		api.Leaf("status", http.MethodGet, "meta_status_GET", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return m.statusGET(), nil
			}),
		api.Leaf("confirm", http.MethodPost, "meta_confirm_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				m.confirmPOST()
				return nil, nil
			}),
		api.Leaf("restart", http.MethodPost, "meta_restart_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				if err := m.restartPOST(context.Background()); err != nil {
					return nil, err
				}
				return httplib.OK(), nil
			}),
		api.Leaf("curtin_event", http.MethodPost, "meta_curtin_event_POST", true,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return nil, m.curtinEventPOST(payload)
			}),
		api.Leaf("mark_configured", http.MethodPost, "meta_mark_configured_POST", true,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return nil, m.markConfiguredPOST(payload)
			}),
	)
}
