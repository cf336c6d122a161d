package app

import (
	"net/http"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/install"

	"github.com/cuemby/subiquityd/internal/api"
)

// installStatusResponse is the wire shape of GET /install/status,
// mirroring client/controllers/progress.py's status poll payload. It is
// distinct from ApplicationState: this reports the install state
// machine's own phase, not the daemon's boot-sequence phase.
type installStatusResponse struct {
	State    string `json:"state"`
	ErrorRef string `json:"error_ref,omitempty"`
}

// installImpl implements the Responder for the single /install/status
// long-poll endpoint, split out of metaImpl so the two status concepts
// spec's endpoint table keeps distinct (meta vs install) are never
// conflated on the Go side either.
type installImpl struct {
	server *Server
	ctx    *subctx.Context
}

func (i *installImpl) Context() *subctx.Context {
	if i.ctx == nil {
		i.ctx = i.server.rootCtx.Child("install", "")
	}
	return i.ctx
}

func (i *installImpl) GenericResult() string { return "ok" }

// statusGET answers the long poll: it blocks until the install state
// differs from the client's last-observed cur, then reports the new
// state plus the ref of the most recent error report, if any.
func (i *installImpl) statusGET(query map[string]interface{}) installStatusResponse {
	cur := install.StateNotStarted
	if raw, ok := query["cur"].(string); ok {
		if parsed, err := install.ParseState(raw); err == nil {
			cur = parsed.(install.State)
		}
	}
	state := i.server.installTask.Status().Wait(cur)
	return installStatusResponse{State: state.Name(), ErrorRef: i.server.installTask.ErrorRef()}
}

// installRoutes builds the /install endpoint tree.
func installRoutes(i *installImpl) *api.Group {
	return api.NewGroup("install",
		api.Leaf("status", http.MethodGet, "install_status_GET", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return i.statusGET(query), nil
			}),
	)
}
