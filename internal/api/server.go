package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// Responder is the narrow cross-cutting surface every bound controller
// provides, independent of which operations it implements: the status
// field merged into every response, and the breadcrumb context each
// request's child context is built from. Unlike the old Implementor, it
// carries no dispatch method -- each endpoint's Handler already knows
// which controller method to call.
type Responder interface {
	// GenericResult reports the status field merged into every response
	// from this controller: "ok", "skip" or "confirm".
	GenericResult() string
	// Context returns the controller's root breadcrumb context, used as
	// the parent for each request's child context.
	Context() *subctx.Context
}

// Config bundles the dependencies Bind needs to wire a Group into a
// router.
type Config struct {
	Router *httprouter.Router
	Codec  *serialize.Codec
	Log    logrus.FieldLogger
	// Reporter materializes an ErrorReport ref for every failed request,
	// attached to the error envelope. A nil Reporter degrades to a bare
	// error envelope with no ref, never a broken response.
	Reporter *errorreport.Reporter
}

// CheckAndSetDefaults validates Config the way lib/webapi.Config.Check does
// for the teacher's own HTTP handler.
func (c *Config) CheckAndSetDefaults() error {
	if c.Router == nil {
		return trace.BadParameter("missing Router")
	}
	if c.Codec == nil {
		return trace.BadParameter("missing Codec")
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, "api")
	}
	return nil
}

// Bind registers every endpoint reachable from root against impl,
// recursing through Children. A Group naming a MethodDef with a nil
// Handler is a startup error, never a panic and never a per-request
// trace.NotFound -- the bind-time check comment 1's redesign exists for.
func Bind(cfg Config, root *Group, impl Responder) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	var bindErr error
	root.Walk(func(path []string, g *Group) {
		if bindErr != nil || len(g.Methods) == 0 {
			return
		}
		urlPath := g.FullPath(path...)
		for _, m := range g.Methods {
			if m.Handler == nil {
				bindErr = trace.BadParameter("%s %s declares %q with no handler bound", m.Verb, urlPath, m.ImplName)
				return
			}
			cfg.Router.Handle(m.Verb, urlPath, makeHandler(cfg, impl, m))
		}
	})
	return bindErr
}

func makeHandler(cfg Config, impl Responder, m MethodDef) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		reqCtx := impl.Context().Child(m.ImplName, trimBody(r))

		params := make(map[string]string, len(ps))
		for _, p := range ps {
			params[p.Key] = p.Value
		}

		query := make(map[string]interface{})
		for key, values := range r.URL.Query() {
			if len(values) == 0 {
				continue
			}
			var v interface{}
			if err := json.Unmarshal([]byte(values[0]), &v); err != nil {
				v = values[0]
			}
			query[key] = v
		}

		var payload interface{}
		if m.PayloadBody {
			var body struct {
				Data interface{} `json:"data"`
			}
			if r.Body != nil {
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					writeError(cfg, w, reqCtx, trace.BadParameter("invalid request body: %v", err))
					return
				}
			}
			payload = body.Data
		}

		result, err := callSafely(m.Handler, reqCtx, params, query, payload)
		if err != nil {
			reqCtx.Exit(subctx.StatusFailure)
			writeError(cfg, w, reqCtx, err)
			return
		}
		reqCtx.Exit(subctx.StatusSuccess)

		wire, err := cfg.Codec.Serialize(result)
		if err != nil {
			writeError(cfg, w, reqCtx, trace.Wrap(err))
			return
		}
		resp := map[string]interface{}{
			"result": wire,
			"status": impl.GenericResult(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// callSafely recovers a panicking Handler and turns it into a
// trace-wrapped error, so a single bad request can never take the server
// down -- the propagation policy this module's error design requires.
func callSafely(h Handler, ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = trace.BadParameter("panic in %s: %v", ctx.FullName(), r)
		}
	}()
	result, err = h(ctx, params, query, payload)
	return result, trace.Wrap(err)
}

// writeError converts a handler's error into the wire error envelope,
// materializing an ErrorReport via cfg.Reporter (when configured) and
// attaching its ref so the client's resp_hook-equivalent can point the
// user at a stable report, per spec's error propagation policy.
func writeError(cfg Config, w http.ResponseWriter, ctx *subctx.Context, err error) {
	cfg.Log.WithError(err).WithField("context", ctx.FullName()).Warn("request failed")
	status := http.StatusInternalServerError
	switch {
	case trace.IsBadParameter(err), trace.IsCompareFailed(err):
		status = http.StatusBadRequest
	case trace.IsNotFound(err):
		status = http.StatusNotFound
	}

	body := map[string]interface{}{
		"status": "error",
		"error":  trace.UserMessage(err),
	}
	if cfg.Reporter != nil {
		if report, reportErr := cfg.Reporter.MakeReport(errorreport.KindServerFail, err); reportErr != nil {
			cfg.Log.WithError(reportErr).Warn("failed to materialize error report")
		} else {
			body["error_report"] = errorreport.Ref{Base: report.Ref}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// trimBody returns a breadcrumb description for the request: its body,
// trimmed to 80 characters the way subiquity's server.py trims the
// decoded payload before attaching it to the request's Context. The body
// is put back so the handler can still decode it.
func trimBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	desc := string(raw)
	if len(desc) > 80 {
		desc = desc[:80]
	}
	return desc
}
