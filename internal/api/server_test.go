package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// fakeController is a minimal Responder whose handlers are wired directly
// to its own methods in each test, the same shape every real controller
// package (network, section, meta) builds its endpoint tree with.
type fakeController struct {
	root *subctx.Context
}

func (f *fakeController) Context() *subctx.Context { return f.root }
func (f *fakeController) GenericResult() string    { return "ok" }

func (f *fakeController) statusGET(context.Context) (map[string]string, error) {
	return map[string]string{"state": "RUNNING"}, nil
}

func (f *fakeController) echoPUT(_ context.Context, payload interface{}) (interface{}, error) {
	return payload, nil
}

func newTestConfig(router *httprouter.Router, codec *serialize.Codec) Config {
	return Config{Router: router, Codec: codec, Log: logrus.StandardLogger()}
}

func TestBindRoundTrip(t *testing.T) {
	root := subctx.New(logrus.StandardLogger(), "test")
	ctrl := &fakeController{root: root}

	tree := NewGroup("",
		NewGroup("status").Method(http.MethodGet, "status_GET", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return ctrl.statusGET(context.Background())
			}),
		NewGroup("echo").Method(http.MethodPut, "echo_PUT", true,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return ctrl.echoPUT(context.Background(), payload)
			}),
	)

	router := httprouter.New()
	codec := serialize.NewCodec(true, false)
	require.NoError(t, Bind(newTestConfig(router, codec), tree, ctrl))

	srv := httptest.NewServer(router)
	defer srv.Close()

	transport := &HTTPTransport{Client: srv.Client(), BaseURL: srv.URL, Codec: codec}

	type status struct {
		State string `json:"state"`
	}
	got, err := Call[status](context.Background(), transport, http.MethodGet, "/status", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "RUNNING", got.State)

	type echoPayload struct {
		Message string `json:"message"`
	}
	sent := echoPayload{Message: "hi"}
	gotEcho, err := Call[echoPayload](context.Background(), transport, http.MethodPut, "/echo", url.Values{}, sent)
	require.NoError(t, err)
	require.Equal(t, "hi", gotEcho.Message)
}

// TestBindRejectsMissingHandler asserts comment 1's required contract: a
// Group naming a MethodDef with no Handler fails Bind itself, never
// surfacing as a per-request 404 once the server is already up.
func TestBindRejectsMissingHandler(t *testing.T) {
	root := subctx.New(logrus.StandardLogger(), "test")
	ctrl := &fakeController{root: root}

	broken := &Group{Name: "broken", Methods: []MethodDef{{Verb: http.MethodGet, ImplName: "broken_GET"}}}

	router := httprouter.New()
	codec := serialize.NewCodec(true, false)
	err := Bind(newTestConfig(router, codec), broken, ctrl)
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err))
}

// TestWriteErrorAttachesErrorReportRef asserts every failed request
// carries a stable ErrorReport ref when a Reporter is configured, the
// wire shape spec's error propagation policy requires.
func TestWriteErrorAttachesErrorReportRef(t *testing.T) {
	root := subctx.New(logrus.StandardLogger(), "test")
	ctrl := &fakeController{root: root}

	tree := NewGroup("boom").Method(http.MethodGet, "boom_GET", false,
		func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
			return nil, trace.BadParameter("kaboom")
		})

	reporter, err := errorreport.New(errorreport.Config{DataDir: t.TempDir(), Log: logrus.StandardLogger()})
	require.NoError(t, err)

	cfg := newTestConfig(httprouter.New(), serialize.NewCodec(true, false))
	cfg.Reporter = reporter
	require.NoError(t, Bind(cfg, tree, ctrl))

	srv := httptest.NewServer(cfg.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/boom")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body RawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "error", body.Status)
	require.NotNil(t, body.ErrorReport)
	require.NotEmpty(t, body.ErrorReport.Base)
}
