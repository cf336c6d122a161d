package app

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/subiquityd/internal/api"
	"github.com/cuemby/subiquityd/internal/model"
	"github.com/cuemby/subiquityd/internal/serialize"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(ServerConfig{
		SocketPath: "unused-in-test",
		StateDir:   t.TempDir(),
		DryRun:     true,
	})
	require.NoError(t, err)
	return s
}

func TestServerBindsNetworkAndSectionEndpoints(t *testing.T) {
	s := newTestServer(t)

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	codec := serialize.NewCodec(true, false)
	transport := &api.HTTPTransport{Client: httpSrv.Client(), BaseURL: httpSrv.URL, Codec: codec}
	ctx := context.Background()

	devices, err := api.Call[[]model.NetworkDevice](ctx, transport, "GET", "/network/info", nil, nil)
	require.NoError(t, err)
	require.Empty(t, devices)

	_, err = api.Call[struct{}](ctx, transport, "POST", "/network/enable_dhcp",
		url.Values{"dev": {`"eth0"`}}, nil)
	require.Error(t, err) // no such device yet, expected NotFound

	_, err = api.Call[struct{}](ctx, transport, "POST", "/keyboard/set", nil, map[string]interface{}{"layout": "us"})
	require.Error(t, err) // wrong path: section endpoints live at "/keyboard", not "/keyboard/set"

	_, err = api.Call[map[string]interface{}](ctx, transport, "GET", "/keyboard", nil, nil)
	require.NoError(t, err)

	_, err = api.Call[struct{}](ctx, transport, "POST", "/keyboard", nil, map[string]interface{}{"layout": "us"})
	require.NoError(t, err)

	got, err := api.Call[map[string]interface{}](ctx, transport, "GET", "/keyboard", nil, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"layout": "us"}, got)
}

func TestServerMetaConfirm(t *testing.T) {
	s := newTestServer(t)

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	codec := serialize.NewCodec(true, false)
	transport := &api.HTTPTransport{Client: httpSrv.Client(), BaseURL: httpSrv.URL, Codec: codec}

	_, err := api.Call[struct{}](context.Background(), transport, "POST", "/meta/confirm", nil, nil)
	require.NoError(t, err)
	require.True(t, s.model.Confirmation().IsSet())
}

func TestServerMetaStatusAndInstallStatusAreDistinct(t *testing.T) {
	s := newTestServer(t)

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	codec := serialize.NewCodec(true, false)
	transport := &api.HTTPTransport{Client: httpSrv.Client(), BaseURL: httpSrv.URL, Codec: codec}
	ctx := context.Background()

	appState, err := api.Call[map[string]interface{}](ctx, transport, "GET", "/meta/status", nil, nil)
	require.NoError(t, err)
	require.Contains(t, appState, "status")

	installState, err := api.Call[map[string]interface{}](ctx, transport, "GET", "/install/status",
		url.Values{"cur": {`"RUNNING"`}}, nil)
	require.NoError(t, err)
	require.Contains(t, installState, "state")
}

func TestServerMarkConfigured(t *testing.T) {
	s := newTestServer(t)

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	codec := serialize.NewCodec(true, false)
	transport := &api.HTTPTransport{Client: httpSrv.Client(), BaseURL: httpSrv.URL, Codec: codec}

	_, err := api.Call[struct{}](context.Background(), transport, "POST", "/meta/mark_configured",
		nil, []interface{}{"network"})
	require.NoError(t, err)
	require.True(t, s.model.IsConfigured("network"))
}

func TestServerRebootIsBoundAndDryRunSafe(t *testing.T) {
	s := newTestServer(t)

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	codec := serialize.NewCodec(true, false)
	transport := &api.HTTPTransport{Client: httpSrv.Client(), BaseURL: httpSrv.URL, Codec: codec}

	_, err := api.Call[struct{}](context.Background(), transport, "POST", "/reboot", nil, nil)
	require.NoError(t, err)
}
