package app

import (
	"context"
	"io"
	"os"
	"reflect"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/cuemby/subiquityd/internal/api"
	"github.com/cuemby/subiquityd/internal/cliutil"
	"github.com/cuemby/subiquityd/internal/client"
	"github.com/cuemby/subiquityd/internal/install"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// ClientConfig bundles the terminal client's boot-time configuration.
type ClientConfig struct {
	// SocketPath is the server's control socket.
	SocketPath string
	// LastScreenPath, if set, persists the last screen index between runs
	// (unused directly here; kept for parity with the orchestrator's own
	// field and wired in by a richer screen-by-screen client).
	LastScreenPath string
	// AutoConfirm answers the install's confirmation prompt immediately
	// rather than asking the operator, mirroring a scripted/answers-file
	// run.
	AutoConfirm bool
	// Verbose prints the full trace debug report on error instead of just
	// the user-facing message.
	Verbose bool

	Logger logrus.FieldLogger
	Stdout io.Writer
	Stdin  io.Reader
}

func (cfg *ClientConfig) checkAndSetDefaults() {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/run/subiquity/socket"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField(trace.Component, "subiquity-client")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
}

// Client drives the terminal install UX by long-polling the server's
// install status and narrating each transition, the minimal honest
// subset of client/client.py's screen walk that a non-graphical
// front-end needs: the per-screen Orchestrator in internal/client models
// the richer multi-screen walk and is exercised directly by its own
// tests, while this wiring drives the one remote state machine that
// actually exists on the wire.
type Client struct {
	ClientConfig
	transport *api.HTTPTransport
	restarter *client.Restarter
}

// NewClient connects to cfg.SocketPath and prepares the status/confirm
// flow. It performs no network I/O itself (Transport dials lazily on
// first request).
func NewClient(cfg ClientConfig) *Client {
	cfg.checkAndSetDefaults()
	codec := serialize.NewCodec(true, false)
	codec.RegisterEnum(reflect.TypeOf(install.StateNotStarted), install.ParseState)

	transport := api.NewUnixTransport(cfg.SocketPath, codec)
	transport.RespHook = func(resp api.RawResponse) (api.RawResponse, error) {
		ref := ""
		if resp.ErrorReport != nil {
			ref = resp.ErrorReport.Base
		}
		return resp, client.RespHook(resp.Status, ref)
	}

	return &Client{
		ClientConfig: cfg,
		transport:    transport,
		restarter: &client.Restarter{
			HTTPClient:       transport.Client,
			RestartServerURL: transport.BaseURL + "/meta/restart",
			Argv:             os.Args,
		},
	}
}

// Restart asks the server to restart (tolerating the connection reset
// that follows) and then re-execs this client process, mirroring
// client/client.py's own post-install restart prompt.
func (c *Client) Restart(ctx context.Context, restartServer bool) error {
	return trace.Wrap(c.restarter.Restart(ctx, restartServer))
}

// Run polls install status until the server reaches DONE or ERROR,
// printing each transition, and answers the confirmation prompt either
// automatically or by asking the operator, depending on AutoConfirm.
func (c *Client) Run(ctx context.Context) error {
	cur := install.StateNotStarted
	for {
		resp, err := api.Call[installStatusResponse](ctx, c.transport, "GET", "/install/status", api.ParamValues("cur", cur.Name()), nil)
		if err != nil {
			cliutil.PrintError(c.Stdout, err, c.Verbose)
			return trace.Wrap(err)
		}

		parsed, err := install.ParseState(resp.State)
		if err != nil {
			return trace.Wrap(err)
		}
		state := parsed.(install.State)
		if state == cur {
			continue
		}
		cur = state
		cliutil.Info(c.Stdout, "install: %s", state.Name())

		switch state {
		case install.StateNeedsConfirmation:
			if err := c.confirm(ctx); err != nil {
				return trace.Wrap(err)
			}
		case install.StateDone:
			cliutil.Success(c.Stdout, "install finished")
			return nil
		case install.StateError:
			cliutil.Warn(c.Stdout, "install failed, error ref %s", resp.ErrorRef)
			return trace.BadParameter("install failed: %s", resp.ErrorRef)
		}
	}
}

func (c *Client) confirm(ctx context.Context) error {
	if !c.AutoConfirm && !cliutil.Confirm(c.Stdin, c.Stdout, "Ready to install, formatting and erasing disks. Continue?") {
		return trace.BadParameter("install not confirmed")
	}
	_, err := api.Call[struct{}](ctx, c.transport, "POST", "/meta/confirm", nil, nil)
	return trace.Wrap(err)
}

