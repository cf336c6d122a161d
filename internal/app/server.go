// Package app wires every internal package into the two runnable
// programs the spec describes: the server daemon and the terminal
// client, grounded on the teacher's own lib/process.ServiceGroup-style
// boot sequencing (build dependencies, start listeners, block until
// shutdown) adapted to this module's single install daemon instead of a
// multi-service cluster agent.
package app

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/cuemby/subiquityd/internal/api"
	"github.com/cuemby/subiquityd/internal/autoinstall"
	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/controller"
	"github.com/cuemby/subiquityd/internal/controller/network"
	"github.com/cuemby/subiquityd/internal/controller/section"
	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/eventbus/journalbus"
	"github.com/cuemby/subiquityd/internal/eventbus/membus"
	"github.com/cuemby/subiquityd/internal/install"
	"github.com/cuemby/subiquityd/internal/model"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// sectionNames lists every autoinstall section that gets the generic
// store-and-serve controller rather than a bespoke one; network is
// handled separately, below.
var sectionNames = []string{
	"filesystem", "identity", "keyboard", "locale", "mirror",
	"proxy", "source", "debconf", "kernel", "packages",
	"snaplist", "ssh", "timezone", "userdata",
}

// ServerConfig bundles the server's boot-time configuration, mirroring
// the set of kingpin flags SPEC_FULL.md's external-interfaces section
// lists for subiquityd.
type ServerConfig struct {
	// SocketPath is the control Unix socket the client connects to.
	SocketPath string
	// StateDir holds the error-report store and the early-commands lock
	// and stamp files.
	StateDir string
	// AutoinstallPath, if non-empty, is loaded and applied at startup.
	AutoinstallPath string
	// DryRun selects the in-memory event bus and no-op curtin/cloud-init
	// subprocess calls, so the whole stack runs without a live target
	// disk or journald.
	DryRun bool
	// TargetDir is curtin's install mountpoint.
	TargetDir string
	// KernelCmdline is consulted for an "autoinstall" token, which
	// auto-confirms the install the moment NEEDS_CONFIRMATION is
	// reached, mirroring subiquity's own cmdline check.
	KernelCmdline string

	Logger logrus.FieldLogger
}

// CheckAndSetDefaults validates cfg and fills in defaults.
func (cfg *ServerConfig) CheckAndSetDefaults() error {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/run/subiquity/socket"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "/var/lib/subiquity"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField(trace.Component, "subiquityd")
	}
	return nil
}

// Server is the assembled daemon: every controller, the install task,
// the event bus and the bound HTTP router, ready to Serve.
type Server struct {
	ServerConfig
	logrus.FieldLogger

	model          *model.Model
	bus            eventbus.Bus
	reporter       *errorreport.Reporter
	rootCtx        *subctx.Context
	codec          *serialize.Codec
	autoinstallDoc map[string]interface{}
	interactive    map[string]bool

	router             *httprouter.Router
	listener           net.Listener
	installTask        *install.Task
	network            *network.Controller
	controllers        []controller.Controller
	sectionControllers []*section.Controller
	appStatus          *appStatus
}

// Model implements controller.App.
func (s *Server) Model() *model.Model { return s.model }

// EventBus implements controller.App.
func (s *Server) EventBus() eventbus.Bus { return s.bus }

// AutoinstallConfig implements controller.App.
func (s *Server) AutoinstallConfig() map[string]interface{} { return s.autoinstallDoc }

// RootContext implements controller.App.
func (s *Server) RootContext() *subctx.Context { return s.rootCtx }

// NewServer builds every dependency but does not yet bind the router or
// start listening; call Serve to do that.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	var bus eventbus.Bus
	if cfg.DryRun {
		bus = membus.New()
	} else {
		jb, err := journalbus.New()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		bus = jb
	}

	reporter, err := errorreport.New(errorreport.Config{
		DataDir: filepath.Join(cfg.StateDir, "errors"),
		Log:     cfg.Logger,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	s := &Server{
		ServerConfig: cfg,
		FieldLogger:  cfg.Logger,
		model:        model.New(),
		bus:          bus,
		reporter:     reporter,
		rootCtx:      subctx.New(cfg.Logger, "subiquity"),
		codec:        newCodec(),
		interactive:  map[string]bool{"*": true},
		appStatus:    newAppStatus(),
	}

	if cfg.AutoinstallPath != "" {
		doc, generic, err := autoinstall.Load(cfg.AutoinstallPath)
		if err != nil {
			return nil, trace.Wrap(err, "loading autoinstall document")
		}
		s.autoinstallDoc = generic
		s.interactive = doc.InteractiveSet()
	}

	s.network = network.New()
	s.controllers = append(s.controllers, s.network)
	for _, name := range sectionNames {
		sc := section.New(name)
		s.sectionControllers = append(s.sectionControllers, sc)
		s.controllers = append(s.controllers, sc)
	}

	for _, c := range s.controllers {
		if err := c.SetupAutoinstall(s); err != nil {
			return nil, trace.Wrap(err, "controller %q", c.Name())
		}
	}

	s.installTask, err = install.New(install.Config{
		Model:       s.model,
		Bus:         s.bus,
		Reporter:    s.reporter,
		RootContext: s.rootCtx,
		Logger:      cfg.Logger,
		DryRun:      cfg.DryRun,
		TargetDir:   cfg.TargetDir,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	s.router = httprouter.New()
	if err := s.bindEndpoints(); err != nil {
		return nil, trace.Wrap(err)
	}

	return s, nil
}

// newCodec returns the codec used for both request/response bodies,
// with every wire enum registered once at construction time.
func newCodec() *serialize.Codec {
	codec := serialize.NewCodec(true, false)
	codec.RegisterEnum(reflect.TypeOf(install.StateNotStarted), install.ParseState)
	codec.RegisterEnum(reflect.TypeOf(ApplicationStarting), ParseApplicationStatus)
	return codec
}

func (s *Server) bindEndpoints() error {
	cfg := api.Config{Router: s.router, Codec: s.codec, Log: s.rootCtx.Logger(), Reporter: s.reporter}

	meta := &metaImpl{server: s}
	if err := api.Bind(cfg, metaRoutes(meta), meta); err != nil {
		return trace.Wrap(err)
	}

	inst := &installImpl{server: s}
	if err := api.Bind(cfg, installRoutes(inst), inst); err != nil {
		return trace.Wrap(err)
	}

	top := api.NewGroup("", api.Leaf("reboot", http.MethodPost, "reboot_POST", false,
		func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
			return nil, s.rebootPOST(context.Background())
		}))
	if err := api.Bind(cfg, top, meta); err != nil {
		return trace.Wrap(err)
	}

	if err := api.Bind(cfg, network.Routes(s.network), s.network); err != nil {
		return trace.Wrap(err)
	}

	for _, sc := range s.sectionControllers {
		if err := api.Bind(cfg, section.Routes(sc), sc); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// rebootPOST implements top-level "reboot POST": if unattended-upgrades
// is mid-run, cancel it first (StopUU) rather than rebooting out from
// under the running apt process, mirroring InstallController.reboot's
// own check before shelling out to "reboot".
func (s *Server) rebootPOST(ctx context.Context) error {
	if s.installTask.Status().Current() == install.StateUURunning {
		if err := s.installTask.StopUU(ctx); err != nil {
			return trace.Wrap(err)
		}
	}
	if s.DryRun {
		return nil
	}
	return trace.Wrap(exec.CommandContext(ctx, "reboot").Run())
}

func (s *Server) controllerNamed(name string) controller.Controller {
	for _, c := range s.controllers {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Serve runs early commands, applies every non-interactive controller,
// starts the install task in the background, and blocks serving HTTP
// over the control socket until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.autoinstallDoc != nil {
		s.appStatus.Set(ApplicationEarlyCommands)
		doc, _, err := autoinstall.Load(s.AutoinstallPath)
		if err != nil {
			return trace.Wrap(err)
		}
		if err := autoinstall.RunEarlyCommands(ctx, s.StateDir, doc, s.bus); err != nil {
			return trace.Wrap(err, "early commands failed")
		}
	}

	if err := autoinstall.ApplyNonInteractive(s, s.controllers); err != nil {
		return trace.Wrap(err)
	}

	if s.anyInteractive() {
		s.appStatus.Set(ApplicationInteractive)
	} else {
		s.appStatus.Set(ApplicationNonInteractive)
	}

	if isAutoinstallCmdline(s.KernelCmdline) {
		go func() {
			<-s.model.WaitInstall()
			s.installTask.Confirm()
		}()
	}

	go s.installTask.Run(ctx)

	listener, err := api.ListenUnix(s.SocketPath)
	if err != nil {
		return trace.Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return trace.Wrap(err)
	}
}

func isAutoinstallCmdline(cmdline string) bool {
	for _, token := range splitFields(cmdline) {
		if token == "autoinstall" {
			return true
		}
	}
	return false
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}
