package network

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/controller"
	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/eventbus/membus"
	"github.com/cuemby/subiquityd/internal/model"
)

type fakeApp struct {
	model *model.Model
	bus   eventbus.Bus
	root  *subctx.Context
	auto  map[string]interface{}
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		model: model.New(),
		bus:   membus.New(),
		root:  subctx.New(logrus.StandardLogger(), "test"),
		auto:  map[string]interface{}{},
	}
}

func (a *fakeApp) Model() *model.Model                       { return a.model }
func (a *fakeApp) EventBus() eventbus.Bus                    { return a.bus }
func (a *fakeApp) AutoinstallConfig() map[string]interface{} { return a.auto }
func (a *fakeApp) RootContext() *subctx.Context              { return a.root }

func newTestController(t *testing.T) (*Controller, *fakeApp) {
	t.Helper()
	app := newFakeApp()
	c := New()
	require.NoError(t, c.SetupAutoinstall(app))
	return c, app
}

func TestEnableDHCPPOSTRequiresKnownDevice(t *testing.T) {
	c, app := newTestController(t)
	app.model.Network.Devices = []model.NetworkDevice{{Name: "eth0"}}

	require.NoError(t, c.EnableDHCPPOST(context.Background(), "eth0", 4))
	require.True(t, app.model.Network.Devices[0].DHCP4)

	err := c.EnableDHCPPOST(context.Background(), "eth1", 4)
	require.Error(t, err)
}

func TestDeletePOSTRemovesOnlyNamedDevice(t *testing.T) {
	c, app := newTestController(t)
	app.model.Network.Devices = []model.NetworkDevice{{Name: "eth0"}, {Name: "eth1"}}

	require.NoError(t, c.DeletePOST(context.Background(), "eth0"))
	require.Len(t, app.model.Network.Devices, 1)
	require.Equal(t, "eth1", app.model.Network.Devices[0].Name)
}

// recordingSink counts each callback it receives, letting a test assert a
// single apply cycle delivered exactly one starting/stopping pair.
type recordingSink struct {
	mu        sync.Mutex
	starting  int
	stopping  int
	lastError string
}

func (s *recordingSink) UpdateLink(context.Context, eventbus.LinkUpdate) error { return nil }
func (s *recordingSink) RouteWatch(context.Context, eventbus.RouteEvent) error { return nil }

func (s *recordingSink) ApplyStarting(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting++
	return nil
}

func (s *recordingSink) ApplyStopping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping++
	return nil
}

func (s *recordingSink) ApplyError(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ref
	return nil
}

func (s *recordingSink) snapshot() (starting, stopping int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting, s.stopping
}

func (s *recordingSink) lastErrorRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func TestApplyPOSTNotifiesSubscribersAndWaitsCompletion(t *testing.T) {
	c, _ := newTestController(t)
	sink := &recordingSink{}
	c.subscriptions.Subscribe("test", sink)

	require.NoError(t, c.ApplyPOST(context.Background()))
	c.apply.Cancel() // block until the single-flight run above has finished

	starting, stopping := sink.snapshot()
	require.Equal(t, 1, starting)
	require.Equal(t, 1, stopping)
}

// TestApplyPOSTSupersedesInFlightRun asserts the restart-supersedes-the-old-run
// contract: a second ApplyPOST before the first finishes cancels it, so the
// first run is observed starting but erroring out (canceled), while only
// the second run runs to completion.
func TestApplyPOSTSupersedesInFlightRun(t *testing.T) {
	c, _ := newTestController(t)
	sink := &recordingSink{}
	c.subscriptions.Subscribe("test", sink)

	require.NoError(t, c.ApplyPOST(context.Background()))
	require.NoError(t, c.ApplyPOST(context.Background()))
	c.apply.Cancel()

	starting, stopping := sink.snapshot()
	require.Equal(t, 2, starting)
	require.Equal(t, 1, stopping)
	require.NotEmpty(t, sink.lastErrorRef())
}

var _ controller.App = (*fakeApp)(nil)
