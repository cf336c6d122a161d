// Package model implements the server's aggregate install model -- the
// single source of truth every controller reads and writes its own slice
// of, grounded on subiquity/models/subiquity.py's SubiquityModel. The
// Model owns every sub-model exclusively; controllers hold a reference to
// their own sub-model but never to another controller's.
package model

import "sync"

// InstallControllerNames lists the controllers whose Configured() call
// must fire before the install stage of the install state machine may
// proceed, ported verbatim from INSTALL_MODEL_NAMES.
var InstallControllerNames = []string{
	"filesystem", "keyboard", "mirror", "network",
	"proxy", "source", "debconf", "kernel",
}

// PostinstallControllerNames lists the controllers gating the
// postinstall stage, ported verbatim from POSTINSTALL_MODEL_NAMES.
var PostinstallControllerNames = []string{
	"identity", "locale", "packages", "snaplist",
	"ssh", "timezone", "userdata",
}

// Model is the server's aggregate state.
type Model struct {
	mu sync.RWMutex

	Filesystem *Filesystem
	Identity   *Identity
	Keyboard   *Keyboard
	Locale     *Locale
	Mirror     *Mirror
	Network    *Network
	Proxy      *Proxy
	SnapList   *SnapList
	SSH        *SSH
	Timezone   *Timezone
	Debconf    *Debconf
	Source     *Source
	Kernel     *Kernel
	Packages   *Packages
	Userdata   *Userdata

	installEvents      map[string]*Event
	postinstallEvents  map[string]*Event
	confirmation       *Event
}

// New returns a Model with an Event allocated for every install and
// postinstall controller name, and every sub-model default-constructed.
func New() *Model {
	m := &Model{
		Filesystem: &Filesystem{},
		Identity:   &Identity{},
		Keyboard:   &Keyboard{},
		Locale:     &Locale{},
		Mirror:     &Mirror{},
		Network:    &Network{},
		Proxy:      &Proxy{},
		SnapList:   &SnapList{},
		SSH:        &SSH{},
		Timezone:   &Timezone{},
		Debconf:    &Debconf{},
		Source:     &Source{},
		Kernel:     &Kernel{},
		Packages:   &Packages{},
		Userdata:   &Userdata{},

		installEvents:     make(map[string]*Event, len(InstallControllerNames)),
		postinstallEvents: make(map[string]*Event, len(PostinstallControllerNames)),
		confirmation:      NewEvent(),
	}
	for _, name := range InstallControllerNames {
		m.installEvents[name] = NewEvent()
	}
	for _, name := range PostinstallControllerNames {
		m.postinstallEvents[name] = NewEvent()
	}
	return m
}

// SetConfigured marks the named controller as configured. It is a no-op
// (not an error) if name is not an install or postinstall controller,
// matching subiquity's generic_result() usage from controllers with no
// gating event.
func (m *Model) SetConfigured(name string) {
	if e, ok := m.installEvents[name]; ok {
		e.Set()
	}
	if e, ok := m.postinstallEvents[name]; ok {
		e.Set()
	}
}

// InstallEvent returns the readiness Event for an install-stage
// controller, or nil if name is not one.
func (m *Model) InstallEvent(name string) *Event { return m.installEvents[name] }

// PostinstallEvent returns the readiness Event for a postinstall-stage
// controller, or nil if name is not one.
func (m *Model) PostinstallEvent(name string) *Event { return m.postinstallEvents[name] }

// WaitInstall returns a channel that is closed once every install-stage
// controller has been configured.
func (m *Model) WaitInstall() <-chan struct{} {
	return waitAll(m.installEvents, InstallControllerNames)
}

// WaitPostinstall returns a channel that is closed once every
// postinstall-stage controller has been configured.
func (m *Model) WaitPostinstall() <-chan struct{} {
	return waitAll(m.postinstallEvents, PostinstallControllerNames)
}

// Confirmation is the single Event set by the client's POST
// /meta/confirm call.
func (m *Model) Confirmation() *Event { return m.confirmation }

// IsConfigured reports whether the named controller has called
// Configured. A name that is not an install or postinstall controller is
// never configured, matching SetConfigured's own no-op handling of it.
func (m *Model) IsConfigured(name string) bool {
	if e, ok := m.installEvents[name]; ok {
		return e.IsSet()
	}
	if e, ok := m.postinstallEvents[name]; ok {
		return e.IsSet()
	}
	return false
}

// InstallReady reports whether every install-stage controller has called
// Configured, without blocking the way WaitInstall's channel would.
func (m *Model) InstallReady() bool {
	for _, name := range InstallControllerNames {
		if e := m.installEvents[name]; e == nil || !e.IsSet() {
			return false
		}
	}
	return true
}

// NeedsConfirmation reports whether the install is fully configured and
// now waiting on the client's POST /meta/confirm, mirroring
// base_model.needs_confirmation -- the condition a controller's
// GenericResult checks to decide whether to report "confirm" instead of
// "ok".
func (m *Model) NeedsConfirmation() bool {
	return m.InstallReady() && !m.confirmation.IsSet()
}

// waitAll returns a channel closed once every named event has fired. It
// fans out one goroutine per event rather than polling, so it costs
// nothing while idle and resolves the instant the last event fires.
func waitAll(events map[string]*Event, names []string) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(names))
	for _, name := range names {
		e := events[name]
		go func() {
			defer wg.Done()
			<-e.Wait()
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// HasNetwork reports whether the network model has at least one
// configured device, gating whether unattended-upgrades can run during
// install -- ported from InstallController's own check in install.py.
func (m *Model) HasNetwork() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Network != nil && len(m.Network.Devices) > 0
}
