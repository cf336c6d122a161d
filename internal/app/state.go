package app

import "sync"

// ApplicationStatus is the daemon's own boot-sequence phase, ported
// verbatim from common/types.py's ApplicationStatus: distinct from
// install.State, which tracks the separate install state machine that
// only starts once the daemon has already reached INTERACTIVE or
// NON_INTERACTIVE.
type ApplicationStatus int

// ApplicationStatus values.
const (
	ApplicationStarting ApplicationStatus = iota
	ApplicationEarlyCommands
	ApplicationInteractive
	ApplicationNonInteractive
)

// Name implements serialize.Namer.
func (s ApplicationStatus) Name() string {
	switch s {
	case ApplicationStarting:
		return "STARTING"
	case ApplicationEarlyCommands:
		return "EARLY_COMMANDS"
	case ApplicationInteractive:
		return "INTERACTIVE"
	case ApplicationNonInteractive:
		return "NON_INTERACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ParseApplicationStatus parses a wire ApplicationStatus name back into
// a value.
func ParseApplicationStatus(name string) (interface{}, error) {
	switch name {
	case "STARTING":
		return ApplicationStarting, nil
	case "EARLY_COMMANDS":
		return ApplicationEarlyCommands, nil
	case "INTERACTIVE":
		return ApplicationInteractive, nil
	case "NON_INTERACTIVE":
		return ApplicationNonInteractive, nil
	default:
		return nil, &unknownApplicationStatusError{name}
	}
}

type unknownApplicationStatusError struct{ name string }

func (e *unknownApplicationStatusError) Error() string {
	return "unknown application status: " + e.name
}

// ApplicationState is the wire shape of GET /meta/status, mirroring
// common/types.py's ApplicationState. The syslog identifier fields are
// carried for parity with the original wire shape; this module's
// journalbus names its own identifiers and does not read these back.
type ApplicationState struct {
	Status                ApplicationStatus `json:"status"`
	EventSyslogIdentifier string            `json:"event_syslog_identifier"`
	LogSyslogIdentifier   string            `json:"log_syslog_identifier"`
}

// appStatus is a mutex-guarded holder for the daemon's current
// ApplicationStatus, set by Serve as it moves through the boot
// sequence and read by GET /meta/status by way of
// Server.applicationState.
type appStatus struct {
	mu      sync.RWMutex
	current ApplicationStatus
}

func newAppStatus() *appStatus {
	return &appStatus{current: ApplicationStarting}
}

func (a *appStatus) Set(s ApplicationStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = s
}

func (a *appStatus) Current() ApplicationStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// applicationState returns the daemon's current boot-sequence state.
func (s *Server) applicationState() ApplicationState {
	return ApplicationState{Status: s.appStatus.Current()}
}

// anyInteractive reports whether at least one bound controller is
// running interactively, deciding whether Serve settles into
// ApplicationInteractive or ApplicationNonInteractive once early
// commands and the non-interactive pass are both done.
func (s *Server) anyInteractive() bool {
	for _, c := range s.controllers {
		if c.Interactive() {
			return true
		}
	}
	return false
}
