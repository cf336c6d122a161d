// Package install implements the server's install state machine,
// grounded on subiquity's server/controllers/install.py and, for the
// Config/FieldLogger-driven engine shape, on the teacher's own
// lib/fsm.FSM: a Config struct validated at construction time, a
// logrus.FieldLogger embedded throughout, and a single Run method that
// drives the whole sequence instead of a general phase DAG, since this
// module's install -- unlike the teacher's multi-node cluster install --
// has exactly one fixed sequence.
package install

// State is the install state machine's current phase, ported verbatim
// from spec.md's InstallState (including NEEDS_CONFIRMATION, which
// spec.md lists explicitly even though the original snapshot's enum
// omits it while still transitioning through it in practice -- spec.md
// is authoritative here).
type State int

// State values.
const (
	StateNotStarted State = iota
	StateRunning
	StateNeedsConfirmation
	StateUURunning
	StateUUCancelling
	StateDone
	StateError
)

// Name implements serialize.Namer.
func (s State) Name() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateRunning:
		return "RUNNING"
	case StateNeedsConfirmation:
		return "NEEDS_CONFIRMATION"
	case StateUURunning:
		return "UU_RUNNING"
	case StateUUCancelling:
		return "UU_CANCELLING"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseState parses a wire State name back into a value.
func ParseState(name string) (interface{}, error) {
	switch name {
	case "NOT_STARTED":
		return StateNotStarted, nil
	case "RUNNING":
		return StateRunning, nil
	case "NEEDS_CONFIRMATION":
		return StateNeedsConfirmation, nil
	case "UU_RUNNING":
		return StateUURunning, nil
	case "UU_CANCELLING":
		return StateUUCancelling, nil
	case "DONE":
		return StateDone, nil
	case "ERROR":
		return StateError, nil
	default:
		return nil, &unknownStateError{name}
	}
}

type unknownStateError struct{ name string }

func (e *unknownStateError) Error() string { return "unknown install state: " + e.name }
