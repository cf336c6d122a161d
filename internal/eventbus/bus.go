// Package eventbus implements the syslog-identifier-keyed publish/listen
// contract described by subiquity's journald_listener: producers write
// lines tagged with a syslog identifier, and consumers subscribe to one or
// more identifiers and receive every entry written to them, previously
// buffered entries included (or, with seekNow, only entries written after
// they start listening).
//
// Two implementations exist: journalbus, grounded on
// github.com/coreos/go-systemd/v22's journal/sdjournal packages for a real
// target host, and membus, an in-memory ring-buffer broker grounded on
// cuemby-warren's pkg/events broadcast shape, selected for --dry-run runs
// so the whole stack is exercisable without a live journald.
package eventbus

import "context"

// Entry is one line read back from the bus.
type Entry struct {
	Identifier string
	Message    string
	Fields     map[string]string
}

// Bus is the common interface both backends satisfy.
type Bus interface {
	// Writer returns an io.Writer-like sink for lines tagged with
	// identifier; install.Task streams curtin/cloud-init subprocess
	// output through one per syslog identifier.
	Writer(identifier string) EntryWriter

	// Listen invokes cb for every entry matching one of identifiers. If
	// seekNow is true, only entries written after Listen is called are
	// delivered; otherwise previously buffered entries are replayed
	// first. Listen blocks until ctx is cancelled or an unrecoverable
	// read error occurs.
	Listen(ctx context.Context, identifiers []string, seekNow bool, cb func(Entry)) error
}

// EntryWriter accepts raw lines for one syslog identifier.
type EntryWriter interface {
	WriteLine(line string) error
}
