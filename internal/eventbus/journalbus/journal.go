// Package journalbus implements eventbus.Bus against the host's real
// systemd journal, using github.com/coreos/go-systemd/v22's journal
// package to write and its sdjournal package to read -- the direct
// translation of subiquity's journald_listener readability-fd contract
// onto Go's channel-and-goroutine idiom.
package journalbus

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/coreos/go-systemd/v22/sdjournal"
	"github.com/gravitational/trace"

	"github.com/cuemby/subiquityd/internal/eventbus"
)

const pollInterval = 200 * time.Millisecond

// Bus writes to and reads from the host journal.
type Bus struct{}

// New returns a Bus backed by the live systemd journal. It returns an
// error if journald is not reachable on this host.
func New() (*Bus, error) {
	if !journal.Enabled() {
		return nil, trace.ConnectionProblem(nil, "systemd journal is not available on this host")
	}
	return &Bus{}, nil
}

// Writer matches eventbus.Bus.Writer.
func (b *Bus) Writer(identifier string) eventbus.EntryWriter {
	return writer{identifier: identifier}
}

type writer struct{ identifier string }

func (w writer) WriteLine(line string) error {
	return journal.Send(line, journal.PriInfo, map[string]string{
		"SYSLOG_IDENTIFIER": w.identifier,
	})
}

// Listen matches eventbus.Bus.Listen.
func (b *Bus) Listen(ctx context.Context, identifiers []string, seekNow bool, cb func(eventbus.Entry)) error {
	var matches []sdjournal.Match
	for _, id := range identifiers {
		matches = append(matches, sdjournal.Match{Field: sdjournal.SD_JOURNAL_FIELD_SYSLOG_IDENTIFIER, Value: id})
	}

	j, err := sdjournal.NewJournal()
	if err != nil {
		return trace.Wrap(err, "failed to open journal")
	}
	defer j.Close()

	for i, m := range matches {
		if i > 0 {
			if err := j.AddDisjunction(); err != nil {
				return trace.Wrap(err)
			}
		}
		if err := j.AddMatch(m.String()); err != nil {
			return trace.Wrap(err)
		}
	}

	if seekNow {
		if err := j.SeekTail(); err != nil {
			return trace.Wrap(err)
		}
		// SeekTail positions past the last entry; Next() then reports
		// nothing until something new is written (the loop below waits on
		// the journal meanwhile), which is exactly seekNow's contract.
	} else if err := j.SeekHead(); err != nil {
		return trace.Wrap(err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := j.Next()
		if err != nil {
			return trace.Wrap(err, "journal read failed")
		}
		if n == 0 {
			if err := j.Wait(pollInterval); err != nil {
				return trace.Wrap(err)
			}
			continue
		}

		entry, err := j.GetEntry()
		if err != nil {
			return trace.Wrap(err)
		}
		cb(eventbus.Entry{
			Identifier: entry.Fields["SYSLOG_IDENTIFIER"],
			Message:    entry.Fields["MESSAGE"],
			Fields:     entry.Fields,
		})
	}
}
