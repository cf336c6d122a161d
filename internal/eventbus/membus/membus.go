// Package membus implements an in-memory eventbus.Bus for --dry-run,
// grounded on cuemby-warren's pkg/events broker: a buffered broadcast
// channel per bus plus a bounded per-identifier ring buffer so a listener
// that does not ask to seek-to-now still gets the backlog.
package membus

import (
	"context"
	"sync"

	"github.com/cuemby/subiquityd/internal/eventbus"
)

const (
	publishBuffer   = 100
	ringBufferSize  = 500
	subscriberDepth = 50
)

// Bus is a topic-agnostic in-process broker: every published entry is
// fanned out to every active listener whose identifier set matches.
type Bus struct {
	mu          sync.Mutex
	history     map[string][]eventbus.Entry
	subscribers map[int]*subscriber
	nextID      int
}

type subscriber struct {
	identifiers map[string]bool
	ch          chan eventbus.Entry
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		history:     make(map[string][]eventbus.Entry),
		subscribers: make(map[int]*subscriber),
	}
}

// Writer returns a sink that publishes every line as an Entry tagged with
// identifier.
func (b *Bus) Writer(identifier string) eventbus.EntryWriter {
	return writerFunc(func(line string) error {
		b.publish(eventbus.Entry{Identifier: identifier, Message: line})
		return nil
	})
}

type writerFunc func(string) error

func (f writerFunc) WriteLine(line string) error { return f(line) }

func (b *Bus) publish(e eventbus.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := append(b.history[e.Identifier], e)
	if len(h) > ringBufferSize {
		h = h[len(h)-ringBufferSize:]
	}
	b.history[e.Identifier] = h

	for _, sub := range b.subscribers {
		if !sub.identifiers[e.Identifier] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Slow subscriber: drop rather than block the publisher,
			// matching the no-cross-subscriber-order-guaranteed policy.
		}
	}
}

// Listen matches eventbus.Bus.Listen.
func (b *Bus) Listen(ctx context.Context, identifiers []string, seekNow bool, cb func(eventbus.Entry)) error {
	idSet := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		idSet[id] = true
	}

	sub := &subscriber{identifiers: idSet, ch: make(chan eventbus.Entry, subscriberDepth)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	var backlog []eventbus.Entry
	if !seekNow {
		for ident := range idSet {
			backlog = append(backlog, b.history[ident]...)
		}
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}()

	for _, e := range backlog {
		cb(e)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-sub.ch:
			cb(e)
		}
	}
}
