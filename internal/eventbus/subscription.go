package eventbus

import (
	"context"
	"sync"

	"github.com/cuemby/subiquityd/internal/run"
)

// NetEventSink receives the reverse-direction network events a subscriber
// registered for. It mirrors subiquity's NetEventAPI tree.
type NetEventSink interface {
	UpdateLink(ctx context.Context, link LinkUpdate) error
	RouteWatch(ctx context.Context, event RouteEvent) error
	ApplyStarting(ctx context.Context) error
	ApplyStopping(ctx context.Context) error
	ApplyError(ctx context.Context, errorRef string) error
}

// LinkAction mirrors the NEW/CHANGE/DEL actions subiquity reports for a
// netlink update.
type LinkAction int

// LinkAction values.
const (
	LinkActionNew LinkAction = iota
	LinkActionChange
	LinkActionDel
)

func (a LinkAction) Name() string {
	switch a {
	case LinkActionNew:
		return "NEW"
	case LinkActionChange:
		return "CHANGE"
	case LinkActionDel:
		return "DEL"
	}
	return "UNKNOWN"
}

// LinkUpdate is the payload of NetEventAPI.update_link.
type LinkUpdate struct {
	Action LinkAction
	Index  int
	Name   string
}

// RouteEvent is the payload of NetEventAPI.route_watch.
type RouteEvent struct {
	Index int
	Gone  bool
}

// SubscriptionRegistry tracks every subscriber registered via
// SubscriptionPUT, keyed by the socket path they supplied, and fans out
// each network event to all of them concurrently through internal/run's
// unlimited-parallelism group, so subscribers never wait on one another.
// Broadcast does not return until every delivery attempt has returned, so
// a slow subscriber holds up the producer for as long as it takes;
// failures are returned to the caller and not logged here.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]NetEventSink
}

// NewSubscriptionRegistry returns an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{subs: make(map[string]NetEventSink)}
}

// Subscribe registers sink under socketPath, replacing any previous
// registration at the same path (PUT is idempotent, per spec).
func (r *SubscriptionRegistry) Subscribe(socketPath string, sink NetEventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[socketPath] = sink
}

// Unsubscribe removes the subscriber at socketPath, if any.
func (r *SubscriptionRegistry) Unsubscribe(socketPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, socketPath)
}

func (r *SubscriptionRegistry) snapshot() []NetEventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NetEventSink, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Broadcast fans fn out to every current subscriber concurrently and
// waits for delivery attempts to finish, collecting (but not stopping on)
// individual failures.
func (r *SubscriptionRegistry) Broadcast(ctx context.Context, fn func(context.Context, NetEventSink) error) []error {
	sinks := r.snapshot()
	if len(sinks) == 0 {
		return nil
	}

	group, ctx := run.WithContext(ctx, run.WithParallel(-1))
	errs := make([]error, len(sinks))
	for i, sink := range sinks {
		i, sink := i, sink
		group.Go(ctx, func() error {
			errs[i] = fn(ctx, sink)
			return nil // a subscriber failure never cancels its siblings
		})
	}
	_ = group.Wait()

	out := errs[:0]
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
