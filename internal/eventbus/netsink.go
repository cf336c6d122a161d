package eventbus

import (
	"context"
	"net/url"

	"github.com/gravitational/trace"

	"github.com/cuemby/subiquityd/internal/api"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// RemoteNetEventSink implements NetEventSink by calling back into a
// subscriber reachable over its own Unix control socket, mirroring
// subiquity's NetEventAPI client stub the server holds for each
// registered subscriber.
type RemoteNetEventSink struct {
	transport api.Transport
}

// NewRemoteNetEventSink builds a sink that dials socketPath for every
// delivery.
func NewRemoteNetEventSink(socketPath string) *RemoteNetEventSink {
	codec := serialize.NewCodec(true, false)
	return &RemoteNetEventSink{transport: api.NewUnixTransport(socketPath, codec)}
}

func (s *RemoteNetEventSink) UpdateLink(ctx context.Context, link LinkUpdate) error {
	_, err := s.transport.Do(ctx, "PUT", "/update_link", nil, link)
	return trace.Wrap(err)
}

func (s *RemoteNetEventSink) RouteWatch(ctx context.Context, event RouteEvent) error {
	_, err := s.transport.Do(ctx, "PUT", "/route_watch", nil, event)
	return trace.Wrap(err)
}

func (s *RemoteNetEventSink) ApplyStarting(ctx context.Context) error {
	_, err := s.transport.Do(ctx, "POST", "/apply_starting", nil, nil)
	return trace.Wrap(err)
}

func (s *RemoteNetEventSink) ApplyStopping(ctx context.Context) error {
	_, err := s.transport.Do(ctx, "POST", "/apply_stopping", nil, nil)
	return trace.Wrap(err)
}

func (s *RemoteNetEventSink) ApplyError(ctx context.Context, errorRef string) error {
	_, err := s.transport.Do(ctx, "POST", "/apply_error", url.Values{"error_ref": {errorRef}}, nil)
	return trace.Wrap(err)
}
