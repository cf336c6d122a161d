package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"

	"github.com/gravitational/trace"

	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/serialize"
)

// RawResponse is the decoded envelope every bound endpoint returns, before
// the caller deserializes Result into its concrete type. Error carries the
// user-facing message and ErrorReport the stable ref a RespHook can use to
// build an abort error pointing at the materialized report -- both set
// only when Status is "error".
type RawResponse struct {
	Result      json.RawMessage  `json:"result"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	ErrorReport *errorreport.Ref `json:"error_report,omitempty"`
}

// RespHook lets a client rewrite or reject a response before its Result is
// handed back to the caller -- the extension point the screen orchestrator
// (internal/client) uses to turn a "confirm"/"skip" status into a
// distinguished control-flow error instead of an ordinary value.
type RespHook func(resp RawResponse) (RawResponse, error)

// Transport performs one bound call against the server.
type Transport interface {
	Do(ctx context.Context, verb, path string, query url.Values, payload interface{}) (RawResponse, error)
}

// HTTPTransport implements Transport over a net/http.Client, typically one
// dialing a Unix domain socket (see NewUnixTransport).
type HTTPTransport struct {
	Client   *http.Client
	BaseURL  string
	Codec    *serialize.Codec
	RespHook RespHook
}

// NewUnixTransport builds an HTTPTransport that dials socketPath for every
// request, mirroring the teacher's own unix-socket control transport.
func NewUnixTransport(socketPath string, codec *serialize.Codec) *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
		BaseURL: "http://subiquity.socket",
		Codec:   codec,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, verb, path string, query url.Values, payload interface{}) (RawResponse, error) {
	u := t.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body *bytes.Reader
	if payload != nil {
		wire, err := t.Codec.Serialize(payload)
		if err != nil {
			return RawResponse{}, trace.Wrap(err)
		}
		encoded, err := json.Marshal(map[string]interface{}{"data": wire})
		if err != nil {
			return RawResponse{}, trace.Wrap(err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, verb, u, body)
	if err != nil {
		return RawResponse{}, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return RawResponse{}, trace.ConnectionProblem(err, "request to %s failed", path)
	}
	defer resp.Body.Close()

	var raw RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if resp.StatusCode >= 400 {
			return RawResponse{}, trace.BadParameter("%s %s failed with status %d", verb, path, resp.StatusCode)
		}
		return RawResponse{}, trace.Wrap(err)
	}
	if resp.StatusCode >= 400 && raw.Status == "" {
		raw.Status = "error"
	}

	// An HTTP error and a 200 carrying status:"error" both reach the same
	// hook, so a RespHook written against the status field alone (as
	// internal/client.RespHook is) need not care which one produced it.
	if t.RespHook != nil {
		return t.RespHook(raw)
	}
	if resp.StatusCode >= 400 {
		return RawResponse{}, trace.BadParameter("%s %s: %s", verb, path, raw.Error)
	}
	return raw, nil
}

// Call is a convenience generic helper used by hand-written client stubs
// (one struct per endpoint group, see internal/app's usage) to invoke a
// bound call and deserialize its result into T.
func Call[T any](ctx context.Context, t Transport, verb, path string, query url.Values, payload interface{}) (T, error) {
	var zero T
	raw, err := t.Do(ctx, verb, path, query, payload)
	if err != nil {
		return zero, trace.Wrap(err)
	}
	if len(raw.Result) == 0 || string(raw.Result) == "null" {
		return zero, nil
	}
	var wire interface{}
	if err := json.Unmarshal(raw.Result, &wire); err != nil {
		return zero, trace.Wrap(err)
	}
	codec := serialize.NewCodec(true, false)
	var out T
	if err := codec.Deserialize(wire, &out); err != nil {
		return zero, trace.Wrap(err, "decoding response for %s %s", verb, path)
	}
	return out, nil
}

// ParamValues builds a url.Values carrying one JSON-encoded query
// parameter, mirroring the server's query-param decoding in server.go.
func ParamValues(name string, value interface{}) url.Values {
	encoded, _ := json.Marshal(value)
	return url.Values{name: {string(encoded)}}
}
