package api

import (
	"net"
	"os"

	"github.com/gravitational/trace"
)

// ListenUnix removes any stale socket file at path and listens on it,
// matching the teacher's own control-socket bootstrap in lib/rpc/server.
func ListenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, trace.ConvertSystemError(err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, trace.Wrap(err, "failed to listen on %v", path)
	}
	return l, nil
}
