package client

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"syscall"

	"github.com/gravitational/trace"
)

// Restarter implements the client's restart path: optionally ask the
// server to restart itself, tolerating the connection reset that
// follows, then re-exec this process -- mirroring
// SubiquityClient.restart.
type Restarter struct {
	// HTTPClient is used to POST /meta/restart when RestartServer is
	// requested.
	HTTPClient *http.Client
	// RestartServerURL is the full URL of the server's restart endpoint.
	RestartServerURL string
	// Argv is the argv this process should re-exec into.
	Argv []string
	// Env is the environment for the re-exec'd process; nil means
	// inherit os.Environ().
	Env []string
}

// Restart implements the restart operation. If restartServer is true, it
// first asks the server to restart, and an error from that POST is
// expected (the server closes the connection before responding) and is
// not treated as fatal: any error from that POST is ignored and the
// re-exec goes ahead.
func (r *Restarter) Restart(ctx context.Context, restartServer bool) error {
	if restartServer {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.RestartServerURL, nil)
		if err != nil {
			return trace.Wrap(err)
		}
		if _, err := r.HTTPClient.Do(req); err != nil {
			// Expected: the server tears down its listener before the
			// response is flushed. Other failures (e.g. the server not
			// being reachable at all) are ignored the same way.
		}
	}

	env := r.Env
	if env == nil {
		env = os.Environ()
	}

	binary, err := findExecutable(r.Argv[0])
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(syscall.Exec(binary, r.Argv, env))
}

func findExecutable(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return name, nil
}
