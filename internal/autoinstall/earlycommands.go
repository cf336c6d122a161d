package autoinstall

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gravitational/trace"
	"golang.org/x/sys/unix"

	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/run"
)

// RunEarlyCommands executes doc's early-commands exactly once across
// peers sharing stateDir, mirroring subiquity's run_early_commands: a
// flock'd lock file serializes concurrent attempts, and a stamp file
// records that the commands already ran so a restarted server does not
// repeat them. Output from every command is written to bus tagged with
// EarlyCommandsIdentifier.
func RunEarlyCommands(ctx context.Context, stateDir string, doc *Document, bus eventbus.Bus) error {
	if len(doc.EarlyCommands) == 0 {
		return nil
	}

	lockPath := filepath.Join(stateDir, "early-commands.lock")
	stampPath := filepath.Join(stateDir, "early-commands.stamp")

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return trace.Wrap(err, "failed to acquire early-commands lock")
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN) //nolint:errcheck

	if _, err := os.Stat(stampPath); err == nil {
		return nil // already run by a previous boot of this server
	} else if !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}

	writer := bus.Writer(EarlyCommandsIdentifier)

	// Early commands run through run.Group the same way subscription
	// delivery does, but capped at one in flight: WithParallel(1)'s
	// semaphore makes Go's own allocation block the loop until the
	// previous command's goroutine has freed its slot, so commands still
	// execute one at a time and in doc order. A failing command cancels
	// the group's Context; every command still queued sees it already
	// done and exec.CommandContext returns immediately instead of
	// starting, which is close enough to subiquity's own fail-fast
	// run_early_commands without needing an explicit stop flag.
	group, groupCtx := run.WithContext(ctx, run.WithParallel(1))
	for _, command := range doc.EarlyCommands {
		command := command
		group.Go(groupCtx, func() error {
			writer.WriteLine("+ " + command) //nolint:errcheck

			cmd := exec.CommandContext(groupCtx, "sh", "-c", command)
			out, runErr := cmd.CombinedOutput()
			for _, line := range splitLines(string(out)) {
				writer.WriteLine(line) //nolint:errcheck
			}
			if runErr != nil {
				return trace.Wrap(runErr, "early command failed: %s", command)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := os.WriteFile(stampPath, []byte("done\n"), 0o600); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
