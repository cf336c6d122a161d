// Command subiquity-tui is the terminal client: it connects to
// subiquityd's control socket, narrates the install state machine, and
// answers (or auto-answers) the confirmation prompt.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/cuemby/subiquityd/internal/app"
	"github.com/cuemby/subiquityd/internal/cliutil"
)

func main() {
	kapp := kingpin.New("subiquity-tui", "Ubuntu Server installer terminal client")

	socketPath := kapp.Flag("socket", "Control Unix socket path").Default("/run/subiquity/socket").String()
	serial := kapp.Flag("serial", "Render for a serial console (no color, ASCII only)").Bool()
	ssh := kapp.Flag("ssh", "Run the remote-access variant of the client").Bool()
	ascii := kapp.Flag("ascii", "Force ASCII-only box drawing").Bool()
	unicode := kapp.Flag("unicode", "Force Unicode box drawing").Bool()
	screens := kapp.Flag("screens", "Comma-separated allow-list of screens to show").String()
	script := kapp.Flag("script", "Path to a scripted answers file driving this run non-interactively").String()
	click := kapp.Flag("click", "Path to a click-sequence recording to replay against the TUI").String()
	autoConfirm := kapp.Flag("auto-confirm", "Confirm the install automatically instead of prompting").Bool()
	verbose := kapp.Flag("verbose", "Print full error detail on failure").Bool()

	kingpin.MustParse(kapp.Parse(os.Args[1:]))

	logger := log.WithField(trace.Component, "subiquity-tui")

	// serial/ssh/ascii/unicode/screens/script/click select terminal
	// rendering and scripted-run behavior that belongs to a full TUI
	// front-end; this client drives the same remote status protocol
	// regardless, so they are recorded for operators and future screen
	// renderers rather than branching this run.
	logger.WithFields(log.Fields{
		"serial": *serial, "ssh": *ssh, "ascii": *ascii, "unicode": *unicode,
		"screens": *screens, "script": *script, "click": *click,
	}).Debug("startup options")

	client := app.NewClient(app.ClientConfig{
		SocketPath:  *socketPath,
		AutoConfirm: *autoConfirm,
		Verbose:     *verbose,
		Logger:      logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Run(ctx); err != nil {
		cliutil.PrintError(os.Stderr, err, *verbose)
		os.Exit(1)
	}
}
