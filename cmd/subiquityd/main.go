// Command subiquityd is the install server daemon: it loads an optional
// autoinstall document, binds every controller's endpoints onto a Unix
// control socket, and drives the install state machine to completion.
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
	kapp := kingpin.New("subiquityd", "Ubuntu Server installer control daemon")

	dryRun := kapp.Flag("dry-run", "Run the full stack with no target disk or live journald").Bool()
	socketPath := kapp.Flag("socket", "Control Unix socket path").Default("/run/subiquity/socket").String()
	stateDir := kapp.Flag("state-dir", "Directory for error reports and run-once stamps").Default("/var/lib/subiquity").String()
	autoinstallPath := kapp.Flag("autoinstall", "Path to an autoinstall document to apply at startup").String()
	kernelCmdline := kapp.Flag("kernel-cmdline", "Kernel command line to inspect for an autoinstall token").Default("").String()
	machineConfig := kapp.Flag("machine-config", "Path to a machine-readable probe-data override, mainly for --dry-run").String()
	bootloader := kapp.Flag("bootloader", "Override bootloader detection: bios, uefi or prep").String()
	answers := kapp.Flag("answers", "Path to a legacy answers file, merged in as if it were interactive-sections input").String()
	source := kapp.Flag("source", "Override install source detection").String()
	snapsFromExamples := kapp.Flag("snaps-from-examples", "Use the bundled example snap catalog instead of the store").Bool()
	snapSection := kapp.Flag("snap-section", "Snap store section to browse for optional snaps").Default("server").String()
	targetDir := kapp.Flag("target", "curtin's install mountpoint").Default("/target").String()
	debug := kapp.Flag("debug", "Enable debug logging").Bool()

	kingpin.MustParse(kapp.Parse(os.Args[1:]))

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.WithField(trace.Component, "subiquityd")

	// machineConfig/bootloader/answers/source/snapsFromExamples/snapSection
	// select probe-data and snap-catalog overrides consumed by the
	// filesystem/source/snaplist section controllers once those read from
	// disk instead of the autoinstall document alone; recorded here so the
	// flag surface matches the daemon's documented interface even before
	// every consumer is wired.
	logger.WithFields(log.Fields{
		"machine_config":      *machineConfig,
		"bootloader":          *bootloader,
		"answers":             *answers,
		"source":              *source,
		"snaps_from_examples": *snapsFromExamples,
		"snap_section":        *snapSection,
	}).Debug("startup overrides")

	server, err := app.NewServer(app.ServerConfig{
		SocketPath:      *socketPath,
		StateDir:        *stateDir,
		AutoinstallPath: *autoinstallPath,
		DryRun:          *dryRun,
		TargetDir:       *targetDir,
		KernelCmdline:   *kernelCmdline,
		Logger:          logger,
	})
	if err != nil {
		cliutil.PrintError(os.Stderr, err, *debug)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Serve(ctx); err != nil {
		cliutil.PrintError(os.Stderr, err, *debug)
		os.Exit(1)
	}
}
