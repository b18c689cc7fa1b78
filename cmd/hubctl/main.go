// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command hubctl powers off a Logitech Harmony hub, either once from the
// command line or as a daemon driven by idle events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/hubctl/internal/config"
	"github.com/ManuGH/hubctl/internal/harmony"
	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/trigger"
	"github.com/ManuGH/hubctl/internal/version"
)

const usage = `usage: hubctl [-config file] <command>

commands:
  poweroff     pair with the hub and switch every device off
  test         pair with the hub only, without sending a command
  serve        run the idle-trigger daemon with its HTTP API
  healthcheck  probe a running daemon (see hubctl healthcheck -h)
  version      print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hubctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "version":
		_, _ = fmt.Fprintf(stdout, "%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return 0
	case "healthcheck":
		return runHealthcheckCLI(rest, stdout, stderr)
	case "poweroff", "test", "serve":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "hubctl: %v\n", err)
		return 1
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, *configPath)
	default:
		err = runOnce(ctx, cfg, cmd == "test", trigger.NewHarmonyTask)
	}
	return exitCode(err, stderr)
}

// runOnce runs a single session. The task is stopped when ctx ends.
func runOnce(ctx context.Context, cfg config.AppConfig, dryRun bool, factory trigger.TaskFactory) error {
	task := factory(cfg, dryRun)
	stopTask := context.AfterFunc(ctx, task.Stop)
	defer stopTask()
	return task.Run(ctx)
}

// exitCode maps a run outcome to the process exit status. Cancellation is
// a successful outcome.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case harmony.IsCancelled(err), errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(stderr, "hubctl: cancelled")
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "hubctl: %v\n", err)
		return 1
	}
}
