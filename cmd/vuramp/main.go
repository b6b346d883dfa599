package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vuramp/vuramp/internal/config"
	"github.com/vuramp/vuramp/internal/logging"
	"github.com/vuramp/vuramp/internal/runner"
)

const (
	exitOK               = 0
	exitConfigError      = 1
	exitPreflightFailed  = 2
	exitThresholdsFailed = 99
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	for _, w := range cfg.Warnings() {
		fmt.Fprintln(stderr, w)
	}

	if cfg.PrintConfig {
		if err := cfg.Dump(stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfigError
		}
		return exitOK
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := runner.New(*cfg, runner.Options{
		Stdout: stdout,
		Stderr: stderr,
		Logger: log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}

	res, err := r.Run(ctx)
	if err != nil {
		return exitCode(err, stderr)
	}
	if res.ThresholdsFailed() {
		fmt.Fprintln(stderr, "Error: one or more thresholds were crossed")
		return exitThresholdsFailed
	}
	return exitOK
}

func exitCode(err error, stderr io.Writer) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var pfErr *runner.PreflightError
	if errors.As(err, &pfErr) {
		return exitPreflightFailed
	}
	return exitConfigError
}
