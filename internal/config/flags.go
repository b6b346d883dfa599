package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vuramp",
		Short:         "Virtual-user load generator with ramped stages",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("base-url", "", "Base URL that scenario paths are resolved against")

	// Load shape
	flags.IntP("vus", "u", 0, "Number of virtual users for a flat run")
	flags.DurationP("duration", "d", 0, "Flat run duration (e.g. 30s, 1m30s)")
	flags.StringArrayP("stage", "s", nil, "Ramp stage as duration:target (repeatable, e.g. 30s:10)")

	// Request behavior
	flags.Int("rps", 0, "Global requests per second cap across all VUs (0 means unlimited)")
	flags.Duration("timeout", defaultTimeout, "Per-request timeout")
	flags.Duration("graceful-stop", defaultGracefulStop, "Max time to wait for in-flight requests when the run ends")
	flags.Int64("max-body-bytes", defaultMaxBodyBytes, "Max response body bytes kept for checks")
	flags.Bool("preflight", false, "Request base URL once before generating load and exit 2 if unreachable")

	// Thresholds
	flags.StringSlice("threshold", nil, "Pass/fail criteria (repeatable, e.g. 'http_req_duration:p95 < 500')")

	// Output
	flags.Bool("json-output", false, "Emit the summary as JSON")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.BoolP("quiet", "q", false, "Disable the live progress line")
	flags.String("summary-export", "", "Write the JSON summary to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Bool("print-config", false, "Print the resolved configuration as YAML and exit")

	// Logging
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (e.g. localhost:4317)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}
	if fs.Changed("vus") {
		val, err := fs.GetInt("vus")
		if err != nil {
			return err
		}
		cfg.VUs = val
		cfg.vusSet = true
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("stage") {
		raw, err := fs.GetStringArray("stage")
		if err != nil {
			return err
		}
		stages := make([]Stage, 0, len(raw))
		for _, item := range raw {
			st, err := parseStageFlag(item)
			if err != nil {
				return err
			}
			stages = append(stages, st)
		}
		cfg.Stages = stages
	}
	if fs.Changed("rps") {
		val, err := fs.GetInt("rps")
		if err != nil {
			return err
		}
		cfg.RPS = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("graceful-stop") {
		val, err := fs.GetDuration("graceful-stop")
		if err != nil {
			return err
		}
		cfg.GracefulStop = val
	}
	if fs.Changed("max-body-bytes") {
		val, err := fs.GetInt64("max-body-bytes")
		if err != nil {
			return err
		}
		cfg.MaxBodyBytes = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	boolFlags := map[string]*bool{
		"preflight":    &cfg.Preflight,
		"json-output":  &cfg.JSONOutput,
		"dashboard":    &cfg.Dashboard,
		"quiet":        &cfg.Quiet,
		"print-config": &cfg.PrintConfig,
		"log-errors":   &cfg.LogErrors,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	stringFlags := map[string]*string{
		"summary-export":       &cfg.SummaryExport,
		"metrics-addr":         &cfg.MetricsAddr,
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return nil
}
