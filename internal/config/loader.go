package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultGracefulStop = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the optional configuration file into a
// Config. Flag values override file values. Parse failures are returned as
// ConfigError so callers can treat them like validation failures.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, configErrorf("%v", err)
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, configErrorf("read config %s: %v", configPath, err)
		}
	}

	cfg := &Config{
		Timeout:      defaultTimeout,
		GracefulStop: defaultGracefulStop,
		MaxBodyBytes: defaultMaxBodyBytes,
		LogLevel:     "info",
		LogFormat:    "console",
		ConfigFile:   configPath,
		Tracing:      TracingConfig{SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, configErrorf("%v", err)
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, configErrorf("%v", err)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	normalizeSteps(cfg.Scenario)

	return cfg, nil
}

func normalizeSteps(steps []Step) {
	for i := range steps {
		st := &steps[i]
		st.Method = strings.ToUpper(strings.TrimSpace(st.Method))
		if st.Method == "" {
			st.Method = http.MethodGet
		}
		st.URL = strings.TrimSpace(st.URL)
		st.Path = strings.TrimSpace(st.Path)
		if st.URL == "" && st.Path != "" && !strings.HasPrefix(st.Path, "/") {
			st.Path = "/" + st.Path
		}
		if st.Name == "" {
			target := st.Path
			if st.URL != "" {
				target = st.URL
			}
			if target == "" {
				target = "/"
			}
			st.Name = st.Method + " " + target
		}
		if len(st.Headers) > 0 {
			canonical := make(map[string]string, len(st.Headers))
			for k, v := range st.Headers {
				canonical[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
			}
			st.Headers = canonical
		}
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "base_url", "baseurl", "base-url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		cfg.BaseURL = val
	}

	if raw, ok := lookupSetting(settings, "vus", "virtual_users", "virtualusers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("vus: %w", err)
		}
		cfg.VUs = val
		cfg.vusSet = true
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}

	if raw, ok := lookupSetting(settings, "scenario", "steps"); ok {
		steps, err := parseSteps(raw)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		cfg.Scenario = steps
	}

	if raw, ok := lookupSetting(settings, "rps"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rps: %w", err)
		}
		cfg.RPS = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "graceful_stop", "gracefulstop", "graceful-stop"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("graceful_stop: %w", err)
		}
		cfg.GracefulStop = dur
	}

	if raw, ok := lookupSetting(settings, "max_body_bytes", "maxbodybytes"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("max_body_bytes: %w", err)
		}
		cfg.MaxBodyBytes = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracing(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	boolTargets := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"json_output", "jsonoutput"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"quiet"}, &cfg.Quiet},
		{[]string{"log_errors", "logerrors"}, &cfg.LogErrors},
		{[]string{"preflight"}, &cfg.Preflight},
	}
	for _, target := range boolTargets {
		raw, ok := lookupSetting(settings, target.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", target.keys[0], err)
		}
		*target.dst = val
	}

	stringTargets := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"summary_export", "summaryexport"}, &cfg.SummaryExport},
		{[]string{"metrics_addr", "metricsaddr"}, &cfg.MetricsAddr},
		{[]string{"log_level", "loglevel"}, &cfg.LogLevel},
		{[]string{"log_format", "logformat"}, &cfg.LogFormat},
	}
	for _, target := range stringTargets {
		raw, ok := lookupSetting(settings, target.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", target.keys[0], err)
		}
		*target.dst = strings.TrimSpace(val)
	}

	return nil
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var st Stage
		if raw, ok := lookupSetting(entry, "duration"); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d duration: %w", idx, err)
			}
			st.Duration = dur
		}
		raw, ok := lookupSetting(entry, "target")
		if !ok {
			return nil, fmt.Errorf("index %d: target is required", idx)
		}
		val, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("index %d target: %w", idx, err)
		}
		st.Target = val
		stages = append(stages, st)
	}
	return stages, nil
}

// parseStageFlag parses the compact "duration:target" form used by --stage.
func parseStageFlag(value string) (Stage, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return Stage{}, fmt.Errorf("invalid stage %q (expected duration:target, e.g. 30s:10)", value)
	}
	dur, err := asDuration(parts[0])
	if err != nil {
		return Stage{}, fmt.Errorf("invalid stage %q: %w", value, err)
	}
	target, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Stage{}, fmt.Errorf("invalid stage %q: %w", value, err)
	}
	return Stage{Duration: dur, Target: target}, nil
}

func parseSteps(value interface{}) ([]Step, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		step, err := buildStep(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(settings map[string]interface{}) (Step, error) {
	var step Step
	stringFields := []struct {
		key string
		dst *string
	}{
		{"name", &step.Name},
		{"method", &step.Method},
		{"path", &step.Path},
		{"url", &step.URL},
		{"body", &step.Body},
	}
	for _, field := range stringFields {
		raw, ok := lookupSetting(settings, field.key)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return Step{}, fmt.Errorf("%s: %w", field.key, err)
		}
		*field.dst = val
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return Step{}, fmt.Errorf("headers: %w", err)
		}
		step.Headers = hdrs
	}
	if raw, ok := lookupSetting(settings, "pause", "sleep", "think_time"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return Step{}, fmt.Errorf("pause: %w", err)
		}
		step.Pause = dur
	}
	if raw, ok := lookupSetting(settings, "checks"); ok {
		checks, err := parseChecks(raw)
		if err != nil {
			return Step{}, fmt.Errorf("checks: %w", err)
		}
		step.Checks = checks
	}
	return step, nil
}

func parseChecks(value interface{}) ([]Check, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	checks := make([]Check, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		chk, err := buildCheck(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		checks = append(checks, chk)
	}
	return checks, nil
}

func buildCheck(settings map[string]interface{}) (Check, error) {
	var chk Check
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("name: %w", err)
		}
		chk.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("type: %w", err)
		}
		chk.Type = CheckType(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "status"); ok {
		val, err := asInt(raw)
		if err != nil {
			return Check{}, fmt.Errorf("status: %w", err)
		}
		chk.Status = val
	}
	if raw, ok := lookupSetting(settings, "status_in", "statusin"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return Check{}, fmt.Errorf("status_in: %w", err)
		}
		chk.StatusIn = val
	}
	if raw, ok := lookupSetting(settings, "max"); ok {
		dur, err := asLatency(raw)
		if err != nil {
			return Check{}, fmt.Errorf("max: %w", err)
		}
		chk.Max = dur
	}
	stringFields := []struct {
		key string
		dst *string
	}{
		{"contains", &chk.Contains},
		{"header", &chk.Header},
		{"path", &chk.Path},
		{"value", &chk.Value},
	}
	for _, field := range stringFields {
		raw, ok := lookupSetting(settings, field.key)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("%s: %w", field.key, err)
		}
		*field.dst = val
	}
	return chk, nil
}

// asLatency reads latency bounds; bare numbers are milliseconds, matching how
// response-time limits are usually written ("max: 500").
func asLatency(value interface{}) (time.Duration, error) {
	switch value.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		ms, err := asFloat64(value)
		if err != nil {
			n, ierr := asInt(value)
			if ierr != nil {
				return 0, ierr
			}
			ms = float64(n)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	default:
		return asDuration(value)
	}
}

func parseTracing(value interface{}) (TracingConfig, error) {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	var tc TracingConfig
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	} else {
		tc.SampleRate = 1.0
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
