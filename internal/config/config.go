package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the resolved run configuration. It is built once by the Loader and
// treated as read-only for the rest of the run.
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	VUs           int           `mapstructure:"vus"`
	Duration      time.Duration `mapstructure:"duration"`
	Stages        []Stage       `mapstructure:"stages"`
	Scenario      []Step        `mapstructure:"scenario"`
	RPS           int           `mapstructure:"rps"`
	Timeout       time.Duration `mapstructure:"timeout"`
	GracefulStop  time.Duration `mapstructure:"graceful_stop"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	Thresholds    []string      `mapstructure:"thresholds"`
	Tracing       TracingConfig `mapstructure:"tracing"`
	JSONOutput    bool          `mapstructure:"json_output"`
	Dashboard     bool          `mapstructure:"dashboard"`
	Quiet         bool          `mapstructure:"quiet"`
	SummaryExport string        `mapstructure:"summary_export"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	LogErrors     bool          `mapstructure:"log_errors"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	Preflight     bool          `mapstructure:"preflight"`
	PrintConfig   bool          `mapstructure:"-"`
	ConfigFile    string        `mapstructure:"-"`

	// vusSet records that vus was given explicitly, even as 0, so that
	// combining it with stages can be rejected.
	vusSet bool
}

// Stage is one ramp window: the target VU count is reached linearly over Duration,
// starting from the previous stage's target.
type Stage struct {
	Duration time.Duration `mapstructure:"duration"`
	Target   int           `mapstructure:"target"`
}

// Step is a single request of the scenario, followed by an optional pause.
type Step struct {
	Name    string            `mapstructure:"name"`
	Method  string            `mapstructure:"method"`
	Path    string            `mapstructure:"path"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Body    string            `mapstructure:"body"`
	Checks  []Check           `mapstructure:"checks"`
	Pause   time.Duration     `mapstructure:"pause"`
}

type CheckType string

const (
	CheckStatus         CheckType = "status"
	CheckStatusIn       CheckType = "status_in"
	CheckLatencyBelow   CheckType = "latency_below"
	CheckBodyContains   CheckType = "body_contains"
	CheckHeaderPresent  CheckType = "header_present"
	CheckJSONPathExists CheckType = "json_path_exists"
	CheckJSONPathEquals CheckType = "json_path_equals"
)

// Check declares one named assertion evaluated against every response of a step.
type Check struct {
	Name     string        `mapstructure:"name"`
	Type     CheckType     `mapstructure:"type"`
	Status   int           `mapstructure:"status"`
	StatusIn []int         `mapstructure:"status_in"`
	Max      time.Duration `mapstructure:"max"`
	Contains string        `mapstructure:"contains"`
	Header   string        `mapstructure:"header"`
	Path     string        `mapstructure:"path"`
	Value    string        `mapstructure:"value"`
}

// DisplayName returns the configured name or one derived from the check parameters.
func (c Check) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	switch c.Type {
	case CheckStatus:
		return fmt.Sprintf("status is %d", c.Status)
	case CheckStatusIn:
		return fmt.Sprintf("status in %v", c.StatusIn)
	case CheckLatencyBelow:
		return fmt.Sprintf("response time < %s", c.Max)
	case CheckBodyContains:
		return fmt.Sprintf("body contains %q", c.Contains)
	case CheckHeaderPresent:
		return fmt.Sprintf("header %s present", http.CanonicalHeaderKey(c.Header))
	case CheckJSONPathExists:
		return fmt.Sprintf("json %s exists", c.Path)
	case CheckJSONPathEquals:
		return fmt.Sprintf("json %s == %s", c.Path, c.Value)
	default:
		return string(c.Type)
	}
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether any tracing option was configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate != nil
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
// Propagation defaults to on when an exporter endpoint is configured.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return strings.TrimSpace(t.Endpoint) != ""
}

// IsRamped reports whether the run uses the stages shape.
func (c Config) IsRamped() bool {
	return len(c.Stages) > 0
}

// DefaultScenario is used when no scenario steps are configured.
func DefaultScenario() []Step {
	return []Step{{
		Name:   "GET /",
		Method: http.MethodGet,
		Path:   "/",
		Checks: []Check{{Type: CheckStatus, Status: http.StatusOK}},
	}}
}

// ConfigError reports every problem found in a configuration. It is the only
// fatal error class: the run never starts when one is returned.
type ConfigError struct {
	issues []string
}

func (e ConfigError) Error() string {
	if len(e.issues) == 0 {
		return "invalid configuration"
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.issues, "; "))
}

func (e ConfigError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// NewConfigError reports configuration problems found outside Validate, such
// as malformed threshold expressions.
func NewConfigError(issues ...string) ConfigError {
	return ConfigError{issues: append([]string(nil), issues...)}
}

func configErrorf(format string, args ...interface{}) error {
	return ConfigError{issues: []string{fmt.Sprintf(format, args...)}}
}

const highVUs = 500

// Warnings lists settings that are valid but worth flagging before a run.
func (c Config) Warnings() []string {
	var warnings []string
	if peak := c.PeakVUs(); peak > highVUs {
		warnings = append(warnings, fmt.Sprintf("WARNING: High VU count configured (%d). Ensure you have authorization to test the target system.", peak))
	}
	return warnings
}

// PeakVUs is the highest VU count the config can reach: the flat VU count or
// the largest stage target, whichever is greater.
func (c Config) PeakVUs() int {
	peak := c.VUs
	for _, st := range c.Stages {
		peak = max(peak, st.Target)
	}
	return peak
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateBaseURL(c.BaseURL, c.Scenario)...)
	issues = append(issues, validateShape(c)...)

	if c.RPS < 0 {
		issues = append(issues, "rps must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		issues = append(issues, "max_body_bytes must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be 'console' or 'json', got %q", c.LogFormat))
	}

	issues = append(issues, validateSteps(c.Scenario)...)

	if len(issues) > 0 {
		return ConfigError{issues: issues}
	}
	return nil
}

func validateBaseURL(base string, steps []Step) []string {
	base = strings.TrimSpace(base)
	if base == "" {
		if len(steps) == 0 {
			return []string{"base_url is required (use --help for usage information)"}
		}
		for _, st := range steps {
			if strings.TrimSpace(st.URL) == "" {
				return []string{"base_url is required unless every scenario step sets url"}
			}
		}
		return nil
	}
	if issue := checkAbsoluteURL(base); issue != "" {
		return []string{"base_url " + issue}
	}
	return nil
}

func checkAbsoluteURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("must include a host, got %q", raw)
	}
	return ""
}

func validateShape(c Config) []string {
	var issues []string
	flat := c.vusSet || c.VUs != 0 || c.Duration != 0

	if c.IsRamped() {
		if c.vusSet || c.VUs != 0 {
			issues = append(issues, "vus cannot be combined with stages")
		}
		if c.Duration != 0 {
			issues = append(issues, "duration cannot be combined with stages")
		}
		var total time.Duration
		for idx, st := range c.Stages {
			if st.Duration < 0 {
				issues = append(issues, fmt.Sprintf("stages[%d]: duration must be >= 0", idx))
			}
			if st.Target < 0 {
				issues = append(issues, fmt.Sprintf("stages[%d]: target must be >= 0", idx))
			}
			total += st.Duration
		}
		if total <= 0 {
			issues = append(issues, "stages must span a total duration > 0")
		}
		return issues
	}

	if !flat {
		return []string{"either stages or vus and duration are required"}
	}
	if c.VUs < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	return issues
}

func validateSteps(steps []Step) []string {
	var issues []string
	for idx, st := range steps {
		prefix := fmt.Sprintf("scenario[%d]", idx)
		if strings.TrimSpace(st.URL) != "" {
			if issue := checkAbsoluteURL(st.URL); issue != "" {
				issues = append(issues, fmt.Sprintf("%s: url %s", prefix, issue))
			}
			if strings.TrimSpace(st.Path) != "" {
				issues = append(issues, fmt.Sprintf("%s: path and url are mutually exclusive", prefix))
			}
		}
		if m := strings.TrimSpace(st.Method); m != "" && strings.ContainsAny(m, " \t\r\n") {
			issues = append(issues, fmt.Sprintf("%s: invalid method %q", prefix, st.Method))
		}
		if st.Pause < 0 {
			issues = append(issues, fmt.Sprintf("%s: pause must be >= 0", prefix))
		}
		for key, value := range st.Headers {
			if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
				issues = append(issues, fmt.Sprintf("%s: invalid header %q", prefix, key))
			}
		}
		for cIdx, chk := range st.Checks {
			issues = append(issues, validateCheck(fmt.Sprintf("%s.checks[%d]", prefix, cIdx), chk)...)
		}
	}
	return issues
}

func validateCheck(prefix string, chk Check) []string {
	switch chk.Type {
	case CheckStatus:
		if chk.Status < 100 || chk.Status > 599 {
			return []string{fmt.Sprintf("%s: status must be a valid HTTP status code", prefix)}
		}
	case CheckStatusIn:
		if len(chk.StatusIn) == 0 {
			return []string{fmt.Sprintf("%s: status_in requires at least one code", prefix)}
		}
	case CheckLatencyBelow:
		if chk.Max <= 0 {
			return []string{fmt.Sprintf("%s: max must be > 0 for latency_below", prefix)}
		}
	case CheckBodyContains:
		if chk.Contains == "" {
			return []string{fmt.Sprintf("%s: contains is required for body_contains", prefix)}
		}
	case CheckHeaderPresent:
		if strings.TrimSpace(chk.Header) == "" {
			return []string{fmt.Sprintf("%s: header is required for header_present", prefix)}
		}
	case CheckJSONPathExists, CheckJSONPathEquals:
		if strings.TrimSpace(chk.Path) == "" {
			return []string{fmt.Sprintf("%s: path is required for %s", prefix, chk.Type)}
		}
	case "":
		return []string{fmt.Sprintf("%s: type is required", prefix)}
	default:
		return []string{fmt.Sprintf("%s: unsupported type %q", prefix, chk.Type)}
	}
	return nil
}
