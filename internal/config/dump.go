package config

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// The dump types mirror Config with durations rendered as strings, so the output
// can be fed back through --config unchanged.
type dumpConfig struct {
	BaseURL       string       `yaml:"base_url,omitempty"`
	VUs           int          `yaml:"vus,omitempty"`
	Duration      string       `yaml:"duration,omitempty"`
	Stages        []dumpStage  `yaml:"stages,omitempty"`
	Scenario      []dumpStep   `yaml:"scenario"`
	RPS           int          `yaml:"rps,omitempty"`
	Timeout       string       `yaml:"timeout"`
	GracefulStop  string       `yaml:"graceful_stop"`
	MaxBodyBytes  int64        `yaml:"max_body_bytes"`
	Thresholds    []string     `yaml:"thresholds,omitempty"`
	Tracing       *dumpTracing `yaml:"tracing,omitempty"`
	Preflight     bool         `yaml:"preflight,omitempty"`
	JSONOutput    bool         `yaml:"json_output,omitempty"`
	Dashboard     bool         `yaml:"dashboard,omitempty"`
	Quiet         bool         `yaml:"quiet,omitempty"`
	SummaryExport string       `yaml:"summary_export,omitempty"`
	MetricsAddr   string       `yaml:"metrics_addr,omitempty"`
	LogErrors     bool         `yaml:"log_errors,omitempty"`
	LogLevel      string       `yaml:"log_level"`
	LogFormat     string       `yaml:"log_format"`
}

type dumpStage struct {
	Duration string `yaml:"duration"`
	Target   int    `yaml:"target"`
}

type dumpStep struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	Checks  []dumpCheck       `yaml:"checks,omitempty"`
	Pause   string            `yaml:"pause,omitempty"`
}

type dumpCheck struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Status   int    `yaml:"status,omitempty"`
	StatusIn []int  `yaml:"status_in,omitempty,flow"`
	Max      string `yaml:"max,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Header   string `yaml:"header,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

type dumpTracing struct {
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Protocol    string  `yaml:"protocol,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure,omitempty"`
	Propagate   *bool   `yaml:"propagate,omitempty"`
}

// Dump writes the resolved configuration as YAML. The effective scenario is
// written even when the default one is in use.
func (c Config) Dump(w io.Writer) error {
	out := dumpConfig{
		BaseURL:       c.BaseURL,
		VUs:           c.VUs,
		Duration:      formatDuration(c.Duration),
		RPS:           c.RPS,
		Timeout:       c.Timeout.String(),
		GracefulStop:  c.GracefulStop.String(),
		MaxBodyBytes:  c.MaxBodyBytes,
		Thresholds:    c.Thresholds,
		Preflight:     c.Preflight,
		JSONOutput:    c.JSONOutput,
		Dashboard:     c.Dashboard,
		Quiet:         c.Quiet,
		SummaryExport: c.SummaryExport,
		MetricsAddr:   c.MetricsAddr,
		LogErrors:     c.LogErrors,
		LogLevel:      c.LogLevel,
		LogFormat:     c.LogFormat,
	}
	for _, st := range c.Stages {
		out.Stages = append(out.Stages, dumpStage{Duration: st.Duration.String(), Target: st.Target})
	}
	steps := c.Scenario
	if len(steps) == 0 {
		steps = DefaultScenario()
	}
	for _, st := range steps {
		ds := dumpStep{
			Name:    st.Name,
			Method:  st.Method,
			Path:    st.Path,
			URL:     st.URL,
			Headers: st.Headers,
			Body:    st.Body,
			Pause:   formatDuration(st.Pause),
		}
		for _, chk := range st.Checks {
			ds.Checks = append(ds.Checks, dumpCheck{
				Name:     chk.DisplayName(),
				Type:     string(chk.Type),
				Status:   chk.Status,
				StatusIn: chk.StatusIn,
				Max:      formatDuration(chk.Max),
				Contains: chk.Contains,
				Header:   chk.Header,
				Path:     chk.Path,
				Value:    chk.Value,
			})
		}
		out.Scenario = append(out.Scenario, ds)
	}
	if c.Tracing.Enabled() {
		out.Tracing = &dumpTracing{
			Endpoint:    c.Tracing.Endpoint,
			Protocol:    c.Tracing.Protocol,
			ServiceName: c.Tracing.ServiceName,
			SampleRate:  c.Tracing.SampleRate,
			Insecure:    c.Tracing.Insecure,
			Propagate:   c.Tracing.Propagate,
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
