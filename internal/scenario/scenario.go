// Package scenario executes the ordered HTTP steps a virtual user repeats.
package scenario

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vuramp/vuramp/internal/config"
	"github.com/vuramp/vuramp/internal/httpclient"
	"github.com/vuramp/vuramp/internal/tracing"
)

const maxErrorBodyBytes = 1024

// Response is the immutable outcome of one step request.
type Response struct {
	Step      string
	Method    string
	URL       string
	Status    int
	Latency   time.Duration
	Body      []byte
	Header    http.Header
	Truncated bool
	// Err is a *NetworkError when no usable response was received.
	Err error
}

// Failure returns why the request counts as failed, or nil. Network errors
// and statuses of 400 and above are failures.
func (r *Response) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.Status >= 400 {
		snippet := r.Body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return &HTTPError{StatusCode: r.Status, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}

// Step is one compiled scenario step.
type Step struct {
	Name    string
	builder *httpclient.RequestBuilder
	Checks  []Check
	Pause   time.Duration
}

// StepResult is what a VU reports after each step.
type StepResult struct {
	Response *Response
	Checks   []CheckResult
}

// Options configure a Runner.
type Options struct {
	Client       *http.Client
	Timeout      time.Duration // used when Client is nil
	RPS          int           // global cap across all VUs; 0 means unlimited
	MaxBodyBytes int64
	Tracer       trace.Tracer
	Propagate    bool
	Limiter      *rate.Limiter // optional injection for tests
}

// Runner holds the compiled scenario and everything needed to execute it. One
// Runner is shared by all VUs.
type Runner struct {
	steps     []Step
	client    *http.Client
	limiter   *rate.Limiter
	maxBody   int64
	tracer    trace.Tracer
	propagate bool
}

// New compiles cfg.Scenario, or the default scenario when none is configured.
func New(cfg config.Config, opts Options) (*Runner, error) {
	defs := cfg.Scenario
	if len(defs) == 0 {
		defs = config.DefaultScenario()
	}

	steps := make([]Step, 0, len(defs))
	for idx, def := range defs {
		builder, err := httpclient.NewRequestBuilder(cfg.BaseURL, def)
		if err != nil {
			return nil, fmt.Errorf("scenario step %d (%s): %w", idx, def.Name, err)
		}
		name := def.Name
		if name == "" {
			target := def.Path
			if def.URL != "" {
				target = def.URL
			}
			if target == "" {
				target = "/"
			}
			name = builder.Method() + " " + target
		}
		step := Step{Name: name, builder: builder, Pause: def.Pause}
		for _, c := range def.Checks {
			chk, err := CompileCheck(c)
			if err != nil {
				return nil, fmt.Errorf("scenario step %d (%s): %w", idx, name, err)
			}
			step.Checks = append(step.Checks, chk)
		}
		steps = append(steps, step)
	}

	client := opts.Client
	if client == nil {
		client = httpclient.NewClient(opts.Timeout)
	}
	limiter := opts.Limiter
	if limiter == nil && opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS)
	}

	return &Runner{
		steps:     steps,
		client:    client,
		limiter:   limiter,
		maxBody:   opts.MaxBodyBytes,
		tracer:    opts.Tracer,
		propagate: opts.Propagate,
	}, nil
}

func (r *Runner) Steps() []Step {
	return r.steps
}

// StepNames lists step names in declaration order.
func (r *Runner) StepNames() []string {
	names := make([]string, len(r.steps))
	for i, st := range r.steps {
		names[i] = st.Name
	}
	return names
}

// CheckNames lists distinct check names in declaration order.
func (r *Runner) CheckNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, st := range r.steps {
		for _, chk := range st.Checks {
			if _, ok := seen[chk.Name]; ok {
				continue
			}
			seen[chk.Name] = struct{}{}
			names = append(names, chk.Name)
		}
	}
	return names
}

// RunIteration executes every step once, reporting each result. ctx
// interrupts the iteration between steps, during pauses and while waiting on
// the rate limiter. Requests run under reqCtx instead, so interrupting never
// cancels a request in flight. It reports whether all steps ran.
func (r *Runner) RunIteration(ctx, reqCtx context.Context, report func(StepResult)) bool {
	for i := range r.steps {
		step := &r.steps[i]
		if ctx.Err() != nil {
			return false
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return false
			}
		}

		resp := r.Do(reqCtx, step)
		report(StepResult{Response: resp, Checks: EvaluateAll(step.Checks, resp)})

		if step.Pause > 0 && !Sleep(ctx, step.Pause) {
			return false
		}
	}
	return true
}

// Do issues the request for step and measures it. Failures are carried in the
// returned Response, never returned as errors.
func (r *Runner) Do(ctx context.Context, step *Step) *Response {
	resp := &Response{
		Step:   step.Name,
		Method: step.builder.Method(),
		URL:    step.builder.Target(),
	}

	var span trace.Span
	if r.tracer != nil {
		ctx, span = tracing.StartRequestSpan(ctx, r.tracer, resp.Method, step.Name)
		defer func() {
			tracing.EndSpan(span, resp.Failure(), tracing.StatusAttr(resp.Status))
		}()
	}

	req, err := step.builder.Build(ctx)
	if err != nil {
		resp.Err = &NetworkError{Method: resp.Method, URL: resp.URL, Err: err}
		return resp
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	httpResp, err := r.client.Do(req)
	if err != nil {
		resp.Latency = time.Since(start)
		resp.Err = &NetworkError{Method: resp.Method, URL: resp.URL, Err: err}
		return resp
	}
	defer httpResp.Body.Close()

	body, truncated, err := httpclient.ReadBody(httpResp.Body, r.maxBody)
	resp.Latency = time.Since(start)
	resp.Status = httpResp.StatusCode
	resp.Header = httpResp.Header
	resp.Body = body
	resp.Truncated = truncated
	if err != nil {
		resp.Err = &NetworkError{Method: resp.Method, URL: resp.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp
}

// Sleep pauses for d and reports whether the full pause elapsed before ctx
// was cancelled.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
