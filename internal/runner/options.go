package runner

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options configure the Runner. Everything except the writers is optional.
type Options struct {
	Stdout io.Writer // final report
	Stderr io.Writer // live progress
	Logger *zap.SugaredLogger

	// Client replaces the HTTP client built from the configured timeout.
	Client *http.Client
	// Tick is the scheduler sampling interval; 0 uses the scheduler default.
	Tick time.Duration
	// ProgressInterval is how often the progress line is redrawn; 0 means
	// once per second.
	ProgressInterval time.Duration
}

func (o *Options) normalize() {
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = time.Second
	}
}
