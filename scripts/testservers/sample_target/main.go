// Command sample_target serves a small clinic-style site for trying out
// vuramp locally. It answers the pages the bundled sample scenarios hit and
// can inject latency and failures.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vuramp/vuramp/internal/logging"
)

func main() {
	port := pflag.IntP("port", "p", 30080, "Listening port")
	latency := pflag.Duration("latency", 20*time.Millisecond, "Base latency added to every response")
	jitter := pflag.Duration("jitter", 30*time.Millisecond, "Random latency added on top of --latency")
	errorRate := pflag.Float64("error-rate", 0, "Fraction of requests answered with 503")
	pflag.Parse()

	log, err := logging.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h := newHandler(behavior{latency: *latency, jitter: *jitter, errorRate: *errorRate})
	if err := serve(ctx, fmt.Sprintf(":%d", *port), h, log); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func serve(ctx context.Context, addr string, h http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Infow("sample target listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Infow("sample target stopped")
	return nil
}
