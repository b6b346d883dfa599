package scenario

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vuramp/vuramp/internal/metrics"
)

// NetworkError is a transport-level failure: connection refused, DNS failure,
// timeout or a broken response body. It fails the request but never the VU.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Kind reports timeouts separately from other transport failures.
func (e *NetworkError) Kind() string {
	if e.Timeout() {
		return metrics.KindTimeout
	}
	return metrics.KindNetwork
}

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// HTTPError marks a response with a status of 400 or above.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Kind() string { return metrics.KindHTTP }

// CheckEvaluationError means a check could not be evaluated against a
// response, for example a JSON path on a body that is not JSON. It counts as a
// failed check.
type CheckEvaluationError struct {
	Check  string
	Reason string
}

func (e *CheckEvaluationError) Error() string {
	return fmt.Sprintf("check %q: %s", e.Check, e.Reason)
}

func (e *CheckEvaluationError) Kind() string { return metrics.KindCheckEvaluation }
