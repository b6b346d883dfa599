package runner

import "fmt"

// PreflightError means the target could not be reached before load started.
type PreflightError struct {
	URL string
	Err error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight: %s is unreachable: %v", e.URL, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }
