package metrics

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Error kinds reported in Stats.Errors.
const (
	KindNetwork         = "network"
	KindHTTP            = "http"
	KindCheckEvaluation = "check_evaluation"
	KindTimeout         = "timeout"
	KindCanceled        = "canceled"
	KindOther           = "other"
)

// kinded is implemented by the request and check errors that know their own
// error kind.
type kinded interface {
	Kind() string
}

// ErrorKind classifies err for error breakdowns. Errors that report their own
// kind keep it; anything else is classified from the standard error values
// it wraps.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		if kind := k.Kind(); kind != "" {
			return kind
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}
	return KindOther
}
