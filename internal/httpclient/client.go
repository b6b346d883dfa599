package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vuramp/vuramp/internal/config"
)

// RequestBuilder produces requests for one scenario step. It is immutable and
// shared by every VU.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    BodySource
}

// NewRequestBuilder resolves step against baseURL. An absolute step URL takes
// precedence over the base URL.
func NewRequestBuilder(baseURL string, step config.Step) (*RequestBuilder, error) {
	target, err := resolveTarget(baseURL, step)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(step.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := http.Header{}
	for key, value := range step.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    NewBodySource(step.Body),
	}, nil
}

func resolveTarget(baseURL string, step config.Step) (string, error) {
	if raw := strings.TrimSpace(step.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("step url: %w", err)
		}
		if !u.IsAbs() {
			return "", fmt.Errorf("step url %q is not absolute", raw)
		}
		return u.String(), nil
	}

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", errors.New("base URL is required")
	}
	path := strings.TrimSpace(step.Path)
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := base + path
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("step path: %w", err)
	}
	return target, nil
}

func (b *RequestBuilder) Method() string { return b.method }
func (b *RequestBuilder) Target() string { return b.target }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return b.body.NewReader()
	}

	return req, nil
}

// NewClient returns a client tuned for many concurrent VUs against few hosts.
// timeout bounds each request end to end; zero disables it.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
