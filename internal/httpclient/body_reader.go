package httpclient

import (
	"bytes"
	"io"
	"net/http"
)

type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
}

// NewBodySource returns a replayable source for an inline request body.
func NewBodySource(body string) BodySource {
	if body == "" {
		return emptyBodySource{}
	}
	return &inlineBodySource{data: []byte(body)}
}

type inlineBodySource struct {
	data []byte
}

func (s *inlineBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *inlineBodySource) ContentLength() (int64, bool) {
	return int64(len(s.data)), true
}

type emptyBodySource struct{}

func (emptyBodySource) NewReader() (io.ReadCloser, error) {
	return http.NoBody, nil
}

func (emptyBodySource) ContentLength() (int64, bool) {
	return 0, true
}

// ReadBody reads at most limit bytes from r and drains the rest so the
// connection can be reused. truncated reports whether bytes were dropped.
// A limit of zero or less reads nothing.
func ReadBody(r io.Reader, limit int64) (body []byte, truncated bool, err error) {
	if limit > 0 {
		body, err = io.ReadAll(io.LimitReader(r, limit))
		if err != nil {
			return body, false, err
		}
	}
	n, err := io.Copy(io.Discard, r)
	return body, n > 0, err
}
