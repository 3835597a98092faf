// Package origin abstracts the vendor's remote HTTP endpoint that serves
// ciphertext track bodies, so C4/C5 depend on a small interface instead of
// net/http directly.
package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Range is an HTTP byte range request. End == -1 means an open-ended range
// ("bytes=Start-"); otherwise the range is inclusive ("bytes=Start-End").
type Range struct {
	Start int64
	End   int64
}

// Header renders the Range request header value.
func (r Range) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Response is the result of a GET against the origin.
type Response struct {
	StatusCode int
	// RangeHonored is true iff a Range was requested and the origin
	// responded 206 Partial Content. A ranged request answered 200 OK
	// must be treated as "range not honored" by the caller.
	RangeHonored bool
	Body         io.ReadCloser
}

// Origin fetches track bodies, optionally starting at a byte offset.
type Origin interface {
	// Get issues GET url. If rng is non-nil, a Range header is sent.
	// The caller must close Response.Body.
	Get(ctx context.Context, url string, rng *Range) (*Response, error)
}

// HTTPOrigin is the real Origin backed by net/http.
type HTTPOrigin struct {
	Client *http.Client
}

// NewHTTPOrigin builds an HTTPOrigin with a sane default timeout-free
// client (streaming bodies may be long-lived; callers cancel via context).
func NewHTTPOrigin() *HTTPOrigin {
	return &HTTPOrigin{Client: &http.Client{}}
}

func (o *HTTPOrigin) Get(ctx context.Context, url string, rng *Range) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("origin: build request: %w", err)
	}
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	return &Response{
		StatusCode:   resp.StatusCode,
		RangeHonored: rng != nil && resp.StatusCode == http.StatusPartialContent,
		Body:         resp.Body,
	}, nil
}

// IsSuccess reports whether status is a 2xx response.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
