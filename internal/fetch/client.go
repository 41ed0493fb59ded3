// Package fetch wraps one outbound call per external source with retry,
// circuit breaking, and degrade-to-stale semantics, and tracks how fresh
// each source's data is.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the per-source contract the resilience wrapper composes
// around. Implementations perform exactly one live call per Fetch and
// raise one of the typed errors on failure.
type Client[T any] interface {
	// Fetch performs the live call and returns a parsed batch.
	Fetch(ctx context.Context) (T, error)

	// Source is the stable source name carried on errors and log lines.
	Source() string

	// Interval is the expected refresh cadence; data older than this
	// counts as stale.
	Interval() time.Duration
}

// maxResponseBytes caps feed responses. Anything larger is treated as a
// malformed response rather than buffered without bound.
const maxResponseBytes = 10 << 20

// Get performs a GET against url and returns the capped body, translating
// failures into the typed errors attributed to source.
func Get(ctx context.Context, hc *http.Client, source, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Source: source, Err: err}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &NetworkError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Source: source, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &NetworkError{Source: source, Err: err}
	}
	if len(body) > maxResponseBytes {
		return nil, &DecodeError{Source: source, Err: fmt.Errorf("response exceeds %d bytes", maxResponseBytes)}
	}
	return body, nil
}

// GetJSON performs a GET and decodes the JSON body into out.
func GetJSON(ctx context.Context, hc *http.Client, source, url, userAgent string, out any) error {
	body, err := Get(ctx, hc, source, url, userAgent)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Source: source, Err: err}
	}
	return nil
}
