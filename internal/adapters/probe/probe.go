// Package probe implements the HTTP health prober used by the poller and
// the smoke tests.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProber issues GET requests with a bounded per-call timeout.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Probe performs one GET against url. Any 2xx status is healthy; anything
// else, including transport errors, is a failed probe. The returned
// duration is the request round-trip time.
func (p *HTTPProber) Probe(ctx context.Context, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused between attempts.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return elapsed, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return elapsed, nil
}
