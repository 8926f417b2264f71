package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// warmupTimeout bounds the warm-up request independently of the profile.
const warmupTimeout = 15 * time.Second

// Warmer is implemented by fetchers that can open a browsing session
// before the first schedule request.
type Warmer interface {
	WarmUp(ctx context.Context) error
}

// WarmUp visits the configured site root with the same headers as the
// schedule requests so that any session cookies are in place. It is a
// no-op when no warm-up URL is configured.
func (c *Client) WarmUp(ctx context.Context) error {
	if c.api.WarmupURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.WarmupURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create warm-up request: %w", err)
	}

	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("warm-up request failed: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.bodyLimit))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("warm-up: %w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}
