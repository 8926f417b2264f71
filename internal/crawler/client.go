package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hacktown/internal/config"
	"hacktown/internal/models"
	"hacktown/internal/profile"
	"hacktown/pkg/utils"
)

const defaultBodyLimit = 4 << 20

// Page is one decoded page of a date's schedule.
type Page struct {
	Date     string
	Sessions []models.Session
	Number   int
	LastPage int
}

// Fetcher retrieves one page of sessions for a date.
type Fetcher interface {
	FetchPage(ctx context.Context, date string, page int) (*Page, error)
}

// Client issues schedule requests against the upstream API.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	headers    http.Header
	loc        *time.Location
	api        config.APIConfig
	timeout    time.Duration
	bodyLimit  int64
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for api using the timeouts and connection cap of p.
// Session times without an explicit offset are read in loc.
func NewClient(api config.APIConfig, p profile.Profile, loc *time.Location, opts ...ClientOption) *Client {
	if loc == nil {
		loc = time.UTC
	}

	c := &Client{
		httpClient: newHTTPClient(p.MaxConcurrentRequests),
		headers:    utils.NewHTTPHelper().BuildHeaders(api.UserAgent, api.Headers),
		loc:        loc,
		api:        api,
		timeout:    p.RequestTimeout,
		bodyLimit:  int64(api.MaxBodyKB) * 1024,
	}

	if c.bodyLimit <= 0 {
		c.bodyLimit = defaultBodyLimit
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// newHTTPClient builds a client whose pool never exceeds maxConns per host.
// Request deadlines come from the per-call context. Cookies set by the
// warm-up request are replayed on later requests.
func newHTTPClient(maxConns int) *http.Client {
	if maxConns < 1 {
		maxConns = 1
	}

	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   15 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          maxConns,
			MaxIdleConnsPerHost:   maxConns,
			MaxConnsPerHost:       maxConns,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

// RequestURL returns the URL fetched for date and page.
func (c *Client) RequestURL(date string, page int) (string, error) {
	u, err := url.Parse(c.api.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	for k, v := range c.api.Params {
		q.Set(k, v)
	}

	q.Del(c.api.DateParam)

	for _, v := range c.api.DateValues {
		q.Add(c.api.DateParam, strings.ReplaceAll(v, config.DatePlaceholder, date))
	}

	q.Set(c.api.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FetchPage performs a single GET for date and page. Every failure is a
// *FetchError whose Kind tells the retrier how to back off.
func (c *Client) FetchPage(ctx context.Context, date string, page int) (*Page, error) {
	fail := func(kind FailureKind, status int, err error) (*Page, error) {
		return nil, &FetchError{Kind: kind, Date: date, Page: page, StatusCode: status, Err: err}
	}

	target, err := c.RequestURL(date, page)
	if err != nil {
		return fail(KindHTTPError, 0, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fail(KindHTTPError, 0, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(classifyTransportError(err), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return fail(classifyStatus(resp.StatusCode), resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.bodyLimit+1))
	if err != nil {
		return fail(classifyTransportError(err), resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if int64(len(body)) > c.bodyLimit {
		return fail(KindMalformedResponse, resp.StatusCode, fmt.Errorf("%w: %d KB", ErrBodyTooLarge, c.bodyLimit/1024))
	}

	sessions, lastPage, err := DecodePage(body, c.loc)
	if err != nil {
		return fail(KindMalformedResponse, resp.StatusCode, err)
	}

	return &Page{Date: date, Number: page, LastPage: lastPage, Sessions: sessions}, nil
}

// classifyStatus maps a non-2xx status to a failure kind. The upstream API
// answers 403 when it throttles, so it counts as rate limiting.
func classifyStatus(status int) FailureKind {
	switch status {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return KindRateLimited
	default:
		return KindHTTPError
	}
}

func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindHTTPError
}
