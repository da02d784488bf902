// Package httpclient provides the HTTP client used to fetch the remote index.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/dnscache"
)

const (
	// DefaultTimeout bounds a whole request including the body transfer
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the initial backoff between attempts
	DefaultBaseDelay = 500 * time.Millisecond
	// UserAgent is sent with every request
	UserAgent = "appdir/1.0"

	dnsRefreshInterval = 5 * time.Minute
	maxErrorBodySize   = 1024
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client fetches remote resources.
type Client interface {
	// Download fetches url into dest, replacing any existing file, and returns the number of bytes written
	Download(ctx context.Context, url, dest string) (int64, error)
}

// DefaultClient is a Client with retries, exponential backoff and DNS caching.
type DefaultClient struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration

	resolver *dnscache.Resolver
	stop     chan struct{}
}

var _ Client = (*DefaultClient)(nil)

// Option configures a DefaultClient.
type Option func(*DefaultClient)

// WithHTTPClient sets a custom HTTP client, bypassing the DNS cached transport.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DefaultClient) {
		d.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *DefaultClient) {
		d.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(d *DefaultClient) {
		d.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(delay time.Duration) Option {
	return func(d *DefaultClient) {
		d.baseDelay = delay
	}
}

// NewDefaultClient creates a client with the given timeout. A zero timeout uses DefaultTimeout.
// Call Close to stop the background DNS refresh.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	d := &DefaultClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  UserAgent,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		resolver:   resolver,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.refreshDNS()
	return d
}

// Close stops the background DNS cache refresh. It is safe to call more than once.
func (d *DefaultClient) Close() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
}

func (d *DefaultClient) refreshDNS() {
	ticker := time.NewTicker(dnsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.resolver.Refresh(true)
		case <-d.stop:
			return
		}
	}
}

// Download streams url into dest. The body is written to a temporary file in
// the destination directory and renamed over dest once complete, so a failed
// transfer never leaves a truncated dest behind.
func (d *DefaultClient) Download(ctx context.Context, url, dest string) (int64, error) {
	resp, err := d.do(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	slog.Debug("Downloaded file", "url", url, "dest", dest, "bytes", written)
	return written, nil
}

// do performs a GET with retries on rate limiting and server errors.
// On success the caller owns the response body.
func (d *DefaultClient) do(ctx context.Context, url string) (*http.Response, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = d.baseDelay
	expBackoff.RandomizationFactor = 0.1
	expBackoff.Multiplier = 2

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("Retrying request", "url", url, "error", err, "wait", wait)
		}),
	}
	if d.maxRetries >= 0 {
		opts = append(opts, backoff.WithMaxTries(uint(d.maxRetries)+1))
	}

	return backoff.Retry(ctx, func() (*http.Response, error) {
		resp, err := d.doOnce(ctx, url)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, opts...)
}

func (d *DefaultClient) doOnce(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	_ = resp.Body.Close()
	message := string(body)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return nil, NewHTTPError(resp.StatusCode, url, message)
}
