package httpclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// defaultTripThreshold is the number of consecutive failures that opens a breaker
const defaultTripThreshold = 5

// CircuitBreakerClient wraps a Client with per-host circuit breakers, so a
// repository that keeps failing is not hammered on every sync.
type CircuitBreakerClient struct {
	client    Client
	threshold int64

	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

var _ Client = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps client. A threshold <= 0 uses the default of 5 consecutive failures.
func NewCircuitBreakerClient(client Client, threshold int64) *CircuitBreakerClient {
	if threshold <= 0 {
		threshold = defaultTripThreshold
	}
	return &CircuitBreakerClient{
		client:    client,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates the circuit breaker for a host.
func (c *CircuitBreakerClient) getBreaker(host string) *circuit.Breaker {
	c.mu.RLock()
	breaker, exists := c.breakers[host]
	c.mu.RUnlock()
	if exists {
		return breaker
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, exists := c.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(c.threshold),
	})
	c.breakers[host] = breaker
	return breaker
}

// Download wraps the underlying client's Download with circuit breaker logic.
func (c *CircuitBreakerClient) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	var written int64
	err := c.call(rawURL, func() error {
		var err error
		written, err = c.client.Download(ctx, rawURL, dest)
		return err
	})
	return written, err
}

func (c *CircuitBreakerClient) call(rawURL string, fn func() error) error {
	host := hostOf(rawURL)
	breaker := c.getBreaker(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}
	return breaker.Call(fn, 0)
}

// BreakerStates returns "open" or "closed" for every host contacted so far.
func (c *CircuitBreakerClient) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, breaker := range c.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// hostOf extracts the host used to group breakers.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
