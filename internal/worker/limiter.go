package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter spaces requests per host so a batch never hammers one wiki
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLimiter creates a limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until the host of rawURL may be requested again
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostKey(rawURL)
	if err != nil {
		return err
	}
	return l.forHost(host).Wait(ctx)
}

// Allow reports whether a request to rawURL may go out now, consuming a
// token if so
func (l *Limiter) Allow(rawURL string) bool {
	host, err := hostKey(rawURL)
	if err != nil {
		return false
	}
	return l.forHost(host).Allow()
}

// Hosts returns the number of hosts seen so far
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = lim
	}
	return lim
}

// hostKey folds the mobile and desktop hosts of a wiki together
func hostKey(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("parse URL: no host in %q", rawURL)
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.Replace(host, ".m.", ".", 1), nil
}
