package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

// robotsTTL bounds how long a host's robots.txt is trusted
const robotsTTL = 6 * time.Hour

// RobotsChecker checks robots.txt compliance before an article is fetched
type RobotsChecker struct {
	cache      *gocache.Cache
	httpClient *http.Client
	userAgent  string
	agent      string
}

// NewRobotsChecker creates a checker that identifies as userAgent
func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return NewRobotsCheckerWithClient(userAgent, &http.Client{Timeout: timeout})
}

// NewRobotsCheckerWithClient shares the fetcher's transport (proxy, TLS)
func NewRobotsCheckerWithClient(userAgent string, client *http.Client) *RobotsChecker {
	return &RobotsChecker{
		cache:      gocache.New(robotsTTL, time.Hour),
		httpClient: client,
		userAgent:  userAgent,
		agent:      NormalizeUserAgent(userAgent),
	}
}

// CanFetch reports whether rawURL may be fetched and the crawl delay the
// host asks for. An unreachable robots.txt allows the fetch.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return false, 0, fmt.Errorf("parse URL: missing host in %q", rawURL)
	}

	data, err := r.robotsFor(ctx, parsed)
	if err != nil {
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	var delay time.Duration
	if group := data.FindGroup(r.agent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, r.agent), delay, nil
}

// IsAllowed returns only the allowed status
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	allowed, _, _ := r.CanFetch(ctx, rawURL)
	return allowed
}

// Clear forgets every cached robots.txt
func (r *RobotsChecker) Clear() {
	r.cache.Flush()
}

func (r *RobotsChecker) robotsFor(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := target.Scheme + "://" + target.Host
	if v, ok := r.cache.Get(host); ok {
		return v.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache.SetDefault(host, data)
	return data, nil
}

// NormalizeUserAgent reduces a User-Agent header to the product token used
// in robots.txt groups, e.g. "Birthplace/0.1 (+url)" becomes "Birthplace"
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.Split(parts[0], "/")[0]
}
