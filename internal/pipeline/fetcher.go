package pipeline

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/birthplace/internal/cache"
	"github.com/ppiankov/birthplace/internal/model"
	"github.com/ppiankov/birthplace/internal/util"
)

// ErrDisallowed is returned when robots.txt forbids fetching a page
var ErrDisallowed = errors.New("disallowed by robots.txt")

const fetchAttempts = 3

// fetchSleepFunc is swapped out by tests
var fetchSleepFunc = time.Sleep

// Fetcher fetches article pages
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64

	robots   *util.RobotsChecker
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewFetcher creates a Fetcher. Empty proxy settings fall back to the
// environment.
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, insecure bool, httpProxy, httpsProxy, noProxy string) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(httpProxy, httpsProxy, noProxy)
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		cache:     cache.Nop{},
	}
}

// WithRobots makes every fetch consult robots.txt first
func (f *Fetcher) WithRobots() *Fetcher {
	f.robots = util.NewRobotsCheckerWithClient(f.userAgent, f.httpClient)
	return f
}

// WithCache stores successful fetches in c
func (f *Fetcher) WithCache(c cache.Cache, ttl time.Duration) *Fetcher {
	if c == nil {
		c = cache.Nop{}
	}
	f.cache = c
	f.cacheTTL = ttl
	return f
}

// Client exposes the configured HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// FetchResult contains the fetched HTML and metadata
type FetchResult struct {
	HTML      string          `json:"html"`
	Meta      model.FetchMeta `json:"meta"`
	Subject   string          `json:"subject"`
	FinalURL  string          `json:"final_url"`
	FromCache bool            `json:"-"`
}

// FetchWithRetry retries transient failures (5xx, 429, connection errors)
// with a linear backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == fetchAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fetchSleepFunc(time.Duration(attempt) * time.Second)
	}
	return nil, lastErr
}

// Fetch retrieves one page, from the cache when possible
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	key := cache.PageKey(rawURL)
	if raw, ok := f.cache.Get(key); ok {
		var cached FetchResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.FromCache = true
			return &cached, nil
		}
		_ = f.cache.Delete(key)
	}

	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	meta := model.FetchMeta{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
		Headers:      make(map[string]string),
	}
	for _, key := range []string{"Content-Length", "Server", "Cache-Control"} {
		if val := resp.Header.Get(key); val != "" {
			meta.Headers[key] = val
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL.String()
	result := &FetchResult{
		HTML:     string(body),
		Meta:     meta,
		Subject:  extractSubject(finalURL),
		FinalURL: finalURL,
	}

	if raw, err := json.Marshal(result); err == nil {
		_ = f.cache.Set(key, raw, f.cacheTTL)
	}
	return result, nil
}

// isRetryableFetchError reports whether a fetch error is worth another try
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	if strings.HasPrefix(msg, "unexpected status: ") {
		code := strings.TrimPrefix(msg, "unexpected status: ")
		return strings.HasPrefix(code, "5") || strings.HasPrefix(code, "429")
	}
	return strings.Contains(msg, "connection")
}

// extractSubject turns an article URL into a readable title
func extractSubject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	last = strings.ReplaceAll(last, "_", " ")

	if idx := strings.LastIndex(last, "."); idx > 0 && len(last)-idx <= 5 {
		last = last[:idx]
	}
	return last
}
