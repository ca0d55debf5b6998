package validate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/birthplace/internal/lookup"
	"github.com/ppiankov/birthplace/internal/util"
)

const verifyMaxRetries = 3

// ErrNoTable is returned when there is no mapping table to verify
var ErrNoTable = errors.New("no mapping table loaded")

// verifySleepFunc is the sleep between retries (injectable for tests)
var verifySleepFunc = time.Sleep

// TargetResult is the reachability of one modern locator
type TargetResult struct {
	ModernName  string `json:"modern_name"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code,omitempty"`
	Reachable   bool   `json:"reachable"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Verifier checks that the canonical paths of a lookup table resolve on a wiki
type Verifier struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string
}

// NewVerifier creates a verifier
func NewVerifier(timeout time.Duration, maxWorkers int, userAgent, httpProxy, httpsProxy, noProxy string) *Verifier {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	return &Verifier{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		maxWorkers: maxWorkers,
		userAgent:  userAgent,
	}
}

// Verify resolves every canonical path of m against baseURL. Results follow
// the order of m.Targets().
func (v *Verifier) Verify(ctx context.Context, baseURL string, m *lookup.Matcher) ([]TargetResult, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if m == nil {
		return nil, ErrNoTable
	}

	targets := m.Targets()
	results := make([]TargetResult, len(targets))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, target := range targets {
		results[i] = TargetResult{
			ModernName: target.ModernName,
			Path:       target.CanonicalPath,
			URL:        base.ResolveReference(&url.URL{Path: target.CanonicalPath}).String(),
		}

		wg.Add(1)
		go func(r *TargetResult) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				r.Error = "context cancelled"
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			v.checkWithRetry(ctx, r)
		}(&results[i])
	}

	wg.Wait()
	return results, nil
}

// Unreachable filters results down to the locators that did not resolve
func Unreachable(results []TargetResult) []TargetResult {
	var out []TargetResult
	for _, r := range results {
		if !r.Reachable {
			out = append(out, r)
		}
	}
	return out
}

func (v *Verifier) checkWithRetry(ctx context.Context, r *TargetResult) {
	for attempt := 0; attempt < verifyMaxRetries; attempt++ {
		v.check(ctx, r)
		if !isRetryable(r) {
			return
		}
		if attempt < verifyMaxRetries-1 {
			verifySleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
}

// check issues a HEAD request and falls back to GET when the server does not
// allow HEAD
func (v *Verifier) check(ctx context.Context, r *TargetResult) {
	r.Error, r.StatusCode, r.Reachable, r.RedirectURL = "", 0, false, ""

	resp, err := v.do(ctx, http.MethodHead, r.URL)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		_ = resp.Body.Close()
		resp, err = v.do(ctx, http.MethodGet, r.URL)
	}
	if err != nil {
		r.Error = fmt.Sprintf("request failed: %v", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	r.StatusCode = resp.StatusCode
	r.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400
	if final := resp.Request.URL.String(); final != r.URL {
		r.RedirectURL = final
	}
}

func (v *Verifier) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}
	return v.httpClient.Do(req)
}

func isRetryable(r *TargetResult) bool {
	if r.StatusCode == http.StatusTooManyRequests || (r.StatusCode >= 500 && r.StatusCode < 600) {
		return true
	}
	s := strings.ToLower(r.Error)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
