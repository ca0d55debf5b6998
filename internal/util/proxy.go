package util

import (
	"net/http"
	"net/url"
	"os"

	"golang.org/x/net/http/httpproxy"
)

// NewProxyFunc builds the proxy selector for outgoing fetches. Explicit
// settings win; anything left empty falls back to the HTTP_PROXY,
// HTTPS_PROXY and NO_PROXY environment variables.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" && noProxy == "" {
		return http.ProxyFromEnvironment
	}

	env := httpproxy.FromEnvironment()
	cfg := httpproxy.Config{
		HTTPProxy:  firstNonEmpty(httpProxy, env.HTTPProxy),
		HTTPSProxy: firstNonEmpty(httpsProxy, env.HTTPSProxy),
		NoProxy:    firstNonEmpty(noProxy, env.NoProxy),
		CGI:        os.Getenv("REQUEST_METHOD") != "",
	}
	proxy := cfg.ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
