package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"khwaaish/pkg/logger"
)

// newProxy forwards browser calls under the configured prefixes to the
// automation service. The prefix is stripped before forwarding.
func newProxy(upstream string) (http.Handler, error) {
	upstream = strings.TrimSpace(upstream)
	if upstream == "" {
		return nil, fmt.Errorf("api.upstream is empty")
	}
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid api.upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid api.upstream %q", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WarnCF("server", "API proxy request failed", map[string]interface{}{
			"path":            r.URL.Path,
			logger.FieldError: err.Error(),
		})
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}
