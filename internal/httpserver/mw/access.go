package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/utils"
)

func passthrough(next http.Handler) http.Handler { return next }

// AllowOnlyCIDRS admits only callers whose address matches one of allowed
// (plain IPs or CIDRs). An empty list disables the check.
// trustProxy resolves the caller from proxy headers; see utils.ClientIP.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("cidr filter disabled")
		return passthrough
	}
	log.Debug("cidr filter enabled",
		logger.Strings("allowed", allowed),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Warn("caller address rejected",
					logger.String("ip", ip),
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("path", r.URL.Path))
				reject(w, http.StatusForbidden, "forbidden", "address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnforceHost admits only requests whose Host header matches one of
// allowedHosts. "*.example.com" matches any subdomain but not example.com
// itself. Ports are ignored and matching is case-insensitive. An empty list
// disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			patterns = append(patterns, h)
		}
	}
	if len(patterns) == 0 {
		log.Debug("host filter disabled")
		return passthrough
	}
	log.Debug("host filter enabled", logger.Strings("hosts", patterns))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(utils.ParseHostNoPort(r.Host))
			for _, p := range patterns {
				if matchHost(host, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Warn("host rejected",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			reject(w, http.StatusForbidden, "forbidden", "host not allowed")
		})
	}
}

func matchHost(host, pattern string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasPrefix(suffix, ".") && len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	}
	return host == pattern
}
