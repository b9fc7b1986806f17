package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path; a trailing "/" matches by prefix
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Window length
}

// SubmissionEndpoint is the only throttled route.
const SubmissionEndpoint = "/applications"

// DefaultEndpointConfigs limits application submissions to limit per window.
func DefaultEndpointConfigs(limit int, window time.Duration) []EndpointConfig {
	return []EndpointConfig{
		{Path: SubmissionEndpoint, Method: http.MethodPost, Limit: limit, Window: window},
	}
}

// ParseIPList turns a list of addresses into a lookup set, skipping blanks.
func ParseIPList(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}

// MatchEndpoint returns the configuration for path and method, preferring an
// exact path over a prefix entry, or nil when none applies.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}

	var prefixMatch *EndpointConfig
	for i := range configs {
		config := &configs[i]
		if config.Method != method {
			continue
		}
		if config.Path == path {
			return config
		}
		if prefixMatch == nil && strings.HasSuffix(config.Path, "/") && strings.HasPrefix(path, config.Path) {
			prefixMatch = config
		}
	}
	return prefixMatch
}
