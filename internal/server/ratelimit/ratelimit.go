// Package ratelimit throttles clients with fixed counting windows.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Counter counts hits for a key inside fixed windows. Hit records one hit and
// returns the count so far in the current window and when that window ends.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter applies per-endpoint limits to clients. Requests to endpoints
// without a configuration are never limited.
type Limiter struct {
	counter Counter
	config  *Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewLimiter creates a limiter. A nil counter selects an in-process
// MemoryCounter swept every config.CleanupInterval.
func NewLimiter(config *Config, counter Counter, logger *zap.Logger) *Limiter {
	if config == nil {
		config = &Config{Enabled: true, CleanupInterval: 5 * time.Minute}
	}
	if counter == nil {
		counter = NewMemoryCounter(config.CleanupInterval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{counter: counter, config: config, logger: logger, now: time.Now}
}

// Allow records a request from clientID and reports whether it may proceed.
// Rejected requests still count toward the window. Counter failures let the
// request through.
func (l *Limiter) Allow(ctx context.Context, clientID, endpoint, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	endpointConfig := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if endpointConfig == nil || endpointConfig.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + method + ":" + endpointConfig.Path
	count, resetAt, err := l.counter.Hit(ctx, key, endpointConfig.Window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing request",
			zap.String("client", clientID), zap.String("endpoint", endpointConfig.Path), zap.Error(err))
		return true, Info{Allowed: true, Limit: endpointConfig.Limit, Remaining: endpointConfig.Limit}
	}

	allowed := count <= endpointConfig.Limit
	info := Info{
		Allowed:   allowed,
		Limit:     endpointConfig.Limit,
		Remaining: max(endpointConfig.Limit-count, 0),
		ResetTime: resetAt,
	}
	if !allowed {
		info.RetryAfter = max(resetAt.Sub(l.now()), 0)
	}
	return allowed, info
}

// Rule is a limiter bound to one endpoint.
type Rule struct {
	limiter  *Limiter
	method   string
	endpoint string
}

// For binds the limiter to method and endpoint.
func (l *Limiter) For(method, endpoint string) *Rule {
	return &Rule{limiter: l, method: method, endpoint: endpoint}
}

// Allow applies the bound endpoint's limit to clientID.
func (r *Rule) Allow(ctx context.Context, clientID string) (bool, Info) {
	return r.limiter.Allow(ctx, clientID, r.endpoint, r.method)
}

type stopper interface {
	Stop()
}

// Stop stops background cleanup of the counter, if it has any.
func (l *Limiter) Stop() {
	if s, ok := l.counter.(stopper); ok {
		s.Stop()
	}
}
