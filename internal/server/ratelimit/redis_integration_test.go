//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}

func TestIntegration_RedisCounterFixedWindow(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewLimiter(&Config{
		Enabled:         true,
		EndpointConfigs: DefaultEndpointConfigs(3, time.Second),
	}, NewRedisCounter(client, "intake:test:"), nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if allowed, _ := limiter.Allow(ctx, "c", "/applications", http.MethodPost); !allowed {
			t.Fatalf("Expected request %d to be allowed", i)
		}
	}
	allowed, info := limiter.Allow(ctx, "c", "/applications", http.MethodPost)
	if allowed {
		t.Fatal("Expected 4th request to be throttled")
	}
	if info.RetryAfter <= 0 || info.RetryAfter > time.Second {
		t.Errorf("Expected retry after within the window, got %v", info.RetryAfter)
	}

	time.Sleep(1100 * time.Millisecond)
	if allowed, _ := limiter.Allow(ctx, "c", "/applications", http.MethodPost); !allowed {
		t.Error("Expected request to be allowed after the key expired")
	}
}
