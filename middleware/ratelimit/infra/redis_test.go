package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// testes de integração: rodam apenas com um Redis local disponível.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func uniqueKey(t *testing.T) domain.Key {
	return domain.Key(fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano()))
}

func TestRedisCounter_ConsumeDepletesAndOverdraws(t *testing.T) {
	rdb := newTestRedis(t)

	c, err := NewRedisCounter(rdb, 0.001, 2, WithCounterPrefix("ratelimit:test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	key := uniqueKey(t)

	for _, want := range []int64{1, 0, -1} {
		got, err := c.Consume(ctx, key, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected remaining %d, got %d", want, got)
		}
	}
}

func TestRedisCounter_ProbeDoesNotConsume(t *testing.T) {
	rdb := newTestRedis(t)

	c, err := NewRedisCounter(rdb, 0.001, 2, WithCounterPrefix("ratelimit:test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	key := uniqueKey(t)

	for i := 0; i < 3; i++ {
		got, err := c.Consume(ctx, key, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 2 {
			t.Fatalf("expected probe %d to report 2 tokens, got %d", i+1, got)
		}
	}

	if got, _ := c.Consume(ctx, key, 1); got != 1 {
		t.Fatalf("expected 1 remaining after first real consume, got %d", got)
	}
}

func TestRedisCounter_ValidatesConfig(t *testing.T) {
	rdb := newTestRedis(t)

	if _, err := NewRedisCounter(rdb, 0, 1); err == nil {
		t.Fatalf("expected error for rps=0")
	}
	if _, err := NewRedisCounter(rdb, 1, 0); err == nil {
		t.Fatalf("expected error for burst=0")
	}
}
