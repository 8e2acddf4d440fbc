package infra

import (
	"context"
	"testing"

	"admission-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_AggregatesByRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Key: "k1", Allowed: true, Method: "GET", Path: "/a"},
		{Key: "k1", Allowed: false, Method: "GET", Path: "/a"},
		{Key: "k2", Allowed: true, Charged: true, Method: "POST", Path: "/login"},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 1 || total.Charged != 1 {
		t.Fatalf("unexpected totals: %+v", total)
	}

	route := s.ByRoute()["POST /login"]
	if route.Allowed != 1 || route.Charged != 1 {
		t.Fatalf("unexpected route counters: %+v", route)
	}

	key := s.ByKey()["k1"]
	if key.Allowed != 1 || key.Denied != 1 {
		t.Fatalf("unexpected key counters: %+v", key)
	}
}

func TestMemoryStatsStore_IgnoresKeysByDefault(t *testing.T) {
	s := NewMemoryStatsStore()

	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k", Allowed: true, Method: "GET", Path: "/"})
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key tracking by default")
	}
}
