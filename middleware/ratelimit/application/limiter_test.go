package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"admission-gateway/middleware/ratelimit/domain"
)

// stubCounter é um CounterService determinístico sem refill: cada chave nasce
// com start tokens e Consume apenas desconta.
type stubCounter struct {
	mu      sync.Mutex
	start   int64
	tokens  map[domain.Key]int64
	amounts []int
	err     error
}

func (c *stubCounter) Consume(_ context.Context, key domain.Key, amount int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.tokens == nil {
		c.tokens = make(map[domain.Key]int64)
	}
	if _, ok := c.tokens[key]; !ok {
		c.tokens[key] = c.start
	}
	c.tokens[key] -= int64(amount)
	c.amounts = append(c.amounts, amount)
	return c.tokens[key], nil
}

// recordingHandler guarda os registros de log para inspeção nos testes.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func newTestLimiter(counter domain.CounterService, size int64) (*RateLimiter, *recordingHandler) {
	h := &recordingHandler{}
	rl := NewRateLimiter(counter, size, WithLogger(slog.New(h)), WithLogPrefix("test"))
	return rl, h
}

func TestRateLimiter_ConsumeAndCheckExhaustsBucket(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(&stubCounter{start: 3}, 3)

	for i := 0; i < 3; i++ {
		if !rl.ConsumeAndCheck(ctx, "k", "/r") {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
	}
	if rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected call 4 to be rejected after capacity 3 is spent")
	}
}

func TestRateLimiter_RejectionLogsError(t *testing.T) {
	ctx := context.Background()
	rl, h := newTestLimiter(&stubCounter{start: 0}, 1)

	if rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected rejection with empty bucket")
	}
	if got := h.count(slog.LevelError); got != 1 {
		t.Fatalf("expected 1 error log on rejection, got %d", got)
	}
}

func TestRateLimiter_CheckDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	counter := &stubCounter{start: 2}
	rl, _ := newTestLimiter(counter, 2)

	for i := 0; i < 3; i++ {
		if !rl.Check(ctx, "k", "/r") {
			t.Fatalf("expected check %d to pass", i+1)
		}
	}
	for _, amount := range counter.amounts {
		if amount != 0 {
			t.Fatalf("expected check to send amount=0, got %d", amount)
		}
	}

	// o saldo continua intacto: ainda cabem exatamente 2 consumos
	if !rl.ConsumeAndCheck(ctx, "k", "/r") || !rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected both consumes to pass after non-consuming checks")
	}
	if rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected third consume to be rejected")
	}
}

func TestRateLimiter_CheckRequiresAtLeastOneToken(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(&stubCounter{start: 0}, 2)

	// saldo 0: consumeAndCheck ainda passaria (0 >= 0), mas a sondagem exige > 0
	if rl.Check(ctx, "k", "/r") {
		t.Fatalf("expected check to fail with zero tokens")
	}
}

func TestRateLimiter_ConsumeAlwaysDecrements(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(&stubCounter{start: 1}, 1)

	for want := int64(0); want >= -2; want-- {
		if got := rl.Consume(ctx, "k"); got != want {
			t.Fatalf("expected remaining %d, got %d", want, got)
		}
	}
}

func TestRateLimiter_FailOpenOnCounterError(t *testing.T) {
	ctx := context.Background()
	rl, h := newTestLimiter(&stubCounter{err: errors.New("transport down")}, 5)

	for i := 0; i < 3; i++ {
		if !rl.ConsumeAndCheck(ctx, "k", "/r") {
			t.Fatalf("expected fail-open on consumeAndCheck %d", i+1)
		}
		if !rl.Check(ctx, "k", "/r") {
			t.Fatalf("expected fail-open on check %d", i+1)
		}
	}
	if got := h.count(slog.LevelError); got != 6 {
		t.Fatalf("expected one error log per failed call (6), got %d", got)
	}
}

func TestRateLimiter_NoBucketRejectsInsteadOfFailOpen(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(&stubCounter{err: domain.ErrNoBucket}, 5)

	if rl.Check(ctx, "k", "/r") {
		t.Fatalf("expected check to reject on ErrNoBucket")
	}
	if rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected consumeAndCheck to reject on ErrNoBucket")
	}
}

func TestRateLimiter_ConsumeReturnsZeroOnCounterError(t *testing.T) {
	ctx := context.Background()
	rl, h := newTestLimiter(&stubCounter{err: errors.New("boom")}, 5)

	if got := rl.Consume(ctx, "k"); got != 0 {
		t.Fatalf("expected 0 on counter error, got %d", got)
	}
	if got := h.count(slog.LevelError); got != 1 {
		t.Fatalf("expected 1 error log, got %d", got)
	}
}

func TestRateLimiter_WarnsBelowHalfCapacity(t *testing.T) {
	ctx := context.Background()
	rl, h := newTestLimiter(&stubCounter{start: 10}, 10)

	// saldo cai 9,8,7,6,5: nenhum abaixo de size/2=5, nenhum warning
	for i := 0; i < 5; i++ {
		if !rl.ConsumeAndCheck(ctx, "k", "/r") {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
	}
	if got := h.count(slog.LevelWarn); got != 0 {
		t.Fatalf("expected no warnings at or above half capacity, got %d", got)
	}

	// saldo cai para 4: primeiro warning
	if !rl.ConsumeAndCheck(ctx, "k", "/r") {
		t.Fatalf("expected sixth call to be allowed")
	}
	if got := h.count(slog.LevelWarn); got != 1 {
		t.Fatalf("expected 1 warning below half capacity, got %d", got)
	}
}

func TestRateLimiter_NilCounterAllows(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(nil, 1)

	if !rl.ConsumeAndCheck(ctx, "k", "/r") || !rl.Check(ctx, "k", "/r") {
		t.Fatalf("expected nil counter to allow everything")
	}
	if got := rl.Consume(ctx, "k"); got != 0 {
		t.Fatalf("expected Consume to return 0 with nil counter, got %d", got)
	}
}
