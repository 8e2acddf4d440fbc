package infra

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// MemoryCounter é um domain.CounterService em processo, baseado em
// token-bucket (x/time/rate) com cache por chave e limpeza periódica.
//
// O refill é contínuo (rps tokens por segundo, até burst) e pertence a este
// colaborador; quem decide só enxerga o saldo retornado por Consume.
// O estado é local ao processo: para um limite global entre réplicas use
// RedisCounter.
type MemoryCounter struct {
	mu           sync.Mutex
	entries      map[string]*counterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type counterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type MemoryCounterOption func(*MemoryCounter)

// WithIdleTTL define há quanto tempo uma chave precisa estar sem uso para ser
// removida pela limpeza.
func WithIdleTTL(d time.Duration) MemoryCounterOption {
	return func(c *MemoryCounter) { c.idleTTL = d }
}

// WithCleanupEvery define o intervalo do janitor. 0 desabilita o StartJanitor.
func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(c *MemoryCounter) { c.cleanupEvery = d }
}

func NewMemoryCounter(rps float64, burst int, opts ...MemoryCounterOption) *MemoryCounter {
	c := &MemoryCounter{
		entries:      make(map[string]*counterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume implementa domain.CounterService.
//
// amount=0 apenas observa o saldo. Para amount>0 a reserva é incondicional e
// nunca é cancelada (consumo em andamento não sofre rollback): o saldo pode
// ficar negativo, e é exatamente isso que sinaliza estouro para quem decide.
func (c *MemoryCounter) Consume(_ context.Context, key domain.Key, amount int) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("memorycounter: negative amount %d", amount)
	}
	if amount > c.burst {
		return 0, fmt.Errorf("memorycounter: amount %d exceeds burst %d", amount, c.burst)
	}

	lim := c.get(string(key))
	now := time.Now()
	if amount > 0 {
		lim.ReserveN(now, amount)
	}
	return int64(math.Floor(lim.TokensAt(now))), nil
}

func (c *MemoryCounter) get(key string) *rate.Limiter {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(c.rps, c.burst)
	c.entries[key] = &counterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove chaves sem uso há mais de idleTTL. Uma chave removida
// renasce cheia no próximo acesso, o que equivale ao refill completo que ela
// teria acumulado parada.
func (c *MemoryCounter) Cleanup() {
	cutoff := time.Now().Add(-c.idleTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, ent := range c.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (c *MemoryCounter) StartJanitor(ctx context.Context) {
	if c.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(c.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Cleanup()
			}
		}
	}()
}
