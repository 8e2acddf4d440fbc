package infra

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// RedisCounter é um domain.CounterService distribuído sobre Redis.
//
// O ciclo leitura/refill/desconto roda em um script Lua carregado via
// SCRIPT LOAD e executado com EVALSHA, então o desconto é atômico por chave
// mesmo com várias instâncias da aplicação dividindo o mesmo orçamento.
type RedisCounter struct {
	rdb       *redis.Client
	scriptSHA string
	prefix    string
	rps       float64
	burst     int64
}

type RedisCounterOption func(*RedisCounter)

// WithCounterPrefix troca o prefixo das chaves (padrão "ratelimit:bucket").
// Use prefixos distintos para famílias de bucket distintas no mesmo Redis.
func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(c *RedisCounter) { c.prefix = strings.Trim(prefix, ":") }
}

// NewRedisCounter valida a conexão e pré-carrega o script do token bucket.
// rps e burst definem o refill, que pertence a este colaborador.
func NewRedisCounter(rdb *redis.Client, rps float64, burst int, opts ...RedisCounterOption) (*RedisCounter, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("rediscounter: rps must be > 0, got %v", rps)
	}
	if burst <= 0 {
		return nil, fmt.Errorf("rediscounter: burst must be > 0, got %d", burst)
	}

	c := &RedisCounter{
		rdb:    rdb,
		prefix: "ratelimit:bucket",
		rps:    rps,
		burst:  int64(burst),
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscounter: ping: %w", err)
	}
	sha, err := rdb.ScriptLoad(ctx, tokenBucketScript).Result()
	if err != nil {
		return nil, fmt.Errorf("rediscounter: script load: %w", err)
	}
	c.scriptSHA = sha
	return c, nil
}

// Consume implementa domain.CounterService.
func (c *RedisCounter) Consume(ctx context.Context, key domain.Key, amount int) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("rediscounter: negative amount %d", amount)
	}

	redisKey := c.prefix + ":" + string(key)
	now := float64(time.Now().UnixMicro()) / 1e6
	args := []interface{}{c.rps, c.burst, now, amount}

	res, err := c.rdb.EvalSha(ctx, c.scriptSHA, []string{redisKey}, args...).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// o cache de scripts some em restart do Redis
		res, err = c.rdb.Eval(ctx, tokenBucketScript, []string{redisKey}, args...).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("rediscounter: eval: %w", err)
	}

	remaining, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("rediscounter: unexpected script reply %T", res)
	}
	return remaining, nil
}
