package ratelimit

import (
	"context"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Limiter é o que os gates precisam de um rate limiter. application.RateLimiter
// satisfaz este contrato; as três operações nunca devolvem erro cru de backend
// (a política fail-open vive atrás delas).
type Limiter interface {
	ConsumeAndCheck(ctx context.Context, key domain.Key, path string) bool
	Check(ctx context.Context, key domain.Key, path string) bool
	Consume(ctx context.Context, key domain.Key) int64
}

// RejectFunc produz a resposta de rejeição; o integrador controla status e corpo.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

type Options struct {
	Limiter             Limiter
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	Reject              RejectFunc
	AddRateLimitHeaders bool
}

type sizeInfo interface {
	Size() int64
}

// Middleware é o gate pré-handler: deriva a chave, consome exatamente 1 token
// por requisição que chega até ele (independente do resultado downstream) e
// curto-circuita com a resposta de rejeição quando o bucket esgota.
//
// Nunca inspeciona a resposta do handler; para limitar falhas em vez de
// volume, use FailureMiddleware.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Reject == nil {
		opts.Reject = defaultReject
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(key))
				if si, ok := opts.Limiter.(sizeInfo); ok {
					w.Header().Set("X-RateLimit-Limit", formatInt64(si.Size()))
				}
			}

			allowed := opts.Limiter.ConsumeAndCheck(r.Context(), key, r.URL.Path)
			record(opts.Stats, r, key, allowed, false)
			if !allowed {
				opts.Reject(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func defaultReject(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}

// record envia o evento de decisão para o StatsStore, best-effort.
func record(stats domain.StatsStore, r *http.Request, key domain.Key, allowed, charged bool) {
	if stats == nil {
		return
	}
	_ = stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Allowed: allowed,
		Charged: charged,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
}
