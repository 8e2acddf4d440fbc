package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// RateLimiter coordena o consumo de tokens sobre exatamente um CounterService.
//
// Ele não sabe nada sobre HTTP: recebe chave e path (este último só para
// diagnóstico, nunca afeta a decisão) e devolve resultados booleanos.
// Toda falha do backend é interceptada aqui; os gates nunca veem erros crus
// de transporte, apenas os resultados definidos abaixo.
//
// A configuração é imutável após a construção e a instância é segura para
// uso concorrente por qualquer número de gates, sem lock do chamador.
type RateLimiter struct {
	counter     domain.CounterService
	size        int64
	logPrefix   string
	log         *slog.Logger
	callTimeout time.Duration
}

type Option func(*RateLimiter)

// WithLogger troca o logger (padrão slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(rl *RateLimiter) {
		if l != nil {
			rl.log = l
		}
	}
}

// WithLogPrefix define o prefixo de atribuição das linhas de log.
func WithLogPrefix(prefix string) Option {
	return func(rl *RateLimiter) {
		if prefix != "" {
			rl.logPrefix = prefix
		}
	}
}

// WithCallTimeout limita a espera por uma resposta do CounterService, para
// que o fail-open dispare logo em vez de pendurar a requisição. 0 desabilita.
func WithCallTimeout(d time.Duration) Option {
	return func(rl *RateLimiter) { rl.callTimeout = d }
}

// NewRateLimiter cria um limiter sobre um CounterService.
//
// size é a capacidade configurada do bucket e é usada somente no limiar de
// warning (size/2); a matemática do bucket pertence ao CounterService.
// Com counter nil toda operação libera (mesma postura do middleware sem store).
func NewRateLimiter(counter domain.CounterService, size int64, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		counter:     counter,
		size:        size,
		logPrefix:   "ratelimit",
		log:         slog.Default(),
		callTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Size expõe a capacidade configurada (para headers informativos nos gates).
func (rl *RateLimiter) Size() int64 { return rl.size }

// ConsumeAndCheck consome exatamente 1 token do bucket da chave e informa se
// a requisição pode prosseguir. Saldo negativo após o consumo significa que
// o bucket já estava esgotado.
func (rl *RateLimiter) ConsumeAndCheck(ctx context.Context, key domain.Key, path string) bool {
	out := rl.decide(ctx, key, path, 1, func(remaining int64) bool { return remaining >= 0 })
	return out != domain.OutcomeReject
}

// Check sonda o bucket sem consumir nada; true quando há ao menos 1 token
// disponível agora. Serve para barrar a entrada antes de trabalho especulativo
// cujo custo só deve ser cobrado em caso de falha.
func (rl *RateLimiter) Check(ctx context.Context, key domain.Key, path string) bool {
	out := rl.decide(ctx, key, path, 0, func(remaining int64) bool { return remaining > 0 })
	return out != domain.OutcomeReject
}

// Consume desconta 1 token incondicionalmente e retorna o novo saldo, sem
// interpretação de allow/deny. Usado por quem registra um evento de falha
// depois do fato. Em falha do backend o erro é logado e o retorno é 0.
func (rl *RateLimiter) Consume(ctx context.Context, key domain.Key) int64 {
	if rl.counter == nil {
		return 0
	}
	ctx, cancel := rl.callContext(ctx)
	defer cancel()

	remaining, err := rl.counter.Consume(ctx, key, 1)
	if err != nil {
		rl.log.Error("counter service failure on consume",
			slog.String("prefix", rl.logPrefix),
			slog.String("key", string(key)),
			slog.Any("error", err))
		return 0
	}
	return remaining
}

// decide é o template compartilhado de ConsumeAndCheck e Check, parametrizado
// por amount e pelo predicado sobre o saldo restante.
func (rl *RateLimiter) decide(ctx context.Context, key domain.Key, path string, amount int, pred func(remaining int64) bool) domain.Outcome {
	if rl.counter == nil {
		return domain.OutcomeProceed
	}
	ctx, cancel := rl.callContext(ctx)
	defer cancel()

	remaining, err := rl.counter.Consume(ctx, key, amount)
	if err != nil {
		if errors.Is(err, domain.ErrNoBucket) {
			rl.log.Error("bucket not found, rejecting",
				slog.String("prefix", rl.logPrefix),
				slog.String("key", string(key)),
				slog.String("path", path))
			return domain.OutcomeReject
		}
		// backend de contadores indisponível não pode virar indisponibilidade
		// do sistema protegido: loga e libera.
		rl.log.Error("counter service failure, failing open",
			slog.String("prefix", rl.logPrefix),
			slog.String("key", string(key)),
			slog.String("path", path),
			slog.Any("error", err))
		return domain.OutcomeBackendError
	}

	if !pred(remaining) {
		rl.log.Error("rate limit exceeded",
			slog.String("prefix", rl.logPrefix),
			slog.String("key", string(key)),
			slog.String("path", path),
			slog.Int64("remaining", remaining))
		return domain.OutcomeReject
	}

	// Sinal antecipado para planejamento de capacidade. O limiar compara com
	// a capacidade configurada na construção, não com o estado vivo do bucket.
	if remaining < rl.size/2 {
		rl.log.Warn("rate limit capacity below half",
			slog.String("prefix", rl.logPrefix),
			slog.String("key", string(key)),
			slog.String("path", path),
			slog.Int64("remaining", remaining))
	}
	return domain.OutcomeProceed
}

func (rl *RateLimiter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rl.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, rl.callTimeout)
}
