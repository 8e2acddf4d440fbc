package ratelimit

import (
	"context"
	"net/http"

	"admission-gateway/middleware/ratelimit/domain"
)

// FailureOptions configura o gate de pós-consumo condicional.
type FailureOptions struct {
	Limiter            Limiter
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	Reject             RejectFunc
	// IsSuccess classifica a resposta do handler. Padrão: DefaultIsSuccess
	// (status fora de 400..499 conta como sucesso).
	IsSuccess func(status int) bool
}

// DefaultIsSuccess considera falha somente status 400..499.
func DefaultIsSuccess(status int) bool {
	return status < 400 || status > 499
}

// FailureMiddleware limita falhas em vez de volume bruto: a sondagem (Check)
// barra a entrada quando o bucket está vazio, o handler roda sem custo e o
// token só é cobrado (Consume) quando a resposta é classificada como falha.
//
// Uso legítimo e bem-sucedido nunca esvazia o bucket; só mau comportamento
// esvazia. Ainda assim há um teto duro: com o bucket vazio a sondagem rejeita
// antes de invocar o handler, então um atacante não consegue nem executá-lo.
//
// O gate só classifica o status escrito na resposta. Um panic ou erro do
// handler não é um "resultado de falha" para fins de cobrança e se propaga
// normalmente.
func FailureMiddleware(opts FailureOptions) func(next http.Handler) http.Handler {
	if opts.Reject == nil {
		opts.Reject = defaultReject
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.IsSuccess == nil {
		opts.IsSuccess = DefaultIsSuccess
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			// sondagem não consumidora: com o bucket vazio a tentativa é
			// rejeitada sem custo e sem invocar o handler.
			if !opts.Limiter.Check(r.Context(), key, r.URL.Path) {
				record(opts.Stats, r, key, false, false)
				opts.Reject(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			charged := false
			if !opts.IsSuccess(rec.Status()) {
				// o saldo retornado é descartado: o efeito desejado é apenas
				// depletar o bucket. WithoutCancel porque a cobrança deve
				// acontecer mesmo se o cliente abandonou a requisição.
				_ = opts.Limiter.Consume(context.WithoutCancel(r.Context()), key)
				charged = true
			}
			record(opts.Stats, r, key, true, charged)
		})
	}
}

// statusRecorder captura o status escrito pelo handler para classificação.
// A resposta passa adiante sem modificação.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status devolve o código registrado; handler que retorna sem escrever nada
// conta como 200, igual ao net/http.
func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
