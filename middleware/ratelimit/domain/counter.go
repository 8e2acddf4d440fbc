package domain

// Camada de domínio do controle de admissão.
//
// Contratos e tipos sem dependência de net/http nem de backends concretos.

import (
	"context"
	"errors"
)

// Key identifica um bucket no serviço de contadores (ex: IP, API key, usuário).
//
// Duas identidades reais só devem mapear para a mesma Key quando o bucket
// compartilhado for intencional.
type Key string

// CounterService é o colaborador externo que mantém um contador independente
// por chave.
//
// Consume desconta amount tokens de forma atômica (após aplicar o refill
// pendente) e retorna o saldo resultante, que pode ser negativo quando o
// bucket foi estourado. amount=0 é uma sondagem: não consome nada, apenas
// observa o saldo atual.
//
// Implementações devem ser seguras sob chamadas concorrentes ilimitadas;
// chamadas para a mesma chave são serializadas em relação ao contador
// (nenhuma atualização perdida). Capacidade, taxa de refill e relógio
// pertencem inteiramente à implementação.
type CounterService interface {
	Consume(ctx context.Context, key Key, amount int) (remaining int64, err error)
}

// ErrNoBucket sinaliza que a chave não possui estado de bucket conhecido.
//
// O RateLimiter traduz esse erro em rejeição (nunca em fail-open) e ele
// não chega aos gates como erro cru.
var ErrNoBucket = errors.New("ratelimit: bucket not found")

// Outcome é o resultado de uma decisão sobre o contador.
//
// Três estados explícitos mantêm rejeição e falha de backend como ramos de
// primeira classe, em vez de controle de fluxo via erro genérico.
type Outcome int

const (
	// OutcomeProceed libera a requisição.
	OutcomeProceed Outcome = iota
	// OutcomeReject bloqueia a requisição (bucket esgotado ou inexistente).
	OutcomeReject
	// OutcomeBackendError indica falha do serviço de contadores.
	// A política é fail-open: quem mapeia para booleano trata como liberado.
	OutcomeBackendError
)
