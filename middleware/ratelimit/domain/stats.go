package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão observada por um gate.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Charged indica que um token foi cobrado após o handler rodar (gate de
// pós-consumo condicional); nos gates pré-handler é sempre false.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle
// pode explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool
	Charged bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// Os gates tratam erro como best-effort (não derrubam a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
