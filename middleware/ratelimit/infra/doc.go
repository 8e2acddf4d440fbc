// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - MemoryCounter: serviço de contadores em memória usando golang.org/x/time/rate
//   - RedisCounter: serviço de contadores distribuído via script Lua no Redis
//   - MemoryStatsStore / RedisStatsStore / PromStatsStore: estatísticas de decisão
//   - slotPool: semáforo simples para o gate de concorrência
package infra
