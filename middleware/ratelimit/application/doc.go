// Package application contém os casos de uso do controle de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// O RateLimiter coordena consumo/sondagem/cobrança sobre um CounterService
// com política fail-open; o ConcurrencyService coordena aquisição e
// liberação de vagas com timeout.
package application
