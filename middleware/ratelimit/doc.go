// Package ratelimit fornece os gates HTTP (net/http) do controle de admissão.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (consumo/sondagem/cobrança com fail-open) sem net/http
//   - infra: implementações concretas (contadores em memória e Redis, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + resposta de rejeição
//
// Gates disponíveis:
//
//   - Middleware: gate pré-handler. Consome 1 token por requisição e
//     curto-circuita com a resposta de rejeição quando o bucket esgota.
//     Limita volume bruto de tráfego.
//   - FailureMiddleware: gate de pós-consumo condicional. Sonda o bucket na
//     entrada, roda o handler sem custo e só cobra o token quando a resposta
//     é classificada como falha (padrão: status 400..499). Limita mau
//     comportamento (ex.: tentativas de login erradas) sem punir uso legítimo.
//   - ConcurrencyMiddleware: limite de requisições em voo com timeout de
//     aquisição.
//
// Um deployment pode empilhar vários gates sobre o mesmo handler (ex.: um por
// IP e um por usuário), cada um com seu RateLimiter. O RateLimiter é um objeto
// longevo construído no startup e injetado explicitamente em cada gate; vários
// gates podem compartilhar a mesma instância.
package ratelimit
