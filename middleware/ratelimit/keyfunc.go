package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// KeyFunc deriva a identidade (chave de bucket) de uma requisição.
type KeyFunc func(r *http.Request) domain.Key

// DefaultKeyFunc resolve a chave na ordem padrão:
//
//  1. valor do header keyHeader, quando configurado e presente
//     (identidade já autenticada colocada na requisição)
//  2. primeiro IP do X-Forwarded-For, quando o proxy na frente é confiável
//  3. host do RemoteAddr da conexão direta
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Key {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.Key(v)
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return domain.Key(ip)
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return domain.Key(host)
		}
		if r.RemoteAddr != "" {
			return domain.Key(r.RemoteAddr)
		}
		return "unknown"
	}
}

// IPKeyFunc deriva a chave do endereço de rede do cliente, sem olhar headers
// de identidade.
func IPKeyFunc(trustXFF bool) KeyFunc {
	return DefaultKeyFunc("", trustXFF)
}
