// Package domain define contratos e tipos de domínio para o controle de
// admissão: chaves de identidade, o serviço de contadores por chave, o
// resultado tri-estado das decisões e os contratos de estatística.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar as regras de
// coordenação de detalhes de infraestrutura.
package domain
