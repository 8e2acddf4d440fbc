package main

import (
	"fmt"
	"net/http"
)

// Upstream de mentira para validar o gateway na frente dele:
// UPSTREAM_URL=http://localhost:9000 ./gateway
func main() {
	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		fmt.Println("Log: Alguém acessou o endpoint /showTela")
	})
	// 401 de propósito para exercitar o gate de pós-consumo (cobra só em falha)
	http.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("user") == "admin" && r.FormValue("pass") == "secret" {
			fmt.Fprintln(w, "login ok")
			fmt.Println("Log: login bem sucedido")
			return
		}
		fmt.Println("Log: tentativa de login inválida")
		http.Error(w, "credenciais inválidas", http.StatusUnauthorized)
	})
	fmt.Println("Servidor rodando em http://localhost:9000")
	err := http.ListenAndServe(":9000", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
