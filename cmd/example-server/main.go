package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"
)

// Demonstra o uso direto dos gates em um servidor próprio, sem proxy:
// gate de requisição por IP na raiz e gate de pós-consumo condicional em
// /login (só falhas de autenticação cobram o bucket).
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats := infra.NewMemoryStatsStore()

	// 5 req/s com rajada de 10 por IP
	requestCounter := infra.NewMemoryCounter(5, 10)
	requestCounter.StartJanitor(ctx)
	requestLimiter := application.NewRateLimiter(requestCounter, 10,
		application.WithLogger(logger),
		application.WithLogPrefix("example"),
	)

	// bucket de falhas de login: 5 tentativas erradas, reposição lenta
	loginCounter := infra.NewMemoryCounter(1.0/60.0, 5)
	loginCounter.StartJanitor(ctx)
	loginLimiter := application.NewRateLimiter(loginCounter, 5,
		application.WithLogger(logger),
		application.WithLogPrefix("example-login"),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello")
	})

	login := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("user") == "admin" && r.FormValue("pass") == "secret" {
			fmt.Fprintln(w, "welcome")
			return
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	})
	mux.Handle("/login", ratelimit.FailureMiddleware(ratelimit.FailureOptions{
		Limiter: loginLimiter,
		Stats:   stats,
	})(login))

	handler := ratelimit.Middleware(ratelimit.Options{
		Limiter:             requestLimiter,
		Stats:               stats,
		AddRateLimitHeaders: true,
	})(mux)

	srv := &http.Server{
		Addr:              ":8081",
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}

	total := stats.Total()
	logger.Info("decision totals",
		slog.Int64("allowed", total.Allowed),
		slog.Int64("denied", total.Denied),
		slog.Int64("charged", total.Charged))
}
