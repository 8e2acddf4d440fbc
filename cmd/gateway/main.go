package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL,required"`

	// backend dos contadores: "memory" (local ao processo) ou "redis"
	// (orçamento global entre réplicas).
	CounterBackend string `env:"COUNTER_BACKEND" envDefault:"memory"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`

	RateEnabled   bool          `env:"RATE_ENABLED" envDefault:"true"`
	RateRPS       float64       `env:"RATE_RPS" envDefault:"10"`
	RateBurst     int           `env:"RATE_BURST" envDefault:"20"`
	RateKeyHeader string        `env:"RATE_KEY_HEADER"`
	TrustXFF      bool          `env:"TRUST_XFF" envDefault:"false"`
	AddHeaders    bool          `env:"ADD_RATELIMIT_HEADERS" envDefault:"false"`
	CallTimeout   time.Duration `env:"COUNTER_CALL_TIMEOUT" envDefault:"2s"`

	// gate de pós-consumo condicional: cobra tokens só quando o upstream
	// responde com status na faixa de falha.
	FailureEnabled   bool    `env:"FAILURE_RATE_ENABLED" envDefault:"false"`
	FailureRPS       float64 `env:"FAILURE_RATE_RPS" envDefault:"0.1"`
	FailureBurst     int     `env:"FAILURE_RATE_BURST" envDefault:"10"`
	FailureStatusMin int     `env:"FAILURE_STATUS_MIN" envDefault:"400"`
	FailureStatusMax int     `env:"FAILURE_STATUS_MAX" envDefault:"499"`

	ConcurrencyMax     int           `env:"CONCURRENCY_MAX" envDefault:"100"`
	ConcurrencyTimeout time.Duration `env:"CONCURRENCY_TIMEOUT" envDefault:"0"`

	// estatísticas de decisão: "", "memory", "redis" ou "prometheus"
	StatsBackend   string        `env:"STATS_BACKEND"`
	StatsPrefix    string        `env:"STATS_PREFIX" envDefault:"admission:stats"`
	StatsTTL       time.Duration `env:"STATS_TTL" envDefault:"24h"`
	StatsBucket    string        `env:"STATS_BUCKET" envDefault:"minute"`
	StatsTrackKeys bool          `env:"STATS_TRACK_KEYS" envDefault:"false"`
	MetricsAddr    string        `env:"METRICS_ADDR"`
}

func (cfg config) validate() error {
	if cfg.RateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if cfg.RateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if cfg.FailureEnabled && (cfg.FailureRPS <= 0 || cfg.FailureBurst <= 0) {
		return errors.New("FAILURE_RATE_RPS and FAILURE_RATE_BURST must be > 0")
	}
	if cfg.FailureStatusMin > cfg.FailureStatusMax {
		return errors.New("FAILURE_STATUS_MIN must be <= FAILURE_STATUS_MAX")
	}
	if cfg.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	switch cfg.CounterBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when COUNTER_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown COUNTER_BACKEND %q", cfg.CounterBackend)
	}
	switch cfg.StatsBackend {
	case "", "memory", "prometheus":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when STATS_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STATS_BACKEND %q", cfg.StatsBackend)
	}
	if cfg.StatsBackend == "prometheus" && cfg.MetricsAddr == "" {
		return errors.New("METRICS_ADDR is required when STATS_BACKEND=prometheus")
	}
	return nil
}

func main() {
	// .env é opcional; variáveis de ambiente reais têm precedência
	_ = godotenv.Load()

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.CounterBackend == "redis" || cfg.StatsBackend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	newCounter := func(rps float64, burst int, prefix string) domain.CounterService {
		if cfg.CounterBackend == "redis" {
			counter, err := infra.NewRedisCounter(rdb, rps, burst, infra.WithCounterPrefix(prefix))
			if err != nil {
				log.Fatalf("redis counter error: %v", err)
			}
			return counter
		}
		counter := infra.NewMemoryCounter(rps, burst)
		counter.StartJanitor(ctx)
		return counter
	}

	var stats domain.StatsStore
	switch cfg.StatsBackend {
	case "memory":
		stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.StatsTrackKeys))
	case "redis":
		stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackKeys(cfg.StatsTrackKeys),
		)
	case "prometheus":
		stats = infra.NewPromStatsStore(nil)
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		AcquireTimeout: cfg.ConcurrencyTimeout,
	})(h)

	if cfg.FailureEnabled {
		limiter := application.NewRateLimiter(
			newCounter(cfg.FailureRPS, cfg.FailureBurst, "admission:fail"),
			int64(cfg.FailureBurst),
			application.WithLogger(logger),
			application.WithLogPrefix("gateway-failure"),
			application.WithCallTimeout(cfg.CallTimeout),
		)
		h = ratelimit.FailureMiddleware(ratelimit.FailureOptions{
			Limiter:            limiter,
			Stats:              stats,
			KeyHeader:          cfg.RateKeyHeader,
			TrustXForwardedFor: cfg.TrustXFF,
			IsSuccess: func(status int) bool {
				return status < cfg.FailureStatusMin || status > cfg.FailureStatusMax
			},
		})(h)
	}

	if cfg.RateEnabled {
		limiter := application.NewRateLimiter(
			newCounter(cfg.RateRPS, cfg.RateBurst, "admission:rate"),
			int64(cfg.RateBurst),
			application.WithLogger(logger),
			application.WithLogPrefix("gateway"),
			application.WithCallTimeout(cfg.CallTimeout),
		)
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			Stats:               stats,
			KeyHeader:           cfg.RateKeyHeader,
			TrustXForwardedFor:  cfg.TrustXFF,
			AddRateLimitHeaders: cfg.AddHeaders,
		})(h)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server listening", slog.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", slog.Any("error", err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", target.String()),
		slog.String("counter_backend", cfg.CounterBackend))
	logger.Info("rate gate",
		slog.Bool("enabled", cfg.RateEnabled),
		slog.Float64("rps", cfg.RateRPS),
		slog.Int("burst", cfg.RateBurst),
		slog.String("key_header", cfg.RateKeyHeader),
		slog.Bool("trust_xff", cfg.TrustXFF))
	logger.Info("failure gate",
		slog.Bool("enabled", cfg.FailureEnabled),
		slog.Float64("rps", cfg.FailureRPS),
		slog.Int("burst", cfg.FailureBurst),
		slog.Int("status_min", cfg.FailureStatusMin),
		slog.Int("status_max", cfg.FailureStatusMax))
	logger.Info("concurrency gate",
		slog.Int("max", cfg.ConcurrencyMax),
		slog.Duration("acquire_timeout", cfg.ConcurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
