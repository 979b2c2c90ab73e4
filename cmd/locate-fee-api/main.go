// Command locate-fee-api runs the stock-loan locate-fee pricing service:
// loads configuration, wires the database, cache, external-data, and
// audit layers, then serves the HTTP API until SIGINT/SIGTERM. Grounded on
// the teacher's cmd/api/main.go wiring and shutdown sequence.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/api"
	"github.com/galatea-associates/locate-fee-engine/internal/audit"
	"github.com/galatea-associates/locate-fee-engine/internal/cache"
	"github.com/galatea-associates/locate-fee-engine/internal/circuitbreaker"
	"github.com/galatea-associates/locate-fee-engine/internal/config"
	"github.com/galatea-associates/locate-fee-engine/internal/coordinator"
	"github.com/galatea-associates/locate-fee-engine/internal/db"
	"github.com/galatea-associates/locate-fee-engine/internal/engine"
	"github.com/galatea-associates/locate-fee-engine/internal/externaldata"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to ./configs/config.yaml or env vars)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log := log.With().Str("service", cfg.App.Name).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.Database.DSN, cfg.Database.PoolSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	tickers := db.NewTickerRepo(database)
	brokers := db.NewBrokerRepo(database)

	strategy := buildCacheStrategy(cfg, log.With().Str("component", "cache").Logger())

	breakers := circuitbreaker.NewManagerWithSettings(
		breakerSettings(cfg),
		breakerSettings(cfg),
		breakerSettings(cfg),
	)

	resolver := buildResolver(cfg, strategy, breakers, log)

	calcEngine := engine.New()

	spool, err := audit.NewSpool(cfg.App.Name+"-audit.spool", 10000)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit spool")
	}
	auditSink := audit.NewSinkWithPool(database.RawPool(), spool, log.With().Str("component", "audit").Logger())

	globalMinBorrowRate, err := decimal.NewFromString(cfg.Pricing.GlobalMinBorrowRate)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.Pricing.GlobalMinBorrowRate).Msg("invalid pricing.global_min_borrow_rate")
	}

	coord := coordinator.New(
		tickers,
		brokers,
		strategy,
		resolver,
		calcEngine,
		auditSink,
		globalMinBorrowRate,
		log.With().Str("component", "coordinator").Logger(),
		coordinator.WithStalenessMultiplier(cfg.Pricing.StalenessMultiplier),
	)

	server := api.NewServer(api.Config{
		Host:             cfg.API.Host,
		Port:             cfg.API.Port,
		APIKeys:          cfg.API.APIKeys,
		MaxConcurrency:   cfg.API.MaxConcurrency,
		RequestTimeout:   cfg.API.RequestTimeout(),
		RateLimitEnabled: cfg.RateLimit.Enabled,
		CalculateMaxReqs: cfg.RateLimit.CalculateMaxReqs,
		CalculateWindow:  time.Duration(cfg.RateLimit.CalculateWindowS) * time.Second,
		ReadMaxReqs:      cfg.RateLimit.ReadMaxReqs,
		ReadWindow:       time.Duration(cfg.RateLimit.ReadWindowS) * time.Second,
		DB:               database,
	}, coord, log.With().Str("component", "api").Logger())

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server stopped unexpectedly")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
}

// buildCacheStrategy picks the Strategy variant per §4.3: a two-tier
// local+Redis cache when caching is enabled and a Redis address is
// configured (Redis is not contacted here; an unreachable Redis degrades the
// tiered cache to local-only at lookup time), a local-only cache when
// caching is enabled but no Redis address is configured, and a Null strategy
// (every lookup a documented miss) when caching is disabled.
func buildCacheStrategy(cfg *config.Config, log zerolog.Logger) cache.Strategy {
	if !cfg.Cache.Enabled {
		return cache.NewNull()
	}
	if cfg.Redis.Addr == "" {
		return cache.NewSingle()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cache.NewTiered(client, log)
}

func breakerSettings(cfg *config.Config) circuitbreaker.ServiceSettings {
	return circuitbreaker.ServiceSettings{
		MinRequests:     uint32(cfg.CircuitBreaker.ConsecutiveFailures),
		FailureRatio:    1.0,
		OpenTimeout:     time.Duration(cfg.CircuitBreaker.CooldownSeconds) * time.Second,
		HalfOpenMaxReqs: uint32(cfg.CircuitBreaker.HalfOpenMaxRequests),
		CountInterval:   time.Minute,
	}
}

func buildResolver(cfg *config.Config, strategy cache.Strategy, breakers *circuitbreaker.Manager, log zerolog.Logger) *externaldata.Resolver {
	borrowRate := externaldata.NewBorrowRateClient(externaldata.ProviderConfig{
		BaseURL:        cfg.Providers.BorrowRate.BaseURL,
		Timeout:        cfg.Providers.BorrowRate.Timeout(),
		RequestsPerSec: cfg.Providers.BorrowRate.RequestsPerSec,
		Burst:          cfg.Providers.BorrowRate.Burst,
	}, breakers.BorrowRate(), log)

	volatility := externaldata.NewVolatilityClient(externaldata.ProviderConfig{
		BaseURL:        cfg.Providers.Volatility.BaseURL,
		Timeout:        cfg.Providers.Volatility.Timeout(),
		RequestsPerSec: cfg.Providers.Volatility.RequestsPerSec,
		Burst:          cfg.Providers.Volatility.Burst,
	}, breakers.Volatility(), log)

	eventCalendar := externaldata.NewEventCalendarClient(externaldata.ProviderConfig{
		BaseURL:        cfg.Providers.EventCalendar.BaseURL,
		Timeout:        cfg.Providers.EventCalendar.Timeout(),
		RequestsPerSec: cfg.Providers.EventCalendar.RequestsPerSec,
		Burst:          cfg.Providers.EventCalendar.Burst,
	}, breakers.EventCalendar(), log)

	fallback := coordinator.NewCacheFallback(strategy)
	return externaldata.NewResolver(borrowRate, volatility, eventCalendar, fallback)
}
