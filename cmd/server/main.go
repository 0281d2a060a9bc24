package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"giro/internal/bankauth"
	bankauthmetrics "giro/internal/bankauth/metrics"
	"giro/internal/bankauth/nonce"
	"giro/internal/bankauth/ticket"
	"giro/internal/ledger"
	ledgermetrics "giro/internal/ledger/metrics"
	"giro/internal/oracle"
	"giro/internal/platform/config"
	"giro/internal/platform/httpserver"
	"giro/internal/platform/logger"
	"giro/internal/platform/postgres"
	platformredis "giro/internal/platform/redis"
	httptransport "giro/internal/transport/http"
	"giro/pkg/platform/middleware/bankticket"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var health []httptransport.HealthChecker

	// Stores: Postgres and Redis when configured, memory otherwise.
	var ledgerStore ledger.Store
	pool, err := postgres.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		pgStore := ledger.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		ledgerStore = pgStore
		health = append(health, httptransport.HealthChecker{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	} else {
		log.Warn("postgres not configured, using in-memory ledger store")
		ledgerStore = ledger.NewInMemoryStore()
	}

	var nonceStore bankauth.NonceStore
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		nonceStore = nonce.NewRedisStore(redisClient, config.NonceTTL)
		health = append(health, httptransport.HealthChecker{Name: "redis", Check: redisClient.Health})
	} else {
		nonceStore = nonce.NewInMemoryStore(config.NonceTTL)
	}

	// Ownership oracle: fail closed when unconfigured.
	var eligibility oracle.Oracle
	if cfg.OracleRPCURL != "" && cfg.OracleContract != "" {
		ethOracle, err := oracle.Dial(ctx, cfg.OracleRPCURL, cfg.OracleContract, cfg.OracleTimeout)
		if err != nil {
			log.Error("oracle dial failed", "error", err)
			os.Exit(1)
		}
		eligibility = ethOracle
	} else {
		log.Warn("ownership oracle not configured, running in offline mode: ticket issuance will fail closed")
		eligibility = oracle.Offline{}
	}

	tickets := ticket.NewService(cfg.BankTicketSecret, "giro")
	authService := bankauth.NewService(
		nonceStore,
		ledgerStore,
		eligibility,
		tickets,
		cfg.TicketTTL(),
		log,
		bankauthmetrics.New(),
	)
	ledgerService := ledger.NewService(
		ledgerStore,
		ledger.NewFeePolicy(cfg.FeeBasisPoints, cfg.FeeCollectionRef),
		log,
		ledgermetrics.New(),
	)

	guard := bankticket.RequireTicket(ticket.NewMiddlewareAdapter(tickets), log)
	handler := httptransport.NewBankHandler(authService, ledgerService, health)
	router := httptransport.NewRouter(handler, guard)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting giro", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
