package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/api"
	"alert-executor/internal/events"
	"alert-executor/internal/execution"
	"alert-executor/internal/gateway"
	"alert-executor/internal/ledger"
	"alert-executor/internal/monitor"
	"alert-executor/internal/scheduler"
	"alert-executor/internal/settings"
	"alert-executor/pkg/config"
	"alert-executor/pkg/crypto"
	"alert-executor/pkg/db"
	"alert-executor/pkg/logger"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	genKey := flag.Bool("gen-key", false, "print a new MASTER_ENCRYPTION_KEY and exit")
	flag.Parse()

	switch {
	case *hashPassword != "":
		hash, err := api.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	case *genKey:
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("alert executor stopped", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting alert executor", zap.String("port", cfg.Port),
		zap.String("ledger", cfg.LedgerBackend), zap.String("default_exchange", cfg.DefaultExchange))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Config & credential store
	var sealer settings.Sealer
	if os.Getenv("MASTER_ENCRYPTION_KEY") != "" {
		km, err := crypto.NewKeyManager(os.Getenv)
		if err != nil {
			return fmt.Errorf("init key manager: %w", err)
		}
		sealer = km
		log.Info("credential encryption enabled", zap.Int("key_version", km.CurrentVersion()))
	} else {
		log.Warn("MASTER_ENCRYPTION_KEY not set; exchange credentials are stored unencrypted")
	}
	store := settings.NewStore(database.KV(), sealer, log)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Ledger
	alerts, closeLedger, err := openLedger(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeLedger()

	// Exchange gateway
	registry := gateway.DefaultRegistry(log)
	if cfg.ExchangesFile != "" {
		if err := registry.LoadOverrides(cfg.ExchangesFile); err != nil {
			return err
		}
	}
	if _, err := registry.Lookup(cfg.DefaultExchange); err != nil {
		return fmt.Errorf("DEFAULT_EXCHANGE: %w", err)
	}
	gateways := gateway.NewManager(gateway.DefaultConfig(), log)
	client := gateway.NewClient(registry, gateways, cfg.GatewayTimeout, log)

	// Pipeline
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	metrics.SetGatewayStats(gateways.Stats)
	(&monitor.Monitor{Bus: bus, Metrics: metrics, Log: log}).Start(ctx)

	orch := execution.NewOrchestrator(alerts, registry, client, bus, metrics,
		execution.Options{RejectAmbiguousSide: cfg.RejectAmbiguousSide}, log)
	pipeline := execution.NewPipeline(alert.NewNormalizer(cfg.DefaultExchange), alerts, orch, store, bus, metrics, log)
	workers := execution.NewWorkers(pipeline.Handle, cfg.Workers, cfg.QueueSize, cfg.BackgroundDeadline, log)
	workers.Start(ctx)
	metrics.SetQueueDepth(workers.Pending)

	sched := scheduler.NewScheduler(ctx, alerts, cfg.AlertRetention, cfg.StalePendingAfter, log)
	if err := sched.RegisterAll(cfg.PruneSchedule, cfg.StaleCheckSchedule); err != nil {
		return err
	}
	sched.Start()
	sched.RunStaleCheckNow()

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Options{
		Pipeline:     pipeline,
		Orchestrator: orch,
		Workers:      workers,
		Ledger:       alerts,
		Settings:     store,
		Registry:     registry,
		Gateways:     gateways,
		Bus:          bus,
		Metrics:      metrics,
		Auth: api.AuthConfig{
			JWTSecret:         cfg.JWTSecret,
			AdminUser:         cfg.AdminUser,
			AdminPasswordHash: cfg.AdminPasswordHash,
			TokenTTL:          cfg.TokenTTL,
		},
		WebhookToken:   cfg.WebhookToken,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Log:            log,
	})
	httpServer := server.HTTPServer(":" + cfg.Port)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// Queued webhook alerts finish before storage closes.
	workers.Close()
	sched.Stop()
	cancel()
	log.Info("shutdown complete")
	return nil
}

// openLedger picks the alert ledger backend. The returned func releases it.
func openLedger(ctx context.Context, cfg *config.Config, database *db.Database) (ledger.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case "postgres":
		// NewPostgres applies the schema itself.
		pg, err := ledger.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg, pg.Close, nil
	case "blob":
		return ledger.NewBlob(database.KV(), 0), func() {}, nil
	case "sqlite", "":
		return ledger.NewSQLite(database), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
}
