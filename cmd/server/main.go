/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the GreenBank points engine. Handles
  configuration, backend selection, dependency injection, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, optional YAML file, env overrides)
  2. Build the zap logger and, if enabled, the tracer
  3. Open the primary document backend and the in-memory fallback
  4. Load the consistency index from disk
  5. Wire failover -> facade -> ledger/identity services
  6. Seed demo data if configured and the store is empty
  7. Serve HTTP until SIGINT/SIGTERM, then drain for 30s

COMMAND-LINE FLAGS:
  -config  Optional YAML config file path. Everything else comes from
           the environment; see config/config.go for the variable list.

BACKENDS (STORE_BACKEND):
  cortex   Remote vector store over HTTP (production)
  sqlite   Local durable store
  redis    Shared cache store
  memory   In-process only (tests, demos)

SEE ALSO:
  - config/config.go: Every knob and its default
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/greenbank/points-engine/api"
	"github.com/greenbank/points-engine/auth"
	"github.com/greenbank/points-engine/config"
	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/docstore/cortexstore"
	"github.com/greenbank/points-engine/docstore/memstore"
	"github.com/greenbank/points-engine/docstore/redistore"
	"github.com/greenbank/points-engine/docstore/sqlitestore"
	"github.com/greenbank/points-engine/identity"
	"github.com/greenbank/points-engine/ledger"
	"github.com/greenbank/points-engine/logging"
	"github.com/greenbank/points-engine/tracing"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		Dev:   cfg.Log.Dev,
		File:  cfg.Log.File,
	})
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	_, shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		log.Fatal("tracing init failed", zap.Error(err))
	}

	// Persistence tier: chosen primary plus the always-on memory fallback.
	primary, closeStore, err := openBackend(cfg, log)
	if err != nil {
		log.Fatal("backend init failed", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	index, err := docstore.LoadIndex(cfg.Store.IndexPath)
	if err != nil {
		log.Fatal("consistency index load failed", zap.String("path", cfg.Store.IndexPath), zap.Error(err))
	}

	ids, err := docstore.NewGenerator(cfg.Store.NodeID)
	if err != nil {
		log.Fatal("id generator init failed", zap.Error(err))
	}

	fo := docstore.NewFailover(primary, memstore.New(), nil, log)
	store := docstore.New(fo, index, ids, log)

	// Domain services.
	led := ledger.NewService(store,
		ledger.WithConversionRate(decimal.NewFromFloat(cfg.Ledger.ConversionRate)),
		ledger.WithWelcomeBonus(decimal.NewFromInt(cfg.Ledger.WelcomeBonus)),
		ledger.WithLogger(log),
	)

	kyc, fraud, bureau := identityProviders(cfg, log)
	ident := identity.NewService(store, kyc, fraud, log)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.AccessTTL())

	if cfg.Store.Seed {
		seedIfEmpty(store, led, log)
	}

	handler := api.NewHandler(ident, led, issuer, store, bureau, log)
	router := api.NewRouter(handler, cfg.Origins())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", cfg.Store.Backend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
}

// openBackend builds the configured primary backend. The returned close
// function is a no-op for backends without resources to release.
func openBackend(cfg *config.Config, log *zap.Logger) (docstore.Backend, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case "cortex":
		store := cortexstore.New(cfg.Store.CortexURL)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureCollections(ctx); err != nil {
			// The facade fails over to memory on first transport fault, so a
			// dead remote at boot is survivable. Log and continue.
			log.Warn("cortex collection setup failed, continuing", zap.Error(err))
		}
		return store, noop, nil

	case "sqlite":
		store, err := sqlitestore.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "redis":
		store, err := redistore.New(cfg.Store.RedisAddr, "", 0)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default: // memory
		return memstore.New(), noop, nil
	}
}

// identityProviders returns the compliance gateway client when configured,
// otherwise deterministic sandbox providers.
func identityProviders(cfg *config.Config, log *zap.Logger) (identity.KYCVerifier, identity.FraudChecker, identity.CreditBureau) {
	if cfg.Identity.CRSBaseURL != "" {
		crs := identity.NewCRSClient(cfg.Identity.CRSBaseURL, cfg.Identity.CRSUsername, cfg.Identity.CRSPassword, log)
		return crs, crs, crs
	}
	return identity.StaticKYC{Verified: true},
		identity.StaticFraud{Clear: true, RiskScore: 10},
		identity.StaticBureau{CreditScore: 720}
}

// seedIfEmpty loads the demo data once, keyed on an empty product catalog.
func seedIfEmpty(store *docstore.Facade, led *ledger.Service, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := store.GetAll(ctx, docstore.CollectionProducts, 1)
	if err != nil || len(existing) > 0 {
		return
	}

	res, err := led.Seed(ctx, auth.HashPassword)
	if err != nil {
		log.Warn("demo seed failed", zap.Error(err))
		return
	}
	log.Info("demo data seeded",
		zap.Int("users", res.Users),
		zap.Int("wallets", res.Wallets),
		zap.Int("products", res.Products))
}
