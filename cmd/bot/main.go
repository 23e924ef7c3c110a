// Linemart - Telegram storefront with balance topups and instant delivery
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/ozerovd/linemart/internal/bot"
	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/checkout"
	"github.com/ozerovd/linemart/internal/config"
	"github.com/ozerovd/linemart/internal/health"
	"github.com/ozerovd/linemart/internal/inventory"
	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/logging"
	"github.com/ozerovd/linemart/internal/metrics"
	"github.com/ozerovd/linemart/internal/payments"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/receipts"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/server"
	"github.com/ozerovd/linemart/internal/traces"
	"github.com/ozerovd/linemart/internal/users"
	"github.com/ozerovd/linemart/internal/watcher"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting linemart",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var db *sql.DB
	var (
		regStore  registry.Store
		ledStore  ledger.Store
		catStore  catalog.Store
		usrStore  users.Store
		rcptStore receipts.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		metrics.StartDBStatsCollector(ctx, db, 15*time.Second)

		regStore = registry.NewPostgresStore(db)
		ledStore = ledger.NewPostgresStore(db)
		catStore = catalog.NewPostgresStore(db)
		usrStore = users.NewPostgresStore(db)
		rcptStore = receipts.NewPostgresStore(db)
		logger.Info("using postgres stores")
	} else {
		regStore = registry.NewMemoryStore()
		ledStore = ledger.NewMemoryStore()
		catStore = catalog.NewMemoryStore()
		usrStore = users.NewMemoryStore()
		rcptStore = receipts.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	reg := registry.New(regStore)
	led := ledger.New(ledStore)
	cat := catalog.New(catStore)
	usr := users.New(usrStore)
	rcpt := receipts.New(rcptStore)

	pool, err := inventory.NewPool(cfg.InventoryDir)
	if err != nil {
		logger.Error("failed to open inventory dir", "dir", cfg.InventoryDir, "error", err)
		os.Exit(1)
	}

	chk := checkout.New(cat, pool, led, rcpt, logger)

	fiat := provider.WithBreaker(
		provider.NewStripeProvider(cfg.StripeKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger), "stripe")
	crypto := provider.WithBreaker(
		provider.NewNowPayProvider(cfg.CryptoAPIURL, cfg.CryptoAPIKey, logger), "nowpayments")

	// The watcher is wired through the bot's tracker hook; nil disables it.
	var deposits *watcher.Watcher
	botDeps := bot.Deps{
		Users:    usr,
		Catalog:  cat,
		Pool:     pool,
		Checkout: chk,
		Ledger:   led,
		Receipts: rcpt,
	}

	tg, err := bot.New(cfg, botDeps, logger)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	engine := payments.New(reg, led, usr, fiat, crypto, tg, payments.Config{
		MinTopup:    cfg.MinTopup,
		MaxTopup:    cfg.MaxTopup,
		Window:      cfg.PaymentWindow,
		ReferralPct: cfg.ReferralPct,
	}, logger)
	tg.SetEngine(engine)

	if cfg.EthRPCURL != "" && cfg.TokenContract != "" {
		wcfg := watcher.DefaultConfig()
		wcfg.RPCURL = cfg.EthRPCURL
		wcfg.TokenContract = common.HexToAddress(cfg.TokenContract)
		deposits, err = watcher.New(wcfg, engine, logger)
		if err != nil {
			logger.Error("failed to create deposit watcher", "error", err)
			os.Exit(1)
		}
		if err := deposits.Start(ctx); err != nil {
			logger.Error("failed to start deposit watcher", "error", err)
			os.Exit(1)
		}
		defer deposits.Stop()
		tg.SetTracker(deposits)
	}

	// Report pending work and resolved-but-uncredited invoices, then arm
	// the expiry sweep. Pending invoices survive restarts via the sweep.
	engine.LogStartupState(ctx)
	engine.Audit(ctx, 500)

	timer := payments.NewTimer(engine, logger)
	go timer.Start(ctx)
	defer timer.Stop()

	checks := health.NewRegistry()
	checks.Register("expiry_sweep", func(context.Context) health.Status {
		return health.Status{Name: "expiry_sweep", Healthy: timer.Running()}
	})
	checks.Register("inventory", func(context.Context) health.Status {
		st := health.Status{Name: "inventory", Healthy: true}
		if _, err := os.Stat(cfg.InventoryDir); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
		}
		return st
	})

	srv := server.New(cfg, server.Deps{
		Engine:   engine,
		Registry: reg,
		Ledger:   led,
		Catalog:  cat,
		Pool:     pool,
		DB:       db,
		Health:   checks,
	}, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx) }()
	go func() { errCh <- tg.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("component failed", "error", err)
		}
	}
	cancel()

	logger.Info("linemart stopped")
}
