// Package main provides walletd, the wallet ledger daemon: the HTTP
// surface, the transfer engine's worker pool, and the durable store and
// cache connections wired together at one composition root.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/api"
	"github.com/tabdeal-exchange/wallet-ledger/internal/cache"
	"github.com/tabdeal-exchange/wallet-ledger/internal/config"
	"github.com/tabdeal-exchange/wallet-ledger/internal/identity"
	"github.com/tabdeal-exchange/wallet-ledger/internal/intake"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
	"github.com/tabdeal-exchange/wallet-ledger/internal/lock"
	"github.com/tabdeal-exchange/wallet-ledger/internal/transfer"
	"github.com/tabdeal-exchange/wallet-ledger/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.walletd", "Data directory")
		configFile  = flag.String("config", "", "Config file path; only its directory is used, and the file read there is always config.yaml (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("api", "", "HTTP API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("walletd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfgDir := *dataDir
	if *configFile != "" {
		cfgDir = filepath.Dir(*configFile)
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", config.ConfigPath(cfg.Storage.DataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := ledger.New(&ledger.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to initialize ledger store", "error", err)
	}
	defer store.Close()
	log.Info("ledger store initialized", "data_dir", cfg.Storage.DataDir)

	cacheClient := cache.New(&cache.Config{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		log.Fatal("failed to connect to cache", "addr", cfg.Cache.Addr, "error", err)
	}
	log.Info("cache connected", "addr", cfg.Cache.Addr)

	lockMgr := lock.NewManager(cacheClient.Client(), lock.Config{
		AppLockTimeout: cfg.Lock.AppLockTimeout,
		LeaseTTL:       cfg.Lock.LeaseTTL,
		RetryAttempts:  cfg.Lock.RetryAttempts,
		RetryDelay:     cfg.Lock.RetryDelay,
	})

	identityRegistry := identity.New(store, cacheClient)

	minimumAmount, err := decimal.NewFromString(cfg.Transfer.MinimumAmount)
	if err != nil {
		log.Fatal("invalid transfer.minimum_amount in config", "value", cfg.Transfer.MinimumAmount, "error", err)
	}

	engine := transfer.New(store, cacheClient, lockMgr, identityRegistry, transfer.Config{
		CASRetryAttempts:  cfg.Transfer.CASRetryAttempts,
		CASRetryBaseDelay: cfg.Transfer.CASRetryBaseDelay,
		MinimumAmount:     minimumAmount,
		WorkerPoolSize:    cfg.Transfer.WorkerPoolSize,
	})
	defer engine.Stop()
	log.Info("transfer engine started", "workers", cfg.Transfer.WorkerPoolSize)

	in := intake.New(store, identityRegistry, engine)

	apiServer := api.NewServer(in, identityRegistry)
	if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
		log.Fatal("failed to start API server", "error", err)
	}

	log.Info("walletd ready", "api", cfg.API.ListenAddr, "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	cancel()

	if err := apiServer.Stop(); err != nil {
		log.Error("error stopping API server", "error", err)
	}

	log.Info("goodbye")
}
