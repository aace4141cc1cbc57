package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/service"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/infrastructure/configloader"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/infrastructure/ledgerclient"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/infrastructure/restapi"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/infrastructure/txstore"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/logger"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/metrics"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/utils"
)

const serverShutdownTimeout = 5 * time.Second

func main() {
	configPath := utils.GetEnv("CONFIG_PATH", "config/config.yml")

	// Temporary logger for failures before the configured one exists.
	tempZapLogger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize temporary logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := configloader.Load(configPath)
	if err != nil {
		tempZapLogger.Fatal("Failed to load configuration", zap.String("file", configPath), zap.Error(err))
	}

	zapLogger, err := logger.InitZap(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		tempZapLogger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = zapLogger.Sync() }()

	appLogger := logger.NewSlogAdapter()
	logger.Info("Wallet server starting", "config", configPath, "wallet", cfg.Wallet.Filename)

	if err := run(cfg, appLogger); err != nil {
		logger.Fatal("Wallet server stopped with error", "error", err)
	}
	logger.Info("Wallet server stopped")
}

func run(cfg *configloader.Config, l port.Logger) error {

	if cfg.Metrics.Enabled {
		metrics.MustRegisterMetrics()
	}

	if err := utils.EnsureDir(cfg.Wallet.BackupDir); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	storePath := utils.StorePath(cfg.Wallet.BackupDir, cfg.Wallet.Filename)
	store, err := txstore.Open(storePath)
	if err != nil {
		return fmt.Errorf("open transaction store at %s: %w", storePath, err)
	}
	l.Info("Transaction store opened", "path", storePath)

	ledger := ledgerclient.New(ledgerclient.Options{
		BaseURL:        cfg.Ledger.BaseURL,
		RequestTimeout: time.Duration(cfg.Ledger.RequestTimeoutMillis) * time.Millisecond,
		ProveTimeout:   time.Duration(cfg.Ledger.ProveTimeoutMillis) * time.Millisecond,
		PollInterval:   time.Duration(cfg.Ledger.PollIntervalMillis) * time.Millisecond,
	}, l)

	manager := service.NewWalletManager(ledger, store, l, service.WalletManagerConfig{
		Cache: service.WalletStateCacheConfig{
			MaxRecoveryAttempts: cfg.Wallet.MaxRecoveryAttempts,
			RecoveryBackoff:     cfg.RecoveryBackoff(),
		},
		Tracker: service.TransactionTrackerConfig{
			MaxInFlight:   cfg.Tracker.MaxInFlight,
			ShutdownGrace: cfg.ShutdownGrace(),
		},
		ReceiptCacheTTL:          cfg.ReceiptCacheTTL(),
		ReceiptCacheCleanup:      cfg.ReceiptCacheCleanup(),
		FailInterruptedOnStartup: cfg.Tracker.FailInterruptedOnStartup,
	})
	manager.SetNotificationHandler(func(n entity.TransactionNotification) {
		l.Info("Transaction notification",
			"transaction_id", n.TransactionID,
			"tx_identifier", n.TxIdentifier,
			"status", n.Status,
			"message", n.Message,
			"error", n.Error,
		)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start wallet manager: %w", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := restapi.SetupRouter(
		restapi.NewWalletHandler(manager, cfg.Decimals(), l),
		restapi.RouterOptions{
			SwaggerEnabled: cfg.Swagger.Enabled,
			SwaggerPath:    cfg.Swagger.Path,
			MetricsEnabled: cfg.Metrics.Enabled,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("Starting HTTP server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error("HTTP server shutdown failed", "error", err)
		}
		return nil
	})

	serveErr := g.Wait()

	l.Info("Draining background sends")
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+serverShutdownTimeout)
	defer cancel()
	closeErr := manager.Close(closeCtx)

	return errors.Join(serveErr, closeErr)
}
