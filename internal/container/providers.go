package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/application/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/audit"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/authz"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/metrics"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/repository"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/barangay-lifecycle/pkg/database"
	"github.com/garyjia/barangay-lifecycle/pkg/utils"
)

// StoreBundle holds the record store and its transaction manager.
type StoreBundle struct {
	// DB is nil for the memory store
	DB        *database.DB
	Requests  port.RequestRepository
	History   port.HistoryRepository
	TxManager port.TransactionManager
}

// AuthzBundle holds the authorizer and its optional reloader.
type AuthzBundle struct {
	Authorizer *authz.Authorizer
	Reloader   *authz.Reloader
}

// AuditBundle holds the dispatcher and the optional stream delivery.
type AuditBundle struct {
	Dispatcher dispatcher.Dispatcher
	Redis      *redis.Client
	Delivery   *audit.Delivery
}

// ProvideStore opens the configured record store.
// The sqlite store applies pending migrations when AutoMigrate is set.
func ProvideStore(ctx context.Context, cfg *Config, logger *zap.Logger) (*StoreBundle, error) {
	if cfg.Storage == StorageMemory {
		store := memory.NewStore()
		logger.Info("Using in-memory store")
		return &StoreBundle{Requests: store, History: store, TxManager: store}, nil
	}

	db, err := OpenDatabase(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := database.NewMigrator(db, logger).Run(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations checked", zap.Int("applied", applied))
	}

	return &StoreBundle{
		DB:        db,
		Requests:  repository.NewRequestRepository(db.DB, logger),
		History:   repository.NewHistoryRepository(db.DB, logger),
		TxManager: sqlite.NewDB(db.DB, logger),
	}, nil
}

// OpenDatabase opens the SQLite database with WAL and busy timeout settings.
func OpenDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return database.New(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
}

// ProvideAuthz loads the staff directory and builds the authorizer.
func ProvideAuthz(cfg *AuthzConfig, logger *zap.Logger) (*AuthzBundle, error) {
	dir, err := authz.LoadDirectory(cfg.StaffDirectory)
	if err != nil {
		return nil, err
	}

	authorizer, err := authz.NewAuthorizer(dir, logger.Named("authz"))
	if err != nil {
		return nil, err
	}

	bundle := &AuthzBundle{Authorizer: authorizer}
	if cfg.ReloadInterval > 0 {
		bundle.Reloader = authz.NewReloader(cfg.StaffDirectory, cfg.ReloadInterval, authorizer, logger.Named("authz"))
	}

	logger.Info("Staff directory loaded",
		zap.String("path", cfg.StaffDirectory),
		zap.Int("members", len(dir.Members)),
		zap.Bool("resident_self_service", dir.ResidentSelfService))
	return bundle, nil
}

// ProvideAudit creates the dispatcher and subscribes the audit handlers.
// Every transition is logged; the Redis stream is used only when configured.
func ProvideAudit(ctx context.Context, cfg *AuditConfig, m *metrics.Metrics, logger *zap.Logger) (*AuditBundle, error) {
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))))
	disp.SubscribeAll("audit-log", audit.LogHandler(logger))

	bundle := &AuditBundle{Dispatcher: disp}
	if cfg.RedisAddr == "" {
		return bundle, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	publisher := audit.NewStreamPublisher(client, cfg.RedisStream, cfg.StreamMaxLen)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := publisher.Ping(pingCtx); err != nil {
		// Delivery retries until Redis is reachable, so startup continues.
		logger.Warn("Redis unreachable at startup",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err))
	}

	var opts []audit.DeliveryOption
	if m != nil {
		opts = append(opts, audit.WithObserver(m))
	}
	delivery := audit.NewDelivery(publisher, cfg.Delivery, logger, opts...)
	disp.Subscribe(event.TypeRequestTransitioned, "audit-stream", delivery.Handler())

	bundle.Redis = client
	bundle.Delivery = delivery
	return bundle, nil
}

// ProvideEngine builds the lifecycle engine over the store.
func ProvideEngine(store *StoreBundle, authorizer port.AuthorizationContext, disp dispatcher.Dispatcher, m *metrics.Metrics, cfg *EngineConfig, logger *zap.Logger) workflow.LifecycleEngine {
	opts := []workflow.Option{
		workflow.WithAuditSink(dispatcher.NewAuditSink(disp)),
		workflow.WithDispatcher(disp),
		workflow.WithLogger(utils.NewKVLogger(logger.Named("engine"))),
		workflow.WithRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
	}
	if m != nil {
		opts = append(opts, workflow.WithMetrics(m))
	}

	return workflow.NewEngine(store.Requests, store.History, store.TxManager, authorizer, opts...)
}
