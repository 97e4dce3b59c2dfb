package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/application/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/authz"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/metrics"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	store   *StoreBundle
	authz   *AuthzBundle
	metrics *metrics.Metrics
	audit   *AuditBundle

	// Application
	engine workflow.LifecycleEngine

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Record store (sqlite with migrations, or memory)
// 2. Staff directory and authorizer
// 3. Metrics
// 4. Dispatcher and audit delivery
// 5. Lifecycle engine
// 6. Workers
// A failed step tears down whatever was already built and the container cannot be restarted.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.start(); err != nil {
		if tdErr := c.teardown(); tdErr != nil {
			c.logger.Error("Teardown after failed start", zap.Error(tdErr))
		}
		c.closed.Store(true)
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) start() error {
	// Step 1: record store
	store, err := ProvideStore(c.ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	c.store = store
	c.logger.Info("Store initialized", zap.String("driver", c.config.Storage))

	// Step 2: staff directory
	authzBundle, err := ProvideAuthz(&c.config.Authz, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize authorization: %w", err)
	}
	c.authz = authzBundle

	// Step 3: metrics
	if c.config.MetricsEnabled {
		c.metrics = metrics.New()
	}

	// Step 4: dispatcher and audit delivery
	auditBundle, err := ProvideAudit(c.ctx, &c.config.Audit, c.metrics, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit: %w", err)
	}
	c.audit = auditBundle
	c.logger.Info("Audit pipeline initialized", zap.Bool("redis_stream", auditBundle.Delivery != nil))

	// Step 5: engine
	c.engine = ProvideEngine(c.store, c.authz.Authorizer, c.audit.Dispatcher, c.metrics, &c.config.Engine, c.logger)

	// Step 6: workers
	c.workers = worker.NewWorkerManager(c.logger)
	if c.audit.Delivery != nil {
		c.workers.Register(c.audit.Delivery)
	}
	if c.authz.Reloader != nil {
		c.workers.Register(c.authz.Reloader)
	}
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Strings("workers", c.workers.Names()))

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases every initialized component, last built first
func (c *Container) teardown() error {
	var errs []error

	// Workers stop first so the audit queue drains before the dispatcher closes.
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.audit != nil {
		if err := c.audit.Dispatcher.Close(); err != nil && !errors.Is(err, dispatcher.ErrClosed) {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		if c.audit.Redis != nil {
			if err := c.audit.Redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.store != nil && c.store.DB != nil {
		if err := c.store.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	switch {
	case c.store == nil:
		set("store", fmt.Errorf("not initialized"))
	case c.store.DB != nil:
		set("store", c.store.DB.PingContext(ctx))
	default:
		set("store", nil)
	}

	if c.audit != nil && c.audit.Redis != nil {
		set("audit_stream", c.audit.Redis.Ping(ctx).Err())
	}

	if c.workers == nil || !c.workers.IsRunning() {
		set("workers", fmt.Errorf("not running"))
	} else {
		set("workers", nil)
	}

	return status
}

// Getters for accessing container components

// Engine returns the lifecycle engine.
func (c *Container) Engine() workflow.LifecycleEngine {
	return c.engine
}

// Requests returns the request repository.
func (c *Container) Requests() port.RequestRepository {
	return c.store.Requests
}

// History returns the history repository.
func (c *Container) History() port.HistoryRepository {
	return c.store.History
}

// Authorizer returns the staff directory authorizer.
func (c *Container) Authorizer() *authz.Authorizer {
	return c.authz.Authorizer
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.audit.Dispatcher
}

// Metrics returns the prometheus collectors, or nil when disabled.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
