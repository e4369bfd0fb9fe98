package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/dispatcher"
	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/config"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/membership-approvals/internal/infrastructure/seed"
	"github.com/garyjia/membership-approvals/internal/infrastructure/tracing"
	"github.com/garyjia/membership-approvals/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	conn           *database.DB
	db             *sqlite.DB
	repositories   *RepositoryBundle
	closeRelay     func() error
	shutdownTraces tracing.ShutdownFunc

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	mu     sync.Mutex
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
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
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

// Start initializes all components. Every event handler is subscribed
// before Start returns, so no request can be accepted ahead of its consumers.
// On failure the components already started are closed again.
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")
	defer func() {
		if err != nil {
			_ = c.teardown()
		}
	}()

	if err := c.initTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initDispatcherAndServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Dispatcher and services initialized")

	if err := c.initIntegrations(); err != nil {
		return fmt.Errorf("failed to initialize integrations: %w", err)
	}

	if err := c.applySeed(ctx); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
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
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// In-flight deliveries finish before their stores go away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.closeRelay != nil {
		if err := c.closeRelay(); err != nil {
			c.logger.Error("Failed to close Redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.closeRelay = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.conn = nil
	}

	if c.shutdownTraces != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.shutdownTraces(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		c.shutdownTraces = nil
	}

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %v", len(errs), errs)
	}
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case c.conn == nil:
		status.Components["database"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	default:
		if err := c.conn.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: true,
			Message: c.config.Events.Delivery,
		}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	}

	if c.config.Redis.Enabled {
		status.Components["redis_relay"] = ComponentHealth{Healthy: c.closeRelay != nil}
	}

	return status
}

func (c *Container) initTracing() error {
	shutdown, err := tracing.Setup(tracing.Config{
		Enabled:     c.config.Tracing.Enabled,
		ServiceName: c.config.Tracing.ServiceName,
		OutputFile:  c.config.Tracing.OutputFile,
	})
	if err != nil {
		return err
	}
	c.shutdownTraces = shutdown
	return nil
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(dbBundle, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initDispatcherAndServices() error {
	disp, err := ProvideDispatcher(&c.config.Events, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Config:     c.config,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	return RegisterHandlers(&HandlerDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Config:     c.config,
		Logger:     c.logger,
	})
}

// initIntegrations subscribes the optional out-of-process consumers
func (c *Container) initIntegrations() error {
	if c.config.Redis.Enabled {
		closeRelay, err := ProvideRelay(&c.config.Redis, c.dispatcher, c.logger)
		if err != nil {
			return err
		}
		c.closeRelay = closeRelay
		c.logger.Info("Redis event relay enabled", zap.String("stream", c.config.Redis.Stream))
	}

	if c.config.Lark.Enabled {
		ProvideNotifier(&c.config.Lark, c.dispatcher, c.logger)
		c.logger.Info("Lark approver notifications enabled")
	}
	return nil
}

func (c *Container) applySeed(ctx context.Context) error {
	if !c.config.Seed.Enabled {
		return nil
	}

	f, err := seed.Load(c.config.Seed.File)
	if err != nil {
		return err
	}

	seeder := seed.NewSeeder(
		c.services.Workflow,
		c.repositories.Forum,
		c.repositories.Area,
		c.repositories.Unit,
		c.db,
		c.logger,
	)
	_, err = seeder.Apply(ctx, f)
	return err
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
