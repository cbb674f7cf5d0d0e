// Package app wires the application container.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	choresServices "github.com/choreminder/choreminder/internal/chores/application/services"
	choresDomain "github.com/choreminder/choreminder/internal/chores/domain"
	choresPersistence "github.com/choreminder/choreminder/internal/chores/infrastructure/persistence"
	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
	householdPersistence "github.com/choreminder/choreminder/internal/household/infrastructure/persistence"
	notifServices "github.com/choreminder/choreminder/internal/notifications/application/services"
	"github.com/choreminder/choreminder/internal/notifications/application/subscribers"
	notifDomain "github.com/choreminder/choreminder/internal/notifications/domain"
	"github.com/choreminder/choreminder/internal/notifications/infrastructure/messaging"
	notifPersistence "github.com/choreminder/choreminder/internal/notifications/infrastructure/persistence"
	"github.com/choreminder/choreminder/internal/notifications/infrastructure/ratelimit"
	sharedApplication "github.com/choreminder/choreminder/internal/shared/application"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/database"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/eventbus"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
	"github.com/choreminder/choreminder/pkg/config"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBDriver database.Driver
	PGPool   *pgxpool.Pool
	SQLiteDB *sql.DB

	// Redis
	RedisClient *redis.Client

	// Repositories
	MemberRepo   householdDomain.MemberRepository
	TaskRepo     choresDomain.TaskRepository
	InstanceRepo choresDomain.InstanceRepository
	RuleRepo     notifDomain.RuleRepository
	ScheduleRepo notifDomain.ScheduleRepository

	UnitOfWork sharedApplication.UnitOfWork

	// Event bus. EventBus dispatches to in-process consumers; the
	// publisher additionally mirrors events to RabbitMQ when configured.
	EventBus       *eventbus.InProcessEventBus
	EventPublisher eventbus.Publisher

	Throttle  notifDomain.ThrottleStore
	Messenger notifDomain.Messenger

	// Services
	Generator        *choresServices.InstanceGenerator
	ConflictDetector *choresServices.ConflictDetector
	LifecycleEmitter *choresServices.LifecycleEmitter
	RuleEngine       *notifServices.RuleEngine
	Dispatcher       *notifServices.Dispatcher
	ChoreConsumer    *subscribers.ChoreEventConsumer
}

// NewContainer creates and wires all dependencies. The database driver
// is detected from the connection URL; SQLite keeps the zero-config
// local mode working without PostgreSQL, Redis, or RabbitMQ.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initEventBus()
	c.initServices()

	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger
	c.DBDriver = database.DetectDriver(cfg.DatabaseURL)

	switch c.DBDriver {
	case database.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.PGPool = pool

		c.MemberRepo = householdPersistence.NewPostgresMemberRepository(pool)
		c.TaskRepo = choresPersistence.NewPostgresTaskRepository(pool)
		c.InstanceRepo = choresPersistence.NewPostgresInstanceRepository(pool)
		c.RuleRepo = notifPersistence.NewPostgresRuleRepository(pool)
		c.ScheduleRepo = notifPersistence.NewPostgresScheduleRepository(pool)
		c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
		logger.Info("connected to database", "driver", "postgres")

	case database.DriverSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.SQLiteDB = db

		c.MemberRepo = householdPersistence.NewSQLiteMemberRepository(db)
		c.TaskRepo = choresPersistence.NewSQLiteTaskRepository(db)
		c.InstanceRepo = choresPersistence.NewSQLiteInstanceRepository(db)
		c.RuleRepo = notifPersistence.NewSQLiteRuleRepository(db)
		c.ScheduleRepo = notifPersistence.NewSQLiteScheduleRepository(db)
		c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
		logger.Info("connected to database", "driver", "sqlite")

	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}

	return nil
}

// initRedis connects the shared throttle store. Without Redis the
// counters live in process memory, which is fine for a single worker.
func (c *Container) initRedis(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			logger.Warn("invalid Redis URL, throttle counters will be in-memory", "error", err)
		} else {
			client := redis.NewClient(opt)
			if err := client.Ping(ctx).Err(); err != nil {
				if cfg.IsProduction() {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
				logger.Warn("Redis not available, throttle counters will be in-memory", "error", err)
			} else {
				c.RedisClient = client
				logger.Info("connected to Redis")
			}
		}
	}

	if c.RedisClient != nil {
		c.Throttle = ratelimit.NewRedisStore(c.RedisClient)
	} else {
		c.Throttle = ratelimit.NewMemoryStore()
	}
	return nil
}

func (c *Container) initEventBus() {
	cfg, logger := c.Config, c.Logger

	c.EventBus = eventbus.NewInProcessEventBus(logger)
	c.EventPublisher = c.EventBus

	if cfg.RabbitMQURL != "" {
		rabbit, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, events stay in-process", "error", err)
		} else {
			c.EventPublisher = eventbus.NewFanoutPublisher(rabbit, c.EventBus)
			logger.Info("connected to RabbitMQ")
		}
	}
}

func (c *Container) initServices() {
	cfg, logger := c.Config, c.Logger

	c.Messenger = messaging.NewBreakerMessenger(
		messaging.NewLogMessenger(logger),
		messaging.BreakerConfig{
			MaxFailures:  cfg.BreakerMaxFailures,
			OpenDuration: cfg.BreakerOpenDuration,
		},
		logger,
	)

	c.Generator = choresServices.NewInstanceGenerator(
		c.TaskRepo, c.InstanceRepo, c.UnitOfWork, c.EventPublisher, logger)
	c.ConflictDetector = choresServices.NewConflictDetector(
		c.InstanceRepo, c.MemberRepo, logger)
	c.LifecycleEmitter = choresServices.NewLifecycleEmitter(
		c.TaskRepo, c.InstanceRepo, c.EventPublisher, logger)

	c.RuleEngine = notifServices.NewRuleEngine(
		c.RuleRepo, c.ScheduleRepo, c.MemberRepo, c.Throttle,
		cfg.DefaultMaxAttempts, logger)
	c.Dispatcher = notifServices.NewDispatcher(
		c.ScheduleRepo, c.RuleRepo, c.MemberRepo, c.Throttle,
		c.Messenger, notifServices.NewTemplateComposer(), c.EventPublisher,
		cfg.SweepBatchSize, logger)

	c.ChoreConsumer = subscribers.NewChoreEventConsumer(c.RuleEngine, logger)
	c.EventBus.RegisterConsumer(c.ChoreConsumer)
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}

	if c.PGPool != nil {
		c.PGPool.Close()
		c.Logger.Info("PostgreSQL connection closed")
	}

	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		} else {
			c.Logger.Info("SQLite connection closed")
		}
	}
}
