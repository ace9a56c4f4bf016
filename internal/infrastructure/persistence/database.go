package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// Option configures how the database is opened
type Option func(*options)

type options struct {
	gormLogger gormlogger.Interface
	logger     *zap.Logger
}

// WithGormLogger sets the logger GORM reports queries to.
func WithGormLogger(l gormlogger.Interface) Option {
	return func(o *options) {
		o.gormLogger = l
	}
}

// WithLogger sets the logger for connection attempts.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewDatabase connects to PostgreSQL, retrying with exponential backoff until
// cfg.ConnectTimeout elapses or ctx is done.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	return Open(ctx, postgres.Open(cfg.DSN()), cfg, opts...)
}

// Open connects through dialector and applies the pool settings of cfg.
func Open(ctx context.Context, dialector gorm.Dialector, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	o := options{gormLogger: gormlogger.Default.LogMode(gormlogger.Silent), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := connect(ctx, cfg.ConnectTimeout, o.logger, func() (*gorm.DB, error) {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger:                 o.gormLogger,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	return &Database{DB: db}, nil
}

// connect retries open until it succeeds, returns a permanent error, or
// timeout elapses. A zero timeout tries once.
func connect(ctx context.Context, timeout time.Duration, log *zap.Logger, open func() (*gorm.DB, error)) (*gorm.DB, error) {
	if timeout <= 0 {
		return open()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, open,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Database not reachable, retrying",
				zap.Error(err),
				zap.Duration("retry_in", next),
			)
		}),
	)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection pool statistics and an error if unable to retrieve
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxIdleTimeClosed  int64
	MaxLifetimeClosed  int64
}
