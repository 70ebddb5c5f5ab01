package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pingTimeout 建连后首次 ping 的超时
const pingTimeout = 5 * time.Second

// DB wraps gorm.DB with configuration-aware helpers
type DB struct {
	*gorm.DB
	config *Config
	logger *logger.Logger
}

// New opens the database described by cfg and pings it
func New(cfg *Config, log *logger.Logger) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	log = logger.OrDefault(log).Named("database")

	gdb, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:  &gormLogger{logger: log, level: parseGormLevel(cfg.LogLevel), slowThreshold: cfg.SlowThreshold},
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: gdb, config: cfg, logger: log}
	if err := db.configurePool(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	fields := []zap.Field{zap.String("driver", cfg.Driver)}
	if cfg.Driver == DriverSQLite {
		fields = append(fields, zap.String("path", cfg.Path))
	} else {
		fields = append(fields, zap.String("host", cfg.Host), zap.String("database", cfg.DBName))
	}
	log.Info("database connected", fields...)
	return db, nil
}

func dialector(cfg *Config) gorm.Dialector {
	if cfg.Driver == DriverSQLite {
		return sqlite.Open(cfg.Path)
	}
	return postgres.Open(cfg.DSN())
}

func (db *DB) configurePool() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(db.config.ConnMaxLifetime)
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	db.logger.Debug("closing database connection")
	return sqlDB.Close()
}

// HealthCheck pings the underlying connection pool
func (db *DB) HealthCheck(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) Config() *Config {
	return db.config
}

// AutoMigrate migrates models only when automigrate is enabled
func (db *DB) AutoMigrate(models ...any) error {
	if !db.config.AutoMigrate {
		db.logger.Debug("auto migration disabled")
		return nil
	}

	start := time.Now()
	if err := db.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	db.logger.Info("auto migration completed",
		zap.Int("models", len(models)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func IsRecordNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func parseGormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// gormLogger routes gorm output through zap. Record-not-found is not an error
// here: repositories map it to their own result.
type gormLogger struct {
	logger        *logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	var write func(string, ...zap.Field)
	switch {
	case failed && l.level >= gormlogger.Error:
		write = l.logger.Error
	case slow && l.level >= gormlogger.Warn:
		write = l.logger.Warn
	case l.level >= gormlogger.Info:
		write = l.logger.Debug
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("rows", rows)}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	write("database query", fields...)
}
