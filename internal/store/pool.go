// internal/store/pool.go
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sua-org/nursecall-bus/internal/config"
)

// Open conecta no MySQL, configura o pool e testa a conexão.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	return open(ctx, cfg.DSN(), cfg, logger)
}

// OpenServer conecta sem selecionar banco, para CREATE/DROP DATABASE.
func OpenServer(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	return open(ctx, cfg.ServerDSN(), cfg, logger)
}

func open(ctx context.Context, dsn string, cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping mysql %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("database pool configured",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
		zap.Int("max_idle", cfg.MaxIdleConns),
		zap.Int("max_open", cfg.MaxOpenConns),
	)
	return New(db), nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
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

// HealthCheck usado pelo /api/health.
func (s *GormStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// PoolStats expõe as estatísticas do database/sql.
func (s *GormStore) PoolStats() (map[string]interface{}, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	st := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": st.MaxOpenConnections,
		"open_connections":     st.OpenConnections,
		"in_use":               st.InUse,
		"idle":                 st.Idle,
		"wait_count":           st.WaitCount,
		"wait_duration":        st.WaitDuration.String(),
	}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
