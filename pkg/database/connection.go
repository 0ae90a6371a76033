package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
)

const pingTimeout = 5 * time.Second

// DB wraps the sql connection pool together with its configuration
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens a PostgreSQL pool, applies the pool limits from
// configuration, and verifies reachability before returning
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %q on %s: %w", cfg.Name, cfg.Host, err)
	}

	log.WithFields(map[string]interface{}{
		"host":           cfg.Host,
		"database":       cfg.Name,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("Database connection established")

	return &DB{
		DB:     pool,
		config: cfg,
		logger: log,
	}, nil
}

func dsn(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode,
	)
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health reports whether the database is currently reachable
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	return db.PingContext(ctx)
}
