package database

import (
	"context"
	"fmt"
	"time"

	"bybit-signal-trader/config"
	"bybit-signal-trader/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(cfg config.PostgresConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.WithComponent("database").Info("connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations executes database migrations. The UNIQUE constraint on
// active_lots.symbol is what enforces the one-open-lot-per-symbol invariant;
// OpenLot relies on the resulting 23505 error rather than a prior existence
// check.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS active_lots (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(50) NOT NULL UNIQUE,
			qty NUMERIC(20, 8) NOT NULL,
			price NUMERIC(20, 8) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS history_lots (
			id SERIAL PRIMARY KEY,
			action VARCHAR(50) NOT NULL,
			symbol VARCHAR(50) NOT NULL,
			qty NUMERIC(20, 8) NOT NULL,
			price NUMERIC(20, 8) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_lots_symbol ON history_lots(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_history_lots_created_at ON history_lots(created_at)`,

		// Single-row control state; all writers go through row-level UPDATE
		`CREATE TABLE IF NOT EXISTS control_state (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			price_ceiling NUMERIC(20, 8) NOT NULL DEFAULT 0,
			deployable_capital NUMERIC(20, 8) NOT NULL DEFAULT 0,
			max_open_lots INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO control_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	logging.WithComponent("database").Info("migrations completed", "count", len(migrations))
	return nil
}
