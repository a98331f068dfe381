package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the global PostgreSQL connection pool
var DB *pgxpool.Pool

// PGConfig holds the PostgreSQL configuration
type PGConfig struct {
	URL      string
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

// cfg holds the parsed configuration
var cfg PGConfig

// Database returns the configured database name
func Database() string {
	return cfg.Database
}

// ConnString returns the effective connection string. DATABASE_URL takes
// precedence over the discrete POSTGRES_* variables.
func ConnString() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// Load initializes configuration from environment variables and creates the
// connection pool
func Load() error {
	cfg.URL = os.Getenv("DATABASE_URL")

	cfg.Host = os.Getenv("POSTGRES_HOST")
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	cfg.Port = os.Getenv("POSTGRES_PORT")
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	cfg.Database = os.Getenv("POSTGRES_DATABASE")
	if cfg.Database == "" {
		cfg.Database = "dispatch"
	}
	cfg.Username = os.Getenv("POSTGRES_USERNAME")
	if cfg.Username == "" {
		cfg.Username = "postgres"
	}
	cfg.Password = os.Getenv("POSTGRES_PASSWORD")

	log.Printf("Connecting to PostgreSQL: host=%s, port=%s, database=%s, username=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username)

	poolCfg, err := pgxpool.ParseConfig(ConnString())
	if err != nil {
		return fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	DB = pool
	log.Printf("Connected to PostgreSQL successfully")

	return nil
}

// Close closes the PostgreSQL connection pool
func Close() {
	if DB != nil {
		DB.Close()
	}
}
