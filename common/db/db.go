package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/logger"
)

// Dialect identifies the SQL dialect of the connected database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func init() {
	// modernc.org/sqlite registers as "sqlite"; teach sqlx its bind style.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps sqlx with dialect awareness. Queries are written with "?"
// placeholders and passed through Rebind before execution, so the same
// SQL text runs on SQLite and PostgreSQL.
type DB struct {
	*sqlx.DB
	dialect Dialect
	log     *logger.Logger
}

// New opens a database connection from the configured URL.
// sqlite://<path> opens an embedded SQLite database (the default),
// postgres:// opens a PostgreSQL pool via the pgx stdlib driver.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	dialect, dsn, err := parseURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	var conn *sqlx.DB
	switch dialect {
	case DialectSQLite:
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		conn, err = sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// SQLite supports a single writer; serialize through one connection.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)

		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("apply %s: %w", pragma, err)
			}
		}

	case DialectPostgres:
		conn, err = sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		conn.SetMaxOpenConns(cfg.Database.MaxConns)
		conn.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected", "dialect", string(dialect))

	return &DB{
		DB:      conn,
		dialect: dialect,
		log:     log,
	}, nil
}

// Dialect returns the SQL dialect of the connected database.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Health checks database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.log.Info("closing database connection")
	return db.DB.Close()
}

func parseURL(url string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if path == "" {
			return "", "", fmt.Errorf("sqlite URL missing path: %s", url)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL: %s", url)
	}
}
