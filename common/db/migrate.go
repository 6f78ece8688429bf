package db

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations for the connected dialect.
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	var gooseDialect, dir string
	switch db.dialect {
	case DialectPostgres:
		gooseDialect, dir = "postgres", "migrations/postgres"
	default:
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB.DB, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	db.log.Info("schema migrations applied", "dialect", string(db.dialect))
	return nil
}
