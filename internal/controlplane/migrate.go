package controlplane

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/carplatform/admission/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies any pending control-plane schema migrations. It does not
// touch per-tenant databases — those are provisioned by the out-of-scope
// tenant provisioning workflow; this module only consumes their schema.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("controlplane: set dialect: %w", err)
	}

	db := s.db.DB
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("controlplane: migrate: %w", err)
	}

	logger.Database().Info().Msg("control-plane schema up to date")
	return nil
}

// MigrateDB is exposed for callers (tests, tooling) holding a raw *sql.DB
// rather than a Store.
func MigrateDB(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("controlplane: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("controlplane: migrate: %w", err)
	}
	return nil
}
