// Package migration creates the schema on startup so the service is usable
// out of the box. Postgres runs versioned SQL migrations; other dialects
// fall back to AutoMigrate for local development and tests.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	outboxdomain "github.com/openrental/reserva/internal/outbox/domain"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	reservationdomain "github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate mirrors the SQL schema through gorm for non-postgres dialects.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&reservationdomain.Reservation{},
		&reservationdomain.Driver{},
		&reservationdomain.Contact{},
		&reservationdomain.PricingItem{},
		&paymentdomain.Payment{},
		&outboxdomain.OutboxEvent{},
		&idemdomain.Record{},
		&supplierdomain.Request{},
	)
}
