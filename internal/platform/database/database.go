package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"health-triage/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Open connects and pings, retrying up to attempts times with a fixed delay
// while the database comes up.
func Open(ctx context.Context, driver, dsn string, attempts int, delay time.Duration, logger zerolog.Logger) (*sql.DB, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := sql.Open(driver, dsn)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info().Str("driver", driver).Msg("connected to database")
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", i+1).Int("attempts", attempts).Msg("waiting for database")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, errors.Wrapf(lastErr, "connecting to %s", driver)
}

// Migrate applies the embedded migrations to a Postgres database.
func Migrate(dsn string, logger zerolog.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "loading migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return errors.Wrap(err, "migration init")
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("migrations already applied")
			return nil
		}
		return errors.Wrap(err, "migration up")
	}
	logger.Info().Msg("migrations applied")
	return nil
}

// ApplySchema executes every up migration directly. Used for SQLite, which
// the migrate postgres driver does not cover.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return errors.Wrap(err, "reading migrations")
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		stmt, err := migrations.FS.ReadFile(name)
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}
		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return errors.Wrapf(err, "applying %s", name)
		}
	}
	return nil
}
