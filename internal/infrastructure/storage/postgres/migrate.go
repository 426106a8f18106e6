package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"

	"storeledger/pkg/logger"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "sys_schema_migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource returns the embedded, numbered migrations.
func MigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// Migrate applies every pending migration over a connection borrowed from
// pool. Concurrent callers are serialized by the driver's advisory lock, so
// the server, worker and seed commands may all call it on start.
func Migrate(ctx context.Context, pool *Pool) error {
	src, err := MigrationSource()
	if err != nil {
		return err
	}

	driver, err := pgxmigrate.WithInstance(stdlib.OpenDBFromPool(pool.Pool), &pgxmigrate.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{ctx: ctx}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, "close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			version, _, _ := m.Version()
			logger.Info(ctx, "database schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info(ctx, "database schema migrated", "version", version, "dirty", dirty)
	return nil
}

// migrateLogger routes golang-migrate progress lines to the context logger.
type migrateLogger struct {
	ctx context.Context
}

func (l migrateLogger) Printf(format string, v ...any) {
	logger.Debug(l.ctx, fmt.Sprintf(format, v...), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return false
}
