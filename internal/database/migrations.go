package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// MigrationRunner applies the numbered SQL files under migrations/: version 1
// creates the symptom, rubric and remedy reference tables, version 2 the
// case_records table used by the Postgres outcome store.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens migrationsPath as a file source against databaseURL.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening schema migrations at %s: %w", migrationsPath, err)
	}
	return &MigrationRunner{migrate: m, log: logger}, nil
}

// Up brings the schema to the newest version. An up-to-date schema is not an error.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.WithField("direction", "up").Info("Applying schema migrations")

	err := mr.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mr.log.Info("Schema already at latest version")
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying schema migrations: %w", err)
	}
	mr.logVersion("Schema migrated")
	return nil
}

// Down reverts the most recent schema version.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	mr.log.WithField("direction", "down").Info("Reverting latest schema migration")

	err := mr.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		mr.log.Info("No schema version to revert")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reverting schema migration: %w", err)
	}
	mr.logVersion("Schema reverted")
	return nil
}

// Reset drops every table the migrations created, case records included.
func (mr *MigrationRunner) Reset(ctx context.Context) error {
	mr.log.Warn("Reverting every schema migration; reference data and case records will be dropped")

	if err := mr.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reverting all schema migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version; an empty database is version 0.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Schema version unavailable")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"schema_version": version,
		"dirty":          dirty,
	}).Info(msg)
}

// Close releases the migration source and database handles.
func (mr *MigrationRunner) Close() error {
	srcErr, dbErr := mr.migrate.Close()
	return errors.Join(wrapClose("source", srcErr), wrapClose("database", dbErr))
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("closing migration %s: %w", what, err)
}
