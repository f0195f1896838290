package sqlstore

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/opendax/daxd/pkg/daxlog"
)

//go:embed migrations/*
var migrationFiles embed.FS

const schemaVersion uint = 1

func (s *Store) migrate() error {
	driver, err := sqlite3.WithInstance(s.DB.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	v, _, err := m.Version()
	if err == nil {
		daxlog.Debugf("sqlstore: at schema version %d (want %d)", v, schemaVersion)
	}
	return nil
}
