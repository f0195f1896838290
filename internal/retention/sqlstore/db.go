// Package sqlstore implements daxd's structured retention backend: RETAIN
// tag definitions and their current data blob, persisted as rows in a
// sqlite database, grounded on the teacher's internal/repository package.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/opendax/daxd/pkg/daxlog"
)

// Store is the structured retention backend's database connection.
type Store struct {
	DB     *sqlx.DB
	driver string
}

// queryHooks logs every statement's elapsed time at debug level, mirroring
// the teacher's sqlhooks.Hooks.
type queryHooks struct{}

type beginKey struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	daxlog.Debugf("sqlstore query %s %v", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		daxlog.Debugf("sqlstore query took %s", time.Since(begin))
	}
	return ctx, nil
}

var hooksRegistered = false

// Open connects to driver/dsn (only "sqlite3" is supported today; the
// registration pattern mirrors the teacher's mysql branch for a future
// MySQL backend) and runs pending migrations.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case "sqlite3":
		if !hooksRegistered {
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, queryHooks{}))
			hooksRegistered = true
		}
		db, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err != nil {
			return nil, err
		}
		// sqlite does not multithread; one connection avoids waiting on locks.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	s := &Store{DB: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.DB.Close() }
