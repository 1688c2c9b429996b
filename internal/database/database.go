// Package database opens the connections behind the record store backends.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"intake/internal/config"
	"intake/internal/database/migration"
)

const (
	applicationName = "intake"
	connectTimeout  = 5 * time.Second
)

var (
	sqlOpen     = sql.Open
	pingTimeout = 5 * time.Second
)

// BuildPostgresDSN renders the connection URL for the record store database.
// application_name tags the sessions so they can be told apart in pg_stat_activity.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Port == "" || c.User == "" || c.Name == "" {
		return "", fmt.Errorf("invalid database config: host, port, user, and name are required")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
		User:   url.User(c.User),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	q.Set("application_name", applicationName)
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// OpenRecordStore opens the traced pgx pool used by the postgres record store, waits at most
// pingTimeout (or until ctx ends) for the server to answer, and makes sure kv_records exists.
// The pool is closed again on any failure.
func OpenRecordStore(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	applyPool(db, c)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := migration.EnsureMigrated(ctx, db, time.UTC, c.Host); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv_records schema: %w", err)
	}

	return db, nil
}

func applyPool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}
