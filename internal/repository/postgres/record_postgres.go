package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"intake/internal/repository"
)

// RecordPostgres is a PostgreSQL implementation of repository.RecordStore.
// Rows live in kv_records; expired rows are invisible to reads and removed by PurgeExpired.
type RecordPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordPostgres creates a new RecordPostgres store.
func NewRecordPostgres(db *sql.DB) *RecordPostgres {
	return &RecordPostgres{db: db, now: time.Now}
}

var _ repository.RecordStore = (*RecordPostgres)(nil)

// Put upserts the value for key and sets its expiry.
func (r *RecordPostgres) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
		INSERT INTO kv_records (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: r.now().UTC().Add(ttl), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, key, string(value), expiresAt)
	return err
}

// Get fetches a live value by key.
func (r *RecordPostgres) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `
		SELECT value
		FROM kv_records
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`
	var v string
	if err := r.db.QueryRowContext(ctx, q, key, r.now().UTC()).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return []byte(v), nil
}

// List returns live keys matching prefix in key order.
func (r *RecordPostgres) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	const q = `
		SELECT key
		FROM kv_records
		WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, q, escapeLike(prefix)+"%", r.now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping checks database connectivity.
func (r *RecordPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// PurgeExpired deletes rows whose expiry has passed and returns how many were removed.
func (r *RecordPostgres) PurgeExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM kv_records WHERE expires_at IS NOT NULL AND expires_at <= $1`
	res, err := r.db.ExecContext(ctx, q, r.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunPurge calls PurgeExpired every interval until ctx is done. Failures are logged and retried next tick.
// A non-positive interval disables purging; expired rows then stay hidden from reads but are never deleted.
func (r *RecordPostgres) RunPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.WarnContext(ctx, "record purge disabled", "interval", interval.String())
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.ErrorContext(ctx, "purge expired records failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "purged expired records", "count", n)
			}
		}
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
