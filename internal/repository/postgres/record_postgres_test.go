package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"intake/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*RecordPostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRecordPostgres(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestRecordPostgres_Put(t *testing.T) {
	repo, mock := newTestStore(t)
	ctx := context.Background()

	t.Run("with ttl", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO kv_records").
			WithArgs("contact:1", `{"id":"1"}`, sql.NullTime{Time: fixedNow.Add(time.Hour), Valid: true}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Put(ctx, "contact:1", []byte(`{"id":"1"}`), time.Hour)
		assert.NoError(t, err)
	})

	t.Run("without ttl", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO kv_records").
			WithArgs("contact:2", `{}`, sql.NullTime{}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Put(ctx, "contact:2", []byte(`{}`), 0)
		assert.NoError(t, err)
	})

	t.Run("db error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO kv_records").
			WillReturnError(errors.New("db down"))

		err := repo.Put(ctx, "contact:3", []byte(`{}`), time.Hour)
		assert.EqualError(t, err, "db down")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPostgres_Get(t *testing.T) {
	repo, mock := newTestStore(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"value"}).AddRow(`{"id":"abc"}`)
		mock.ExpectQuery("SELECT value FROM kv_records WHERE key = (.+)").
			WithArgs("contact:abc", fixedNow).
			WillReturnRows(rows)

		v, err := repo.Get(ctx, "contact:abc")
		assert.NoError(t, err)
		assert.JSONEq(t, `{"id":"abc"}`, string(v))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM kv_records").
			WithArgs("contact:missing", fixedNow).
			WillReturnError(sql.ErrNoRows)

		v, err := repo.Get(ctx, "contact:missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, v)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPostgres_List(t *testing.T) {
	repo, mock := newTestStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"key"}).
		AddRow("contact:a").
		AddRow("contact:b")
	mock.ExpectQuery("SELECT key FROM kv_records WHERE key LIKE").
		WithArgs("contact:%", fixedNow, 50).
		WillReturnRows(rows)

	keys, err := repo.List(ctx, "contact:", 50)
	assert.NoError(t, err)
	assert.Equal(t, []string{"contact:a", "contact:b"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPostgres_PurgeExpired(t *testing.T) {
	repo, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM kv_records WHERE expires_at IS NOT NULL").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PurgeExpired(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPostgres_RunPurge(t *testing.T) {
	repo, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM kv_records WHERE expires_at IS NOT NULL").
		WithArgs(fixedNow).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("DELETE FROM kv_records WHERE expires_at IS NOT NULL").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		repo.RunPurge(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPurge did not stop after cancel")
	}
}

func TestRecordPostgres_RunPurge_NonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Minute} {
		t.Run(interval.String(), func(t *testing.T) {
			repo, mock := newTestStore(t)

			assert.NotPanics(t, func() {
				repo.RunPurge(context.Background(), interval)
			})
			// Returns immediately without touching the database.
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "contact:", escapeLike("contact:"))
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
