package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"intake/internal/model"
	"intake/internal/repository"
	repoMocks "intake/internal/repository/mocks"
	"intake/internal/storage"
	storeMocks "intake/internal/storage/mocks"
	"intake/internal/verifier"
	verifierMocks "intake/internal/verifier/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memRecords is a minimal in-memory RecordStore for round-trip tests.
type memRecords struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemRecords() *memRecords { return &memRecords{data: map[string][]byte{}} }

func (m *memRecords) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memRecords) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (m *memRecords) List(_ context.Context, prefix string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *memRecords) Ping(context.Context) error { return nil }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestAdminService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted newest first and skips vanished records", func(t *testing.T) {
		mRepo := new(repoMocks.MockRecordStore)
		svc := NewAdminService(mRepo, nil, nil)

		mRepo.On("List", ctx, "contact:", 50).Return([]string{"contact:a", "contact:b", "contact:c", "contact:gone"}, nil)
		mRepo.On("Get", ctx, "contact:a").Return(mustJSON(t, model.SubmissionRecord{ID: "a", ReceivedAt: "2026-01-01T10:00:00.000Z"}), nil)
		mRepo.On("Get", ctx, "contact:b").Return(mustJSON(t, model.SubmissionRecord{ID: "b", ReceivedAt: "2026-03-01T10:00:00.000Z"}), nil)
		mRepo.On("Get", ctx, "contact:c").Return(mustJSON(t, model.SubmissionRecord{ID: "c", ReceivedAt: "2026-02-01T10:00:00.000Z"}), nil)
		mRepo.On("Get", ctx, "contact:gone").Return(nil, repository.ErrNotFound)

		items, err := svc.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].ID, items[1].ID, items[2].ID})
		mRepo.AssertExpectations(t)
	})

	t.Run("limit is clamped to 100", func(t *testing.T) {
		mRepo := new(repoMocks.MockRecordStore)
		svc := NewAdminService(mRepo, nil, nil)
		mRepo.On("List", ctx, "contact:", 100).Return([]string{}, nil).Once()

		items, err := svc.List(ctx, 5000)
		require.NoError(t, err)
		assert.Empty(t, items)
		mRepo.AssertExpectations(t)
	})

	t.Run("store error", func(t *testing.T) {
		mRepo := new(repoMocks.MockRecordStore)
		svc := NewAdminService(mRepo, nil, nil)
		mRepo.On("List", ctx, "contact:", 10).Return(nil, errors.New("scan failed"))

		_, err := svc.List(ctx, 10)
		assert.EqualError(t, err, "scan failed")
	})

	t.Run("no record store", func(t *testing.T) {
		_, err := NewAdminService(nil, nil, nil).List(ctx, 10)
		assert.ErrorIs(t, err, ErrRecordStoreUnavailable)
	})
}

func TestAdminService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(mRepo *repoMocks.MockRecordStore)
		wantErr    error
	}{
		{
			name:    "empty id",
			id:      "  ",
			wantErr: ErrIDRequired,
		},
		{
			name: "not found",
			id:   "missing",
			setupMocks: func(mRepo *repoMocks.MockRecordStore) {
				mRepo.On("Get", ctx, "contact:missing").Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "found",
			id:   " abc ",
			setupMocks: func(mRepo *repoMocks.MockRecordStore) {
				mRepo.On("Get", ctx, "contact:abc").Return([]byte(`{"id":"abc","photos":[]}`), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockRecordStore)
			if tt.setupMocks != nil {
				tt.setupMocks(mRepo)
			}
			rec, err := NewAdminService(mRepo, nil, nil).Get(ctx, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rec)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "abc", rec.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestAdminService_File(t *testing.T) {
	ctx := context.Background()

	t.Run("streams stored object", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		body := io.NopCloser(strings.NewReader("png-bytes"))
		mStore.On("Get", ctx, "contact/x/01-a.png").Return(body, storage.ObjectInfo{ContentType: "image/png"}, nil)

		rc, info, err := NewAdminService(nil, mStore, nil).File(ctx, "contact/x/01-a.png")
		require.NoError(t, err)
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		assert.Equal(t, "png-bytes", string(b))
		assert.Equal(t, "image/png", info.ContentType)
	})

	t.Run("never written key", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("Get", ctx, "contact/nope").Return(nil, storage.ObjectInfo{}, storage.ErrNotFound)

		rc, _, err := NewAdminService(nil, mStore, nil).File(ctx, "contact/nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, rc)
	})

	t.Run("empty key", func(t *testing.T) {
		_, _, err := NewAdminService(nil, new(storeMocks.MockStorage), nil).File(ctx, "")
		assert.ErrorIs(t, err, ErrKeyRequired)
	})

	t.Run("no blob store", func(t *testing.T) {
		_, _, err := NewAdminService(nil, nil, nil).File(ctx, "k")
		assert.ErrorIs(t, err, ErrBlobStoreUnavailable)
	})
}

func TestSubmitThenGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	mVer := new(verifierMocks.MockVerifier)
	mVer.On("Verify", ctx, mock.Anything, mock.Anything).Return(verifier.Outcome{Success: true}, nil)
	mStore := new(storeMocks.MockStorage)
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)

	sub := NewSubmissionService(mVer, mStore, records, SubmissionOptions{Limits: testLimits, RecordTTL: time.Hour})
	admin := NewAdminService(records, mStore, nil)

	in := validSubmission()
	in.Photos = []Photo{pngPhoto("kitchen.png")}
	id, err := sub.Submit(ctx, in)
	require.NoError(t, err)

	stored, err := records.Get(ctx, RecordKey(id))
	require.NoError(t, err)
	var want model.SubmissionRecord
	require.NoError(t, json.Unmarshal(stored, &want))

	got, err := admin.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Maria", got.Name)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, AttachmentKey(id, 1, "kitchen.png"), got.Photos[0].Key)
}

func TestSubmitThenList_Ordering(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	mVer := new(verifierMocks.MockVerifier)
	mVer.On("Verify", ctx, mock.Anything, mock.Anything).Return(verifier.Outcome{Success: true}, nil)

	svc := NewSubmissionService(mVer, nil, records, SubmissionOptions{Limits: testLimits}).(*submissionService)
	clock := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := svc.Submit(ctx, validSubmission())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	items, err := NewAdminService(records, nil, nil).List(ctx, 50)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i := range items {
		assert.Equal(t, ids[len(ids)-1-i], items[i].ID)
	}
}
