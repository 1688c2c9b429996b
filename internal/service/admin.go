package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"intake/internal/model"
	"intake/internal/repository"
	"intake/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

var (
	ErrIDRequired             = errors.New("id is required")
	ErrKeyRequired            = errors.New("key is required")
	ErrNotFound               = errors.New("not found")
	ErrRecordStoreUnavailable = errors.New("record store not configured")
	ErrBlobStoreUnavailable   = errors.New("blob store not configured")
)

// AdminService is the read side used by the administrator. Authorization happens at the HTTP layer.
type AdminService interface {
	// List returns up to limit submissions, newest first.
	List(ctx context.Context, limit int) ([]model.SubmissionRecord, error)

	// Get returns a single submission by its id.
	Get(ctx context.Context, id string) (*model.SubmissionRecord, error)

	// File opens a stored photo by blob key. The caller must close the reader.
	File(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

type adminService struct {
	records repository.RecordStore
	store   storage.Storage
	log     *slog.Logger
}

// NewAdminService constructs a new AdminService. Either backend may be nil.
func NewAdminService(records repository.RecordStore, store storage.Storage, log *slog.Logger) AdminService {
	if log == nil {
		log = slog.Default()
	}
	return &adminService{records: records, store: store, log: log}
}

// ClampListLimit applies the default and the upper bound to a requested list size.
func ClampListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// List fetches keys under the submission namespace one by one, so its cost grows with
// the number of keys returned. Records that expire between listing and fetching are skipped.
func (s *adminService) List(ctx context.Context, limit int) ([]model.SubmissionRecord, error) {
	if s.records == nil {
		return nil, ErrRecordStoreUnavailable
	}

	keys, err := s.records.List(ctx, RecordKeyPrefix, ClampListLimit(limit))
	if err != nil {
		return nil, err
	}

	items := make([]model.SubmissionRecord, 0, len(keys))
	for _, k := range keys {
		raw, err := s.records.Get(ctx, k)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var rec model.SubmissionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.WarnContext(ctx, "skipping unreadable contact record", "key", k, "error", err)
			continue
		}
		items = append(items, rec)
	}

	// ReceivedAt uses a fixed-width layout, so string order is time order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ReceivedAt > items[j].ReceivedAt
	})
	return items, nil
}

func (s *adminService) Get(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrIDRequired
	}
	if s.records == nil {
		return nil, ErrRecordStoreUnavailable
	}

	raw, err := s.records.Get(ctx, RecordKey(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec model.SubmissionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *adminService) File(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, storage.ObjectInfo{}, ErrKeyRequired
	}
	if s.store == nil {
		return nil, storage.ObjectInfo{}, ErrBlobStoreUnavailable
	}

	rc, info, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, err
	}
	return rc, info, nil
}
