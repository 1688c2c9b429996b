package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRecordStore) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	args := m.Called(ctx, prefix, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
