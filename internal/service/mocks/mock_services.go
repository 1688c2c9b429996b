package mocks

import (
	"context"
	"io"

	"intake/internal/model"
	"intake/internal/service"
	"intake/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockSubmissionService struct {
	mock.Mock
}

func (m *MockSubmissionService) Submit(ctx context.Context, sub service.Submission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) List(ctx context.Context, limit int) ([]model.SubmissionRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SubmissionRecord), args.Error(1)
}

func (m *MockAdminService) Get(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmissionRecord), args.Error(1)
}

func (m *MockAdminService) File(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}
