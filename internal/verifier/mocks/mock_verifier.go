package mocks

import (
	"context"

	"intake/internal/verifier"

	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token, remoteIP string) (verifier.Outcome, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Get(0).(verifier.Outcome), args.Error(1)
}
