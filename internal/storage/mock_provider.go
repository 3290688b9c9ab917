package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of URLStore.
type MockStore struct {
	mock.Mock
}

// InsertURL is the mock implementation of the InsertURL method.
func (m *MockStore) InsertURL(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0) //nolint:wrapcheck
}

// Ping is the mock implementation of the Ping method.
func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockStore) Close() {
	m.Called()
}
