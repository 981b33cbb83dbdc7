package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/easel/blob"
)

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) PresignPut(ctx context.Context, key string, contentType string, size int64, ttl time.Duration) (blob.PresignedRequest, error) {
	args := m.Called(ctx, key, contentType, size, ttl)
	return args.Get(0).(blob.PresignedRequest), args.Error(1)
}

func (m *MockBlobStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (blob.PresignedRequest, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(blob.PresignedRequest), args.Error(1)
}

func (m *MockBlobStore) ObjectSize(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBlobStore) PublicURL(key string) string {
	args := m.Called(key)
	return args.String(0)
}
