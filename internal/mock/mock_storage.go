package mock

import (
	"bytes"
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

// Open mocks the Open method.
func (m *MockStorage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(int64), args.Error(2)
}

// Size mocks the Size method.
func (m *MockStorage) Size(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

// Exists mocks the Exists method.
func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// GetURL mocks the GetURL method.
func (m *MockStorage) GetURL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

// ExpectOpen serves data for key. size is reported as given, so -1 mimics
// a backend without Content-Length.
func (m *MockStorage) ExpectOpen(key string, data []byte, size int64) *mock.Call {
	return m.On("Open", mock.Anything, key).Return(io.NopCloser(bytes.NewReader(data)), size, nil)
}

// ExpectOpenError makes Open fail for key.
func (m *MockStorage) ExpectOpenError(key string, err error) *mock.Call {
	return m.On("Open", mock.Anything, key).Return(nil, int64(0), err)
}
