package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnap/pkg/config"
	apperrors "github.com/jsnap/pkg/errors"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLocalStorage_Open(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dumps/heap.hprof", []byte("JAVA PROFILE 1.0.2"))
	s := NewLocalStorage(dir)
	ctx := context.Background()

	t.Run("Relative", func(t *testing.T) {
		rc, size, err := s.Open(ctx, "dumps/heap.hprof")
		require.NoError(t, err)
		defer rc.Close()

		assert.Equal(t, int64(18), size)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "JAVA PROFILE 1.0.2", string(data))
	})

	t.Run("Absolute", func(t *testing.T) {
		abs := writeFile(t, t.TempDir(), "other.hprof", []byte("x"))
		rc, size, err := s.Open(ctx, abs)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, int64(1), size)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, _, err := s.Open(ctx, "missing.hprof")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("Directory", func(t *testing.T) {
		_, _, err := s.Open(ctx, "dumps")
		assert.Error(t, err)
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := s.Open(cctx, "dumps/heap.hprof")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocalStorage_SizeAndExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "heap.hprof", make([]byte, 1234))
	s := NewLocalStorage(dir)
	ctx := context.Background()

	size, err := s.Size(ctx, "heap.hprof")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	ok, err := s.Exists(ctx, "heap.hprof")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "nope.hprof")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Size(ctx, "nope.hprof")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalStorage_GetURL(t *testing.T) {
	s := NewLocalStorage("/data")
	assert.Equal(t, "/data/heap.hprof", s.GetURL("heap.hprof"))
	assert.Equal(t, "/abs/heap.hprof", s.GetURL("/abs/heap.hprof"))
	assert.Equal(t, "heap.hprof", NewLocalStorage("").GetURL("heap.hprof"))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		typ     StorageType
		wantKey string
	}{
		{"heap.hprof", StorageTypeLocal, "heap.hprof"},
		{"/tmp/heap.hprof", StorageTypeLocal, "/tmp/heap.hprof"},
		{"cos://dumps/heap.hprof", StorageTypeCOS, "dumps/heap.hprof"},
		{"cos:///dumps/heap.hprof", StorageTypeCOS, "dumps/heap.hprof"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, key := ParseLocation(tt.in)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestNewStorage(t *testing.T) {
	t.Run("Local", func(t *testing.T) {
		s, err := NewStorage(StorageTypeLocal, &config.StorageConfig{LocalPath: "/data"})
		require.NoError(t, err)
		assert.IsType(t, &LocalStorage{}, s)
	})

	t.Run("NilConfig", func(t *testing.T) {
		_, err := NewStorage(StorageTypeLocal, nil)
		assert.Error(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewStorage("s3", &config.StorageConfig{})
		assert.Error(t, err)
	})
}
