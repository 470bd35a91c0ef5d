package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnap/internal/mock"
	"github.com/jsnap/internal/parser/hprof"
	"github.com/jsnap/internal/repository"
	"github.com/jsnap/internal/storage"
	"github.com/jsnap/internal/testutil"
	"github.com/jsnap/pkg/compression"
	"github.com/jsnap/pkg/config"
	apperrors "github.com/jsnap/pkg/errors"
	"github.com/jsnap/pkg/utils"
)

var _ storage.Storage = (*mock.MockStorage)(nil)

type recorder struct {
	mu       sync.Mutex
	total    int64
	sum      int64
	finished int
}

func (r *recorder) Start(total int64) { r.mu.Lock(); r.total = total; r.sum = 0; r.mu.Unlock() }
func (r *recorder) Add(n int64)       { r.mu.Lock(); r.sum += n; r.mu.Unlock() }
func (r *recorder) Finish()           { r.mu.Lock(); r.finished++; r.mu.Unlock() }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Database: config.DatabaseConfig{
			Type:      "sqlite",
			Path:      "snapshot.db",
			BatchSize: 100,
		},
		Storage: config.StorageConfig{Type: "local"},
		Parser:  config.ParserConfig{ReadAheadChunk: 1 << 20},
	}
}

func TestAnalyze(t *testing.T) {
	data := testutil.SampleDump().Bytes()
	path := testutil.WriteFile(t, t.TempDir(), "heap.hprof", data)
	rec := &recorder{}
	clock := utils.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	a := NewSnapshotAnalyzer(testConfig(t), WithReporter(rec), WithClock(clock))
	ctx := context.Background()

	res, err := a.Analyze(ctx, path, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "heap.hprof", res.Workspace.Name)
	assert.Equal(t, compression.TypeNone, res.Compression)
	assert.True(t, res.Workspace.IsComplete())

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, 2, res.Snapshot.Classes.Len())
	require.NotNil(t, res.Info)
	assert.Equal(t, "JAVA PROFILE 1.0.2", res.Info.Format)
	assert.Equal(t, int64(2), res.Info.Classes)
	assert.Equal(t, int64(3), res.Info.Symbols)
	assert.Equal(t, int64(1), res.Info.Threads)
	assert.Equal(t, int64(len(data)), res.Info.BytesRead)

	assert.Equal(t, int64(len(data)), rec.total)
	assert.Equal(t, int64(len(data)), rec.sum)
	assert.Equal(t, 1, rec.finished)

	t.Run("SecondRunIsSkipped", func(t *testing.T) {
		res, err := a.Analyze(ctx, path, false)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Nil(t, res.Snapshot)
		assert.Equal(t, clock.Now(), res.CompletedAt)
		require.NotNil(t, res.Info)
		assert.Equal(t, int64(2), res.Info.Classes)
	})

	t.Run("ForceReparses", func(t *testing.T) {
		res, err := a.Analyze(ctx, path, true)
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.NotNil(t, res.Snapshot)
		assert.True(t, res.Workspace.IsComplete())
	})

	t.Run("QueryAfterAnalysis", func(t *testing.T) {
		repos, err := a.OpenRepositories(ctx, path)
		require.NoError(t, err)
		defer repos.Close()

		classes, err := repos.Snapshot.ListClasses(ctx, repository.ClassFilter{NameContains: "Main"})
		require.NoError(t, err)
		require.Len(t, classes, 1)
		assert.Equal(t, "com.example.Main", classes[0].Name)

		threads, err := repos.Snapshot.ListThreads(ctx)
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, "main", threads[0].Name)
	})
}

func TestAnalyze_Compressed(t *testing.T) {
	data := testutil.SampleDump().Bytes()
	tests := []struct {
		name string
		file string
		body []byte
		typ  compression.Type
	}{
		{"Gzip", "heap.hprof.gz", testutil.Gzip(t, data), compression.TypeGzip},
		{"Zstd", "heap.hprof.zst", testutil.Zstd(t, data), compression.TypeZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), tt.file, tt.body)
			rec := &recorder{}
			a := NewSnapshotAnalyzer(testConfig(t), WithReporter(rec))

			res, err := a.Analyze(context.Background(), path, false)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, res.Compression)
			assert.Equal(t, "heap.hprof", res.Workspace.Name)
			assert.Equal(t, 2, res.Snapshot.Classes.Len())
			assert.Equal(t, int64(len(data)), res.Snapshot.BytesRead)
			assert.Equal(t, int64(len(tt.body)), rec.total)
			assert.Equal(t, int64(len(tt.body)), rec.sum)
		})
	}
}

func TestAnalyze_RemoteStorage(t *testing.T) {
	data := testutil.SampleDump().Bytes()
	store := &mock.MockStorage{}
	store.ExpectOpen("prod/app-1/heap.hprof", data, -1)

	var gotType storage.StorageType
	a := NewSnapshotAnalyzer(testConfig(t), WithStorageFactory(
		func(typ storage.StorageType, _ *config.StorageConfig) (storage.Storage, error) {
			gotType = typ
			return store, nil
		}))

	res, err := a.Analyze(context.Background(), "cos://prod/app-1/heap.hprof", false)
	require.NoError(t, err)
	assert.Equal(t, storage.StorageTypeCOS, gotType)
	assert.Equal(t, "heap.hprof", res.Workspace.Name)
	assert.Equal(t, int64(len(data)), res.Snapshot.BytesRead)
	store.AssertExpectations(t)
}

func TestAnalyze_RemoteNotFound(t *testing.T) {
	store := &mock.MockStorage{}
	store.ExpectOpenError("missing.hprof", apperrors.Wrap(apperrors.CodeNotFound, "object not found", os.ErrNotExist))
	a := NewSnapshotAnalyzer(testConfig(t), WithStorageFactory(
		func(storage.StorageType, *config.StorageConfig) (storage.Storage, error) { return store, nil }))

	_, err := a.Analyze(context.Background(), "cos://missing.hprof", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAnalyze_Truncated(t *testing.T) {
	data := testutil.SampleDump().Truncated(testutil.TagUTF8, 20, 10).Bytes()
	path := testutil.WriteFile(t, t.TempDir(), "broken.hprof", data)

	a := NewSnapshotAnalyzer(testConfig(t))
	res, err := a.Analyze(context.Background(), path, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsParseError(err))
	assert.ErrorIs(t, err, hprof.ErrUnexpectedEOF)
	assert.Equal(t, apperrors.ExitDataErr, apperrors.ExitCode(err))

	require.NotNil(t, res)
	assert.False(t, res.Workspace.IsComplete())
	require.NotNil(t, res.Info, "partial snapshot is persisted")
	assert.Equal(t, int64(2), res.Info.Classes)

	_, err = a.OpenRepositories(context.Background(), path)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAnalyze_UnsupportedVersion(t *testing.T) {
	data := testutil.NewDump("JAVA PROFILE 1.0", 4, time.Unix(0, 0)).Bytes()
	path := testutil.WriteFile(t, t.TempDir(), "old.hprof", data)

	a := NewSnapshotAnalyzer(testConfig(t))
	res, err := a.Analyze(context.Background(), path, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedVersion, apperrors.GetErrorCode(err))
	assert.ErrorIs(t, err, hprof.ErrUnsupportedVersion)
	require.NotNil(t, res)
	assert.Nil(t, res.Snapshot)
}

func TestAnalyze_MissingFile(t *testing.T) {
	a := NewSnapshotAnalyzer(testConfig(t))
	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.hprof"), false)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, apperrors.ExitIOErr, apperrors.ExitCode(err))
}

func TestAnalyze_StorageFactoryError(t *testing.T) {
	a := NewSnapshotAnalyzer(testConfig(t), WithStorageFactory(
		func(typ storage.StorageType, _ *config.StorageConfig) (storage.Storage, error) {
			return nil, fmt.Errorf("no backend for %s", typ)
		}))
	_, err := a.Analyze(context.Background(), "cos://dumps/heap.hprof", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
}

func TestAnalyze_Cancelled(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "heap.hprof", testutil.SampleDump().Bytes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSnapshotAnalyzer(testConfig(t)).Analyze(ctx, path, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyParseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"Version", hprof.ErrUnsupportedVersion, apperrors.CodeUnsupportedVersion},
		{"EOF", &hprof.DecodeError{Tag: hprof.TagUTF8, Err: hprof.ErrUnexpectedEOF}, apperrors.CodeParseError},
		{"SubRecord", &hprof.SubRecordError{Tag: 0x42}, apperrors.CodeParseError},
		{"FieldType", &hprof.FieldTypeError{Tag: 99}, apperrors.CodeParseError},
		{"IO", fmt.Errorf("read: %w", os.ErrPermission), apperrors.CodeIOError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyParseError(tt.err)
			assert.Equal(t, tt.code, apperrors.GetErrorCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classifyParseError(nil))
	assert.Equal(t, context.Canceled, classifyParseError(context.Canceled))
}
