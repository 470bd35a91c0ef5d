package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = append([]byte("JAVA PROFILE 1.0.2\x00"), bytes.Repeat([]byte{0xAB, 0x01}, 4096)...)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Type
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, TypeGzip},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}, TypeZstd},
		{"hprof", []byte("JAVA"), TypeNone},
		{"short", []byte{0x1f}, TypeNone},
		{"empty", nil, TypeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectType(tt.data))
		})
	}
}

func TestNewReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected Type
	}{
		{"plain", payload, TypeNone},
		{"gzip", gzipped(t, payload), TypeGzip},
		{"zstd", zstded(t, payload), TypeZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, typ, err := NewReader(bytes.NewReader(tt.input))
			require.NoError(t, err)
			defer rc.Close()

			assert.Equal(t, tt.expected, typ)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestNewReader_ShortInput(t *testing.T) {
	rc, typ, err := NewReader(bytes.NewReader([]byte{0x01}))
	require.NoError(t, err)
	assert.Equal(t, TypeNone, typ)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)
}

func TestNewReader_CorruptGzip(t *testing.T) {
	_, _, err := NewReader(bytes.NewReader([]byte{0x1f, 0x8b, 0x00, 0x00}))
	assert.Error(t, err)
}

func TestTrimExt(t *testing.T) {
	assert.Equal(t, "heap.hprof", TrimExt("heap.hprof.gz"))
	assert.Equal(t, "heap.hprof", TrimExt("heap.hprof.ZST"))
	assert.Equal(t, "heap.hprof", TrimExt("heap.hprof"))
	assert.Equal(t, "zstd", TypeZstd.String())
}
