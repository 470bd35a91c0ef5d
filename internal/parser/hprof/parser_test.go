package hprof

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParser(t *testing.T) {
	t.Run("with default options", func(t *testing.T) {
		parser := NewParser(nil)
		assert.NotNil(t, parser)
		assert.NotNil(t, parser.opts)
		assert.Equal(t, 1<<20, parser.opts.ReadAheadChunk)
		assert.Equal(t, StateAwaitingHeader, parser.State())
	})

	t.Run("with custom options", func(t *testing.T) {
		opts := &ParserOptions{KeepHeapRecords: true}
		parser := NewParser(opts)
		assert.True(t, parser.opts.KeepHeapRecords)
	})
}

func TestReader_ReadHeader(t *testing.T) {
	for _, version := range []string{Version101, Version102} {
		t.Run(version, func(t *testing.T) {
			var buf bytes.Buffer
			buf.WriteString(version)
			buf.WriteByte(0)
			binary.Write(&buf, binary.BigEndian, uint32(8))
			timestamp := time.Now().UnixMilli()
			binary.Write(&buf, binary.BigEndian, uint64(timestamp))

			stream, err := NewStream(NewReader(&buf, int64(buf.Len())))
			require.NoError(t, err)
			header := stream.Header()
			assert.Equal(t, version, header.Format)
			assert.Equal(t, IDSize8, header.IDSize)
			assert.Equal(t, IDSize8, stream.IDSize())
			assert.Equal(t, uint64(timestamp), header.TimestampMillis)
			assert.Equal(t, timestamp, header.Timestamp.UnixMilli())
			assert.Equal(t, headerSize(version), stream.Position())
		})
	}

	t.Run("unsupported version", func(t *testing.T) {
		data := newDump("JAVA PROFILE 1.0.3", IDSize4).bytes()
		_, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("version without terminator", func(t *testing.T) {
		data := bytes.Repeat([]byte("A"), 64)
		_, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("invalid id size", func(t *testing.T) {
		data := newDump(Version102, IDSize(6)).bytes()
		_, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		assert.ErrorIs(t, err, ErrInvalidIDSize)
	})

	t.Run("truncated header", func(t *testing.T) {
		data := newDump(Version102, IDSize4).bytes()[:22]
		_, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		assert.ErrorIs(t, err, ErrUnexpectedEOF)
	})
}

func TestStream_ReadID(t *testing.T) {
	t.Run("4-byte ID", func(t *testing.T) {
		data := newDump(Version102, IDSize4).bytes()
		data = binary.BigEndian.AppendUint32(data, 0x12345678)

		stream, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		require.NoError(t, err)
		id, err := stream.ReadID()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x12345678), id)
	})

	t.Run("8-byte ID", func(t *testing.T) {
		data := newDump(Version102, IDSize8).bytes()
		data = binary.BigEndian.AppendUint64(data, 0x123456789ABCDEF0)

		stream, err := NewStream(NewReader(bytes.NewReader(data), int64(len(data))))
		require.NoError(t, err)
		id, err := stream.ReadID()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x123456789ABCDEF0), id)
	})
}

func TestBasicTypeSize(t *testing.T) {
	tests := []struct {
		typ      BasicType
		idSize   IDSize
		expected int
	}{
		{TypeBoolean, IDSize8, 1},
		{TypeByte, IDSize8, 1},
		{TypeChar, IDSize8, 2},
		{TypeShort, IDSize8, 2},
		{TypeInt, IDSize8, 4},
		{TypeFloat, IDSize8, 4},
		{TypeLong, IDSize8, 8},
		{TypeDouble, IDSize8, 8},
		{TypeObject, IDSize4, 4},
		{TypeObject, IDSize8, 8},
		{BasicType(3), IDSize8, 0},
	}

	for _, tt := range tests {
		size := BasicTypeSize(tt.typ, tt.idSize)
		assert.Equal(t, tt.expected, size, "type %s", tt.typ)
	}
}

func parseBytes(t *testing.T, data []byte, opts *ParserOptions) (*Parser, *Snapshot, error) {
	t.Helper()
	parser := NewParser(opts)
	snap, err := parser.Parse(context.Background(), bytes.NewReader(data))
	return parser, snap, err
}

func TestParser_LoadClassRoundTrip(t *testing.T) {
	data := newDump(Version102, IDSize4).
		utf8(1, "Main").
		loadClass(1, 100, 0, 1).
		bytes()

	parser, snap, err := parseBytes(t, data, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, parser.State())

	class, ok := snap.Classes.Get(1)
	require.True(t, ok)
	assert.Equal(t, &LoadedClass{
		SerialNumber: 1,
		ClassID:      100,
		NameID:       1,
		Name:         "Main",
		Status:       ClassLoaded,
	}, class)
	assert.Equal(t, "Main", snap.Symbols.Resolve(1))
	assert.Equal(t, int64(len(data)), snap.BytesRead)
}

func TestParser_ClassNameUsesDots(t *testing.T) {
	data := newDump(Version102, IDSize8).
		utf8(0x7f00001, "java/util/HashMap$Node").
		loadClass(3, 0x8000, 0, 0x7f00001).
		bytes()

	_, snap, err := parseBytes(t, data, nil)
	require.NoError(t, err)
	class, ok := snap.Classes.Get(3)
	require.True(t, ok)
	assert.Equal(t, "java.util.HashMap$Node", class.Name)
}

func TestParser_ForwardReferencedClassName(t *testing.T) {
	data := newDump(Version102, IDSize4).
		loadClass(1, 100, 0, 7).
		loadClass(2, 101, 0, 8).
		utf8(7, "com/example/Late").
		bytes()

	_, snap, err := parseBytes(t, data, nil)
	require.NoError(t, err)

	late, _ := snap.Classes.Get(1)
	assert.Equal(t, "com.example.Late", late.Name)
	missing, _ := snap.Classes.Get(2)
	assert.Equal(t, "unresolved name 8", missing.Name)
}

func TestParser_UnloadClass(t *testing.T) {
	t.Run("unload flips status", func(t *testing.T) {
		data := newDump(Version102, IDSize4).
			utf8(1, "A").
			loadClass(1, 100, 0, 1).
			unloadClass(1).
			bytes()

		_, snap, err := parseBytes(t, data, nil)
		require.NoError(t, err)
		class, _ := snap.Classes.Get(1)
		assert.Equal(t, ClassUnloaded, class.Status)
	})

	t.Run("unknown serial is ignored", func(t *testing.T) {
		data := newDump(Version102, IDSize4).
			utf8(1, "A").
			loadClass(1, 100, 0, 1).
			unloadClass(99).
			bytes()

		_, snap, err := parseBytes(t, data, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Classes.Len())
		class, _ := snap.Classes.Get(1)
		assert.Equal(t, ClassLoaded, class.Status)
	})

	t.Run("status never returns to loaded", func(t *testing.T) {
		data := newDump(Version102, IDSize4).
			loadClass(1, 100, 0, 1).
			unloadClass(1).
			loadClass(1, 100, 0, 1).
			bytes()

		_, snap, err := parseBytes(t, data, nil)
		require.NoError(t, err)
		class, _ := snap.Classes.Get(1)
		assert.Equal(t, ClassUnloaded, class.Status)
	})
}

// fullDump exercises every top-level record kind.
func fullDump(version string, idSize IDSize) *dumpBuilder {
	d := newDump(version, idSize).
		utf8(1, "java/lang/Thread").
		utf8(2, "main").
		utf8(3, "run").
		utf8(4, "()V").
		utf8(5, "Thread.java").
		loadClass(1, 100, 0, 1)
	d.record(TagStackFrame, d.body().id(10).id(3).id(4).id(5).u4(1).u4(42).bytes())
	d.record(TagStackTrace, d.body().u4(1).u4(1).u4(1).id(10).bytes())
	d.record(TagStartThread, d.body().u4(1).id(200).u4(1).id(2).id(0).id(0).bytes())
	d.record(TagHeapSummary, d.body().u4(1024).u4(10).u8(4096).u8(40).bytes())
	d.record(TagAllocSites, d.body().u2(0).u4(0).u4(1024).u4(10).u8(4096).u8(40).u4(1).
		u1(0).u4(1).u4(1).u4(512).u4(5).u4(1024).u4(10).bytes())
	d.record(TagCPUSamples, d.body().u4(5).u4(1).u4(5).u4(1).bytes())
	d.record(TagControlSettings, d.body().u4(3).u2(16).bytes())
	d.record(TagHeapDumpSegment, d.body().u1(uint8(HeapTagRootThreadObject)).id(200).u4(1).u4(1).bytes())
	d.record(TagHeapDumpEnd, nil)
	d.record(RecordTag(0x42), []byte{1, 2, 3})
	d.record(TagEndThread, d.body().u4(1).bytes())
	d.unloadClass(1)
	return d
}

func TestParser_FullConsumption(t *testing.T) {
	for _, version := range []string{Version101, Version102} {
		for _, idSize := range []IDSize{IDSize4, IDSize8} {
			t.Run(version+"/"+idSize.String(), func(t *testing.T) {
				data := fullDump(version, idSize).bytes()

				var progress []int64
				opts := &ParserOptions{Progress: func(n int64) { progress = append(progress, n) }}
				_, snap, err := parseBytes(t, data, opts)
				require.NoError(t, err)

				assert.Equal(t, int64(len(data)), snap.BytesRead)
				var total int64
				for _, n := range progress {
					total += n
				}
				assert.Equal(t, int64(len(data)), total)
				assert.Equal(t, headerSize(version), progress[0])

				assert.Equal(t, 5, snap.Symbols.Len())
				assert.Len(t, snap.Frames, 1)
				assert.Equal(t, int32(42), snap.Frames[10].LineNumber)
				assert.Equal(t, []uint64{10}, snap.Traces[1].FrameIDs)
				require.Contains(t, snap.Threads, uint32(1))
				assert.True(t, snap.Threads[1].Ended)
				assert.Equal(t, "main", snap.ThreadName(1))
				assert.Equal(t, "java.lang.Thread.run(Thread.java:42)", snap.MethodName(10))
				require.Len(t, snap.HeapSummaries, 1)
				assert.Equal(t, uint64(4096), snap.HeapSummaries[0].AllocatedBytes)
				require.Len(t, snap.AllocSites, 1)
				assert.Equal(t, uint32(512), snap.AllocSites[0].Sites[0].LiveBytes)
				require.Len(t, snap.CPUSamples, 1)
				assert.Equal(t, uint32(5), snap.CPUSamples[0].TotalSamples)
				require.NotNil(t, snap.ControlSettings)
				assert.True(t, snap.ControlSettings.AllocTraces())
				assert.True(t, snap.ControlSettings.CPUSampling())
				assert.Equal(t, uint16(16), snap.ControlSettings.TraceDepth)
				assert.Equal(t, int64(1), snap.HeapDump.Roots[RootThreadObject])
				assert.Equal(t, int64(1), snap.HeapDump.Segments)
				assert.True(t, snap.HeapDump.Ended)
				assert.Equal(t, int64(1), snap.SkippedRecords)
				class, _ := snap.Classes.Get(1)
				assert.Equal(t, ClassUnloaded, class.Status)
			})
		}
	}
}

func TestParser_ProgressPerRecord(t *testing.T) {
	d := newDump(Version102, IDSize8).utf8(1, "x")
	d.record(RecordTag(0x99), make([]byte, 17))
	d.loadClass(1, 2, 3, 1)
	data := d.bytes()

	var progress []int64
	_, _, err := parseBytes(t, data, &ParserOptions{Progress: func(n int64) { progress = append(progress, n) }})
	require.NoError(t, err)

	assert.Equal(t, []int64{
		headerSize(Version102),
		9 + 8 + 1,
		9 + 17,
		9 + 4 + 8 + 4 + 8,
	}, progress)
}

func TestParser_UnknownRecordSkipped(t *testing.T) {
	d := newDump(Version102, IDSize4)
	d.record(RecordTag(0x42), []byte("opaque payload"))
	d.utf8(1, "after")
	data := d.bytes()

	var records []Record
	_, snap, err := parseBytes(t, data, &ParserOptions{Handler: func(r Record) error {
		records = append(records, r)
		return nil
	}})
	require.NoError(t, err)
	assert.Equal(t, "after", snap.Symbols.Resolve(1))
	assert.Equal(t, int64(1), snap.SkippedRecords)
	require.Len(t, records, 2)
	skipped, ok := records[0].(*SkippedRecord)
	require.True(t, ok)
	assert.Equal(t, RecordTag(0x42), skipped.Header.Tag)
	assert.Equal(t, uint32(14), skipped.Header.Length)
}

func TestParser_TrailingBytesSkipped(t *testing.T) {
	d := newDump(Version102, IDSize4)
	d.record(TagLoadClass, d.body().u4(1).id(100).u4(0).id(1).raw([]byte{0, 0, 0}).bytes())
	d.utf8(1, "Padded")
	data := d.bytes()

	_, snap, err := parseBytes(t, data, nil)
	require.NoError(t, err)
	class, ok := snap.Classes.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Padded", class.Name)
	assert.Equal(t, int64(len(data)), snap.BytesRead)
}

func TestParser_MalformedRecord(t *testing.T) {
	d := newDump(Version102, IDSize8)
	d.record(TagLoadClass, d.body().u4(1).bytes())
	d.utf8(1, "never reached")

	parser, _, err := parseBytes(t, d.bytes(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Equal(t, StateFailed, parser.State())
}

func TestParser_TruncatedRecord(t *testing.T) {
	d := newDump(Version102, IDSize4).utf8(1, "Main")
	d.buf.WriteByte(byte(TagUTF8))
	binary.Write(&d.buf, binary.BigEndian, uint32(0))
	binary.Write(&d.buf, binary.BigEndian, uint32(20))
	d.buf.Write(make([]byte, 10))

	parser, snap, err := parseBytes(t, d.bytes(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
	assert.Equal(t, StateFailed, parser.State())

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, TagUTF8, decodeErr.Tag)

	// Records before the truncation are still available.
	require.NotNil(t, snap)
	assert.Equal(t, "Main", snap.Symbols.Resolve(1))
}

func TestParser_TruncatedRecordHeader(t *testing.T) {
	data := newDump(Version102, IDSize4).utf8(1, "Main").bytes()
	data = append(data, byte(TagUTF8), 0, 0)

	_, _, err := parseBytes(t, data, nil)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestParser_HandlerErrorAborts(t *testing.T) {
	data := newDump(Version102, IDSize4).utf8(1, "a").utf8(2, "b").bytes()
	stop := errors.New("stop")

	parser, snap, err := parseBytes(t, data, &ParserOptions{Handler: func(Record) error { return stop }})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, StateFailed, parser.State())
	assert.Equal(t, 1, snap.Symbols.Len())
}

func TestParser_ContextCancellation(t *testing.T) {
	// Create a context that's already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := newDump(Version102, IDSize8).utf8(1, "x").bytes()
	parser := NewParser(nil)
	_, err := parser.Parse(ctx, bytes.NewReader(data))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, parser.State())
}

func TestParser_ParseFile(t *testing.T) {
	data := fullDump(Version102, IDSize8).bytes()
	path := filepath.Join(t.TempDir(), "heap.hprof")
	require.NoError(t, os.WriteFile(path, data, 0644))

	plain, err := NewParser(nil).ParseFile(context.Background(), path)
	require.NoError(t, err)

	ahead, err := NewParser(&ParserOptions{ReadAhead: true, ReadAheadChunk: 7}).ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), plain.BytesRead)
	assert.Equal(t, plain.BytesRead, ahead.BytesRead)
	assert.Equal(t, plain.Symbols.All(), ahead.Symbols.All())
	assert.Equal(t, plain.Classes.Classes(), ahead.Classes.Classes())
	assert.Equal(t, plain.RecordCounts, ahead.RecordCounts)
}

func TestParser_ParseFileMissing(t *testing.T) {
	parser := NewParser(nil)
	_, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.hprof"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, StateFailed, parser.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting-header", StateAwaitingHeader.String())
	assert.Equal(t, "decoding-payload", StateDecodingPayload.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
