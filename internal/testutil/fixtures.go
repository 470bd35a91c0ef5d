// Package testutil builds synthetic heap dumps for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Top-level record tags used by the builder.
const (
	TagUTF8        byte = 0x01
	TagLoadClass   byte = 0x02
	TagUnloadClass byte = 0x03
	TagStartThread byte = 0x0A
	TagEndThread   byte = 0x0B
)

// Dump assembles an HPROF byte stream record by record.
type Dump struct {
	buf    bytes.Buffer
	idSize int
}

// NewDump writes the header. idSize must be 4 or 8 for a valid dump, but
// any value is written as given.
func NewDump(version string, idSize int, ts time.Time) *Dump {
	d := &Dump{idSize: idSize}
	d.buf.WriteString(version)
	d.buf.WriteByte(0)
	d.buf.Write(U4(uint32(idSize)))
	d.buf.Write(binary.BigEndian.AppendUint64(nil, uint64(ts.UnixMilli())))
	return d
}

// U4 encodes big-endian 32-bit values.
func U4(vs ...uint32) []byte {
	var out []byte
	for _, v := range vs {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out
}

// ID encodes an identifier at the dump's width.
func (d *Dump) ID(v uint64) []byte {
	if d.idSize == 8 {
		return binary.BigEndian.AppendUint64(nil, v)
	}
	return binary.BigEndian.AppendUint32(nil, uint32(v))
}

// Record appends a record whose length is len(body).
func (d *Dump) Record(tag byte, body []byte) *Dump {
	d.buf.WriteByte(tag)
	d.buf.Write(U4(0, uint32(len(body))))
	d.buf.Write(body)
	return d
}

// UTF8 appends a symbol.
func (d *Dump) UTF8(id uint64, name string) *Dump {
	return d.Record(TagUTF8, append(d.ID(id), name...))
}

// LoadClass appends a LOAD_CLASS record.
func (d *Dump) LoadClass(serial uint32, classID uint64, trace uint32, nameID uint64) *Dump {
	body := U4(serial)
	body = append(body, d.ID(classID)...)
	body = append(body, U4(trace)...)
	body = append(body, d.ID(nameID)...)
	return d.Record(TagLoadClass, body)
}

// UnloadClass appends an UNLOAD_CLASS record.
func (d *Dump) UnloadClass(serial uint32) *Dump {
	return d.Record(TagUnloadClass, U4(serial))
}

// StartThread appends a START_THREAD record.
func (d *Dump) StartThread(serial uint32, objID uint64, trace uint32, nameID, groupID, parentGroupID uint64) *Dump {
	body := U4(serial)
	body = append(body, d.ID(objID)...)
	body = append(body, U4(trace)...)
	body = append(body, d.ID(nameID)...)
	body = append(body, d.ID(groupID)...)
	body = append(body, d.ID(parentGroupID)...)
	return d.Record(TagStartThread, body)
}

// Truncated appends a record header declaring length bytes followed by only
// present bytes of body.
func (d *Dump) Truncated(tag byte, length uint32, present int) *Dump {
	d.buf.WriteByte(tag)
	d.buf.Write(U4(0, length))
	d.buf.Write(make([]byte, present))
	return d
}

// Bytes returns the stream built so far.
func (d *Dump) Bytes() []byte {
	return bytes.Clone(d.buf.Bytes())
}

// SampleDump is a small valid 1.0.2 dump with 4-byte ids: two classes and
// one thread named "main".
func SampleDump() *Dump {
	return NewDump("JAVA PROFILE 1.0.2", 4, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).
		UTF8(1, "com/example/Main").
		UTF8(2, "java/lang/String").
		UTF8(3, "main").
		LoadClass(1, 100, 0, 1).
		LoadClass(2, 200, 0, 2).
		StartThread(7, 0x500, 0, 3, 0, 0)
}

// Gzip compresses data.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	return buf.Bytes()
}

// Zstd compresses data.
func Zstd(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zstd: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
