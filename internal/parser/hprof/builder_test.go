package hprof

import (
	"bytes"
	"encoding/binary"
)

// body accumulates big-endian record bytes for tests.
type body struct {
	buf    bytes.Buffer
	idSize IDSize
}

func newBody(idSize IDSize) *body {
	return &body{idSize: idSize}
}

func (b *body) u1(v uint8) *body {
	b.buf.WriteByte(v)
	return b
}

func (b *body) u2(v uint16) *body {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

func (b *body) u4(v uint32) *body {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

func (b *body) u8(v uint64) *body {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

func (b *body) id(v uint64) *body {
	if b.idSize == IDSize4 {
		return b.u4(uint32(v))
	}
	return b.u8(v)
}

func (b *body) raw(p []byte) *body {
	b.buf.Write(p)
	return b
}

func (b *body) bytes() []byte {
	return b.buf.Bytes()
}

// dumpBuilder writes a complete HPROF byte stream.
type dumpBuilder struct {
	buf    bytes.Buffer
	idSize IDSize
}

func newDump(version string, idSize IDSize) *dumpBuilder {
	d := &dumpBuilder{idSize: idSize}
	d.buf.WriteString(version)
	d.buf.WriteByte(0)
	binary.Write(&d.buf, binary.BigEndian, uint32(idSize))
	binary.Write(&d.buf, binary.BigEndian, uint64(0))
	return d
}

func (d *dumpBuilder) body() *body {
	return newBody(d.idSize)
}

func (d *dumpBuilder) record(tag RecordTag, payload []byte) *dumpBuilder {
	d.buf.WriteByte(byte(tag))
	binary.Write(&d.buf, binary.BigEndian, uint32(0))
	binary.Write(&d.buf, binary.BigEndian, uint32(len(payload)))
	d.buf.Write(payload)
	return d
}

func (d *dumpBuilder) utf8(id uint64, name string) *dumpBuilder {
	return d.record(TagUTF8, d.body().id(id).raw([]byte(name)).bytes())
}

func (d *dumpBuilder) loadClass(serial uint32, classID uint64, trace uint32, nameID uint64) *dumpBuilder {
	return d.record(TagLoadClass, d.body().u4(serial).id(classID).u4(trace).id(nameID).bytes())
}

func (d *dumpBuilder) unloadClass(serial uint32) *dumpBuilder {
	return d.record(TagUnloadClass, d.body().u4(serial).bytes())
}

func (d *dumpBuilder) bytes() []byte {
	return d.buf.Bytes()
}

// headerSize is the size of the file header for the given version string.
func headerSize(version string) int64 {
	return int64(len(version)) + 1 + 4 + 8
}
