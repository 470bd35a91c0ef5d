package hprof

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultBufferSize = 64 * 1024

// Reader provides buffered, big-endian, strictly sequential reading of HPROF
// binary data and tracks the absolute cursor position.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	pos    int64
	size   int64
	buf    [8]byte
}

// NewReader creates a new HPROF reader. size is the total input length, or
// -1 if unknown.
func NewReader(r io.Reader, size int64) *Reader {
	rd := &Reader{
		r:    bufio.NewReaderSize(r, defaultBufferSize),
		size: size,
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// OpenFile opens path for reading and records its size.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewReader(f, info.Size()), nil
}

// Position returns the number of bytes consumed so far.
func (r *Reader) Position() int64 {
	return r.pos
}

// Size returns the total input length, or -1 if unknown.
func (r *Reader) Size() int64 {
	return r.size
}

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// AtEOF reports whether the input is exhausted at the current position.
func (r *Reader) AtEOF() (bool, error) {
	_, err := r.r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, r.wrap(err)
	}
	return false, nil
}

func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w at offset %d", ErrUnexpectedEOF, r.pos)
	}
	return fmt.Errorf("read at offset %d: %w", r.pos, err)
}

func (r *Reader) fill(n int) ([]byte, error) {
	read, err := io.ReadFull(r.r, r.buf[:n])
	if err != nil {
		wrapped := r.wrap(err)
		r.pos += int64(read)
		return nil, wrapped
	}
	r.pos += int64(n)
	return r.buf[:n], nil
}

// ReadU1 reads one unsigned byte.
func (r *Reader) ReadU1() (uint8, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, r.wrap(err)
	}
	r.pos++
	return b, nil
}

// ReadU2 reads a big-endian uint16.
func (r *Reader) ReadU2() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadU4 reads a big-endian uint32.
func (r *Reader) ReadU4() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU8 reads a big-endian uint64.
func (r *Reader) ReadU8() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadChar reads one byte as a Latin-1 character.
func (r *Reader) ReadChar() (rune, error) {
	b, err := r.ReadU1()
	return rune(b), err
}

// ReadBytes reads n bytes into a new slice. Large reads grow the slice as
// data arrives, so a corrupt length cannot force a huge allocation up front.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= defaultBufferSize {
		buf := make([]byte, n)
		read, err := io.ReadFull(r.r, buf)
		if err != nil {
			wrapped := r.wrap(err)
			r.pos += int64(read)
			return nil, wrapped
		}
		r.pos += int64(n)
		return buf, nil
	}

	var buf bytes.Buffer
	buf.Grow(defaultBufferSize)
	read, err := io.CopyN(&buf, r.r, int64(n))
	if err != nil {
		wrapped := r.wrap(err)
		r.pos += read
		return nil, wrapped
	}
	r.pos += read
	return buf.Bytes(), nil
}

// ReadString reads n bytes and decodes them as UTF-8. Invalid sequences are
// replaced with U+FFFD; the JVM writes modified UTF-8, which is not always
// valid standard UTF-8.
func (r *Reader) ReadString(n int) (string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int64) error {
	for n > 0 {
		chunk := n
		if chunk > defaultBufferSize {
			chunk = defaultBufferSize
		}
		discarded, err := r.r.Discard(int(chunk))
		r.pos += int64(discarded)
		if err != nil {
			return r.wrap(err)
		}
		n -= int64(discarded)
	}
	return nil
}
