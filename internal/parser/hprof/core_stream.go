package hprof

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	Version101 = "JAVA PROFILE 1.0.1"
	Version102 = "JAVA PROFILE 1.0.2"

	// maxVersionLength bounds the header scan for the terminating NUL.
	maxVersionLength = 20
)

// IDSize is the width in bytes of every object and symbol identifier in a dump.
type IDSize int

const (
	IDSize4 IDSize = 4
	IDSize8 IDSize = 8
)

// Valid reports whether s is a width the format allows.
func (s IDSize) Valid() bool {
	return s == IDSize4 || s == IDSize8
}

func (s IDSize) String() string {
	return strconv.Itoa(int(s)) + "-byte"
}

// Stream is a Reader that has consumed the file header and therefore knows
// the identifier width. It is only obtainable through NewStream or Open.
type Stream struct {
	r      *Reader
	header Header
}

// Open opens an HPROF file and reads its header.
func Open(path string) (*Stream, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	s, err := NewStream(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return s, nil
}

// NewStream reads the header from r.
func NewStream(r *Reader) (*Stream, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	return &Stream{r: r, header: *h}, nil
}

func readHeader(r *Reader) (*Header, error) {
	var sb strings.Builder
	terminated := false
	for i := 0; i < maxVersionLength; i++ {
		c, err := r.ReadChar()
		if err != nil {
			return nil, fmt.Errorf("failed to read format string: %w", err)
		}
		if c == 0 {
			terminated = true
			break
		}
		sb.WriteRune(c)
	}
	format := sb.String()
	if !terminated || (format != Version101 && format != Version102) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, format)
	}

	size, err := r.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read ID size: %w", err)
	}
	idSize := IDSize(size)
	if !idSize.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIDSize, size)
	}

	ts, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("failed to read timestamp: %w", err)
	}

	return &Header{
		Format:          format,
		IDSize:          idSize,
		TimestampMillis: ts,
		Timestamp:       time.UnixMilli(int64(ts)),
	}, nil
}

// Header returns the decoded file header.
func (s *Stream) Header() Header {
	return s.header
}

// IDSize returns the identifier width declared by the header.
func (s *Stream) IDSize() IDSize {
	return s.header.IDSize
}

// Position returns the absolute cursor offset.
func (s *Stream) Position() int64 {
	return s.r.Position()
}

// Size returns the input length, or -1 if unknown.
func (s *Stream) Size() int64 {
	return s.r.Size()
}

// Close releases the underlying input.
func (s *Stream) Close() error {
	return s.r.Close()
}

// ReadID reads an identifier of the declared width, zero-extended.
func (s *Stream) ReadID() (uint64, error) {
	if s.header.IDSize == IDSize4 {
		v, err := s.r.ReadU4()
		return uint64(v), err
	}
	return s.r.ReadU8()
}

// NextRecordHeader reads the next record preamble. It returns io.EOF when the
// input ends exactly at a record boundary.
func (s *Stream) NextRecordHeader() (RecordHeader, error) {
	eof, err := s.r.AtEOF()
	if err != nil {
		return RecordHeader{}, err
	}
	if eof {
		return RecordHeader{}, io.EOF
	}

	h := RecordHeader{Offset: s.r.Position()}
	tag, err := s.r.ReadU1()
	if err != nil {
		return RecordHeader{}, err
	}
	h.Tag = RecordTag(tag)
	if h.TimeDelta, err = s.r.ReadU4(); err != nil {
		return RecordHeader{}, err
	}
	if h.Length, err = s.r.ReadU4(); err != nil {
		return RecordHeader{}, err
	}
	return h, nil
}
