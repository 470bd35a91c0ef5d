package hprof

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned when the header names a format other
	// than JAVA PROFILE 1.0.1 or 1.0.2.
	ErrUnsupportedVersion = errors.New("unsupported hprof version")

	// ErrInvalidIDSize is returned when the header declares an identifier
	// width other than 4 or 8.
	ErrInvalidIDSize = errors.New("invalid identifier size")

	// ErrUnexpectedEOF is returned when the input ends inside a record.
	ErrUnexpectedEOF = errors.New("unexpected end of file")

	// ErrInvalidFieldType is returned for a basic type tag outside the defined set.
	ErrInvalidFieldType = errors.New("invalid field type")

	// ErrUnresolvedSymbol is returned by SymbolTable.Lookup for unknown ids.
	// It never aborts a pass.
	ErrUnresolvedSymbol = errors.New("unresolved symbol")

	// ErrStreamDesync is returned when the cursor no longer agrees with the
	// declared record framing.
	ErrStreamDesync = errors.New("record stream out of sync")

	// ErrUnknownSubRecord is returned for a heap dump sub-tag with no known layout.
	ErrUnknownSubRecord = fmt.Errorf("%w: unknown heap dump sub-record", ErrStreamDesync)

	// ErrMalformedRecord is returned when a record length cannot hold its fields.
	ErrMalformedRecord = errors.New("malformed record")
)

// FieldTypeError reports an unrecognised basic type tag and where it was read.
type FieldTypeError struct {
	Tag    uint8
	Offset int64
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("invalid field type %d at offset %d", e.Tag, e.Offset)
}

func (e *FieldTypeError) Unwrap() error {
	return ErrInvalidFieldType
}

// SubRecordError reports a heap dump sub-tag that cannot be decoded.
type SubRecordError struct {
	Tag    HeapDumpTag
	Offset int64
}

func (e *SubRecordError) Error() string {
	return fmt.Sprintf("unknown heap dump sub-tag 0x%02X at offset %d", uint8(e.Tag), e.Offset)
}

func (e *SubRecordError) Unwrap() error {
	return ErrUnknownSubRecord
}

// DecodeError attaches the position of the failing record to a fatal error.
type DecodeError struct {
	Offset int64
	Tag    RecordTag
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s record at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func desyncf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStreamDesync, fmt.Sprintf(format, args...))
}
