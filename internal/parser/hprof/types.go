package hprof

import (
	"fmt"
	"time"
)

// RecordTag represents the type of a top-level record in HPROF format.
type RecordTag uint8

const (
	TagUTF8            RecordTag = 0x01
	TagLoadClass       RecordTag = 0x02
	TagUnloadClass     RecordTag = 0x03
	TagStackFrame      RecordTag = 0x04
	TagStackTrace      RecordTag = 0x05
	TagAllocSites      RecordTag = 0x06
	TagHeapSummary     RecordTag = 0x07
	TagStartThread     RecordTag = 0x0A
	TagEndThread       RecordTag = 0x0B
	TagHeapDump        RecordTag = 0x0C
	TagCPUSamples      RecordTag = 0x0D
	TagControlSettings RecordTag = 0x0E
	TagHeapDumpSegment RecordTag = 0x1C
	TagHeapDumpEnd     RecordTag = 0x2C
)

var recordTagNames = map[RecordTag]string{
	TagUTF8:            "UTF8",
	TagLoadClass:       "LOAD_CLASS",
	TagUnloadClass:     "UNLOAD_CLASS",
	TagStackFrame:      "FRAME",
	TagStackTrace:      "TRACE",
	TagAllocSites:      "ALLOC_SITES",
	TagHeapSummary:     "HEAP_SUMMARY",
	TagStartThread:     "START_THREAD",
	TagEndThread:       "END_THREAD",
	TagHeapDump:        "HEAP_DUMP",
	TagCPUSamples:      "CPU_SAMPLES",
	TagControlSettings: "CONTROL_SETTINGS",
	TagHeapDumpSegment: "HEAP_DUMP_SEGMENT",
	TagHeapDumpEnd:     "HEAP_DUMP_END",
}

func (t RecordTag) String() string {
	if name, ok := recordTagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
}

// Known reports whether the tag is one the decoder understands.
func (t RecordTag) Known() bool {
	_, ok := recordTagNames[t]
	return ok
}

// HeapDumpTag represents sub-tags within a heap dump record.
type HeapDumpTag uint8

const (
	HeapTagRootUnknown        HeapDumpTag = 0xFF
	HeapTagRootJNIGlobal      HeapDumpTag = 0x01
	HeapTagRootJNILocal       HeapDumpTag = 0x02
	HeapTagRootJavaFrame      HeapDumpTag = 0x03
	HeapTagRootNativeStack    HeapDumpTag = 0x04
	HeapTagRootStickyClass    HeapDumpTag = 0x05
	HeapTagRootThreadBlock    HeapDumpTag = 0x06
	HeapTagRootMonitorUsed    HeapDumpTag = 0x07
	HeapTagRootThreadObject   HeapDumpTag = 0x08
	HeapTagClassDump          HeapDumpTag = 0x20
	HeapTagInstanceDump       HeapDumpTag = 0x21
	HeapTagObjectArrayDump    HeapDumpTag = 0x22
	HeapTagPrimitiveArrayDump HeapDumpTag = 0x23
)

// Sub-tags written by Android (ART). None of them carries a variable-length
// payload, so they can be stepped over by layout alone.
const (
	HeapTagPadding              HeapDumpTag = 0x00
	HeapTagRootInternedString   HeapDumpTag = 0x89
	HeapTagRootFinalizing       HeapDumpTag = 0x8A
	HeapTagRootDebugger         HeapDumpTag = 0x8B
	HeapTagRootReferenceCleanup HeapDumpTag = 0x8C
	HeapTagRootVMInternal       HeapDumpTag = 0x8D
	HeapTagRootJNIMonitor       HeapDumpTag = 0x8E
	HeapTagRootUnreachable      HeapDumpTag = 0x90
	HeapTagPrimitiveArrayNoData HeapDumpTag = 0xC3 // id, u4 trace, u4 count, u1 type
	HeapTagHeapDumpInfo         HeapDumpTag = 0xFE // u4 heap type, name id
)

func (t HeapDumpTag) String() string {
	switch t {
	case HeapTagRootUnknown:
		return "ROOT_UNKNOWN"
	case HeapTagRootJNIGlobal:
		return "ROOT_JNI_GLOBAL"
	case HeapTagRootJNILocal:
		return "ROOT_JNI_LOCAL"
	case HeapTagRootJavaFrame:
		return "ROOT_JAVA_FRAME"
	case HeapTagRootNativeStack:
		return "ROOT_NATIVE_STACK"
	case HeapTagRootStickyClass:
		return "ROOT_STICKY_CLASS"
	case HeapTagRootThreadBlock:
		return "ROOT_THREAD_BLOCK"
	case HeapTagRootMonitorUsed:
		return "ROOT_MONITOR_USED"
	case HeapTagRootThreadObject:
		return "ROOT_THREAD_OBJECT"
	case HeapTagClassDump:
		return "CLASS_DUMP"
	case HeapTagInstanceDump:
		return "INSTANCE_DUMP"
	case HeapTagObjectArrayDump:
		return "OBJECT_ARRAY_DUMP"
	case HeapTagPrimitiveArrayDump:
		return "PRIMITIVE_ARRAY_DUMP"
	case HeapTagRootUnreachable:
		return "ROOT_UNREACHABLE"
	case HeapTagPrimitiveArrayNoData:
		return "PRIMITIVE_ARRAY_NODATA"
	case HeapTagHeapDumpInfo:
		return "HEAP_DUMP_INFO"
	default:
		return fmt.Sprintf("SUB_TAG(0x%02X)", uint8(t))
	}
}

// BasicType represents the JVM basic type tags used in field and array descriptors.
type BasicType uint8

const (
	TypeObject  BasicType = 2
	TypeBoolean BasicType = 4
	TypeChar    BasicType = 5
	TypeFloat   BasicType = 6
	TypeDouble  BasicType = 7
	TypeByte    BasicType = 8
	TypeShort   BasicType = 9
	TypeInt     BasicType = 10
	TypeLong    BasicType = 11
)

func (t BasicType) String() string {
	switch t {
	case TypeObject:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeChar:
		return "char"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the nine defined basic types.
func (t BasicType) Valid() bool {
	return BasicTypeSize(t, IDSize8) > 0
}

// IsPrimitive reports whether t is a valid non-object type.
func (t BasicType) IsPrimitive() bool {
	return t != TypeObject && t.Valid()
}

// BasicTypeSize returns the size in bytes for a basic type, or 0 if the
// type is not defined.
func BasicTypeSize(t BasicType, idSize IDSize) int {
	switch t {
	case TypeObject:
		return int(idSize)
	case TypeBoolean, TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeFloat, TypeInt:
		return 4
	case TypeDouble, TypeLong:
		return 8
	default:
		return 0
	}
}

// Header represents the HPROF file header.
type Header struct {
	Format          string    // "JAVA PROFILE 1.0.1" or "JAVA PROFILE 1.0.2"
	IDSize          IDSize    // Size of identifiers (4 or 8 bytes)
	TimestampMillis uint64    // Raw base timestamp
	Timestamp       time.Time // Dump timestamp
}

// recordHeaderSize is tag (1) + time delta (4) + length (4).
const recordHeaderSize = 9

// RecordHeader is the fixed 9-byte preamble of every top-level record.
type RecordHeader struct {
	Tag       RecordTag
	TimeDelta uint32 // microseconds since the header timestamp
	Length    uint32 // body length, excluding these 9 bytes
	Offset    int64  // file offset of the tag byte
}

// End returns the file offset right after the record body.
func (h RecordHeader) End() int64 {
	return h.Offset + recordHeaderSize + int64(h.Length)
}
