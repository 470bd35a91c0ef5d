package hprof

// Record is implemented by every decoded top-level record and heap dump
// sub-record. The set is closed; consumers switch on the concrete type.
type Record interface {
	isRecord()
}

// Symbol is a UTF8 record: an id bound to a name.
type Symbol struct {
	ID   uint64
	Name string
}

// ClassStatus tracks whether a class has been unloaded. The numeric values
// are what the persistence layer stores.
type ClassStatus uint8

const (
	ClassUnloaded ClassStatus = 0
	ClassLoaded   ClassStatus = 1
)

func (s ClassStatus) String() string {
	if s == ClassLoaded {
		return "loaded"
	}
	return "unloaded"
}

// LoadedClass is a LOAD_CLASS record, updated in place by UNLOAD_CLASS.
type LoadedClass struct {
	SerialNumber     uint32
	ClassID          uint64
	StackTraceSerial uint32
	NameID           uint64
	Name             string // dotted form, resolved when the record was read
	Status           ClassStatus
}

// UnloadClass is an UNLOAD_CLASS record.
type UnloadClass struct {
	SerialNumber uint32
}

// StackFrame is a FRAME record. LineNumber keeps the negative sentinels
// (-1 unknown, -2 compiled, -3 native).
type StackFrame struct {
	FrameID           uint64
	MethodNameID      uint64
	MethodSignatureID uint64
	SourceFileID      uint64
	ClassSerial       uint32
	LineNumber        int32
}

// StackTrace is a TRACE record; FrameIDs are innermost first.
type StackTrace struct {
	SerialNumber uint32
	ThreadSerial uint32
	FrameIDs     []uint64
}

// ThreadRecord is a START_THREAD record. Ended is set by a later END_THREAD.
type ThreadRecord struct {
	SerialNumber      uint32
	ObjectID          uint64
	StackTraceSerial  uint32
	NameID            uint64
	GroupNameID       uint64
	ParentGroupNameID uint64
	Ended             bool
}

// ThreadEnd is an END_THREAD record.
type ThreadEnd struct {
	SerialNumber uint32
}

// HeapSummary is a HEAP_SUMMARY record.
type HeapSummary struct {
	LiveBytes          uint32
	LiveInstances      uint32
	AllocatedBytes     uint64
	AllocatedInstances uint64
}

// AllocSite is one entry of an ALLOC_SITES record.
type AllocSite struct {
	IsArray            uint8
	ClassSerial        uint32
	StackTraceSerial   uint32
	LiveBytes          uint32
	LiveInstances      uint32
	AllocatedBytes     uint32
	AllocatedInstances uint32
}

// AllocSites is an ALLOC_SITES record.
type AllocSites struct {
	Flags              uint16
	CutoffRatio        uint32 // raw IEEE-754 bits
	LiveBytes          uint32
	LiveInstances      uint32
	AllocatedBytes     uint64
	AllocatedInstances uint64
	Sites              []AllocSite
}

// CPUTrace is one entry of a CPU_SAMPLES record.
type CPUTrace struct {
	Samples          uint32
	StackTraceSerial uint32
}

// CPUSamples is a CPU_SAMPLES record.
type CPUSamples struct {
	TotalSamples uint32
	Traces       []CPUTrace
}

// ControlSettings is a CONTROL_SETTINGS record.
type ControlSettings struct {
	Flags      uint32
	TraceDepth uint16
}

func (c *ControlSettings) AllocTraces() bool { return c.Flags&0x1 != 0 }
func (c *ControlSettings) CPUSampling() bool { return c.Flags&0x2 != 0 }

// HeapDumpEnd marks a HEAP_DUMP_END record.
type HeapDumpEnd struct{}

// SkippedRecord is emitted for a top-level tag the decoder does not interpret.
type SkippedRecord struct {
	Header RecordHeader
}

// GCRootKind identifies which root sub-record produced a GCRoot.
type GCRootKind uint8

const (
	RootUnknown GCRootKind = iota
	RootJNIGlobal
	RootJNILocal
	RootJavaFrame
	RootNativeStack
	RootStickyClass
	RootThreadBlock
	RootMonitorUsed
	RootThreadObject
)

func (k GCRootKind) String() string {
	switch k {
	case RootJNIGlobal:
		return "JNI global"
	case RootJNILocal:
		return "JNI local"
	case RootJavaFrame:
		return "Java frame"
	case RootNativeStack:
		return "native stack"
	case RootStickyClass:
		return "sticky class"
	case RootThreadBlock:
		return "thread block"
	case RootMonitorUsed:
		return "monitor used"
	case RootThreadObject:
		return "thread object"
	default:
		return "unknown"
	}
}

// GCRoot is any of the nine root sub-records. Fields that a kind does not
// carry are zero: ReferrerID is JNI global only, FrameDepth is JNI local and
// Java frame only, ThreadSerial is every thread-bound kind, StackTraceSerial
// is thread object only.
type GCRoot struct {
	Kind             GCRootKind
	ObjectID         uint64
	ReferrerID       uint64
	ThreadSerial     uint32
	FrameDepth       uint32
	StackTraceSerial uint32
}

// ConstantPoolEntry is one constant pool slot of a class dump.
type ConstantPoolEntry struct {
	Index uint16
	Value Value
}

// StaticField is a static field and its value.
type StaticField struct {
	NameID uint64
	Value  Value
}

// FieldDecl is an instance field declaration.
type FieldDecl struct {
	NameID uint64
	Type   BasicType
}

// ClassDump is a CLASS_DUMP sub-record.
type ClassDump struct {
	ClassID            uint64
	StackTraceSerial   uint32
	SuperClassID       uint64
	LoaderID           uint64
	SignersID          uint64
	ProtectionDomainID uint64
	InstanceSize       uint32
	ConstantPool       []ConstantPoolEntry
	StaticFields       []StaticField
	InstanceFields     []FieldDecl
}

// InstanceDump is an INSTANCE_DUMP sub-record. The field payload is skipped.
type InstanceDump struct {
	ObjectID         uint64
	StackTraceSerial uint32
	ClassID          uint64
	PayloadLength    uint32
}

// ObjectArrayDump is an OBJECT_ARRAY_DUMP sub-record.
type ObjectArrayDump struct {
	ObjectID         uint64
	StackTraceSerial uint32
	ClassID          uint64
	Elements         []uint64
}

// PrimitiveArrayDump is a PRIMITIVE_ARRAY_DUMP sub-record. The element
// payload is skipped.
type PrimitiveArrayDump struct {
	ObjectID         uint64
	StackTraceSerial uint32
	ElementType      BasicType
	Length           uint32
}

func (*Symbol) isRecord()             {}
func (*LoadedClass) isRecord()        {}
func (*UnloadClass) isRecord()        {}
func (*StackFrame) isRecord()         {}
func (*StackTrace) isRecord()         {}
func (*ThreadRecord) isRecord()       {}
func (*ThreadEnd) isRecord()          {}
func (*HeapSummary) isRecord()        {}
func (*AllocSites) isRecord()         {}
func (*CPUSamples) isRecord()         {}
func (*ControlSettings) isRecord()    {}
func (*HeapDumpEnd) isRecord()        {}
func (*SkippedRecord) isRecord()      {}
func (*GCRoot) isRecord()             {}
func (*ClassDump) isRecord()          {}
func (*InstanceDump) isRecord()       {}
func (*ObjectArrayDump) isRecord()    {}
func (*PrimitiveArrayDump) isRecord() {}
