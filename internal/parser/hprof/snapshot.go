package hprof

import "strconv"

// HeapDumpStats counts what the heap dump walker saw.
type HeapDumpStats struct {
	Segments        int64
	Ended           bool
	Roots           map[GCRootKind]int64
	ClassDumps      int64
	Instances       int64
	ObjectArrays    int64
	PrimitiveArrays int64
	// Skipped counts extension sub-records stepped over by layout.
	Skipped int64
}

// TotalRoots returns the number of GC roots of every kind.
func (s *HeapDumpStats) TotalRoots() int64 {
	var n int64
	for _, c := range s.Roots {
		n += c
	}
	return n
}

// Snapshot is everything one pass over a dump collected.
type Snapshot struct {
	Header  Header
	Symbols *SymbolTable
	Classes *ClassTable

	Frames  map[uint64]*StackFrame
	Traces  map[uint32]*StackTrace
	Threads map[uint32]*ThreadRecord

	HeapSummaries   []*HeapSummary
	AllocSites      []*AllocSites
	CPUSamples      []*CPUSamples
	ControlSettings *ControlSettings

	HeapDump HeapDumpStats

	// Heap records are only retained with ParserOptions.KeepHeapRecords.
	Roots           []*GCRoot
	ClassDumps      []*ClassDump
	Instances       []*InstanceDump
	ObjectArrays    []*ObjectArrayDump
	PrimitiveArrays []*PrimitiveArrayDump

	RecordCounts   map[RecordTag]int64
	SkippedRecords int64
	BytesRead      int64
}

// NewSnapshot returns an empty Snapshot with its tables allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Symbols:      NewSymbolTable(),
		Classes:      NewClassTable(),
		Frames:       make(map[uint64]*StackFrame),
		Traces:       make(map[uint32]*StackTrace),
		Threads:      make(map[uint32]*ThreadRecord),
		HeapDump:     HeapDumpStats{Roots: make(map[GCRootKind]int64)},
		RecordCounts: make(map[RecordTag]int64),
	}
}

// ThreadName resolves the name of the thread with the given serial.
func (s *Snapshot) ThreadName(serial uint32) string {
	t, ok := s.Threads[serial]
	if !ok {
		return ""
	}
	return s.Symbols.Resolve(t.NameID)
}

// MethodName resolves a frame to "Class.method(Source:line)".
func (s *Snapshot) MethodName(frameID uint64) string {
	f, ok := s.Frames[frameID]
	if !ok {
		return UnresolvedName(frameID)
	}
	class := ""
	if c, ok := s.Classes.Get(f.ClassSerial); ok {
		class = c.Name + "."
	}
	name := class + s.Symbols.Resolve(f.MethodNameID)
	source := s.Symbols.ResolveOptional(f.SourceFileID)
	switch {
	case f.LineNumber > 0:
		return name + "(" + source + ":" + strconv.Itoa(int(f.LineNumber)) + ")"
	case f.LineNumber == -2:
		return name + "(compiled method)"
	case f.LineNumber == -3:
		return name + "(native method)"
	case source != "":
		return name + "(" + source + ")"
	default:
		return name + "(unknown source)"
	}
}
