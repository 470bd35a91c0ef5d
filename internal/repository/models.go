// Package repository persists decoded heap dump tables.
package repository

import (
	"time"

	"github.com/jsnap/internal/parser/hprof"
)

// Identifiers are unsigned in the dump but stored as int64 with the same
// bits, since database/sql rejects uint64 values above MaxInt64.

// Symbol represents the tb_symbol table.
type Symbol struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;type:text"`
}

// TableName returns the table name for Symbol.
func (Symbol) TableName() string {
	return "tb_symbol"
}

// LoadedClass represents the tb_load_class table.
type LoadedClass struct {
	SerialNum        int64  `gorm:"column:serial_num;primaryKey;autoIncrement:false"`
	ClassID          int64  `gorm:"column:class_id;index"`
	ClassNameID      int64  `gorm:"column:class_name_id"`
	ClassName        string `gorm:"column:class_name;type:text;index"`
	ClassStatus      int    `gorm:"column:class_status"`
	StackTraceSerial int64  `gorm:"column:stack_trace_serial"`
}

// TableName returns the table name for LoadedClass.
func (LoadedClass) TableName() string {
	return "tb_load_class"
}

// ToModel converts the row back to the decoder's type.
func (c *LoadedClass) ToModel() *hprof.LoadedClass {
	return &hprof.LoadedClass{
		SerialNumber:     uint32(c.SerialNum),
		ClassID:          uint64(c.ClassID),
		StackTraceSerial: uint32(c.StackTraceSerial),
		NameID:           uint64(c.ClassNameID),
		Name:             c.ClassName,
		Status:           hprof.ClassStatus(c.ClassStatus),
	}
}

func newLoadedClass(c *hprof.LoadedClass) LoadedClass {
	return LoadedClass{
		SerialNum:        int64(c.SerialNumber),
		ClassID:          int64(c.ClassID),
		ClassNameID:      int64(c.NameID),
		ClassName:        c.Name,
		ClassStatus:      int(c.Status),
		StackTraceSerial: int64(c.StackTraceSerial),
	}
}

// Thread represents the tb_thread table.
type Thread struct {
	SerialNum       int64  `gorm:"column:serial_num;primaryKey;autoIncrement:false"`
	ThreadObjID     int64  `gorm:"column:thread_obj_id"`
	TraceSerialNum  int64  `gorm:"column:trace_serial_num"`
	Name            string `gorm:"column:name;type:text"`
	GroupName       string `gorm:"column:group_name;type:text"`
	ParentGroupName string `gorm:"column:parent_group_name;type:text"`
	Ended           bool   `gorm:"column:ended"`
}

// TableName returns the table name for Thread.
func (Thread) TableName() string {
	return "tb_thread"
}

// Frame represents the tb_frame table. Names are stored resolved.
type Frame struct {
	FrameID     int64  `gorm:"column:frame_id;primaryKey;autoIncrement:false"`
	MethodName  string `gorm:"column:method_name;type:text"`
	Signature   string `gorm:"column:signature;type:text"`
	SourceFile  string `gorm:"column:source_file;type:text"`
	ClassSerial int64  `gorm:"column:class_serial"`
	LineNumber  int32  `gorm:"column:line_number"`
}

// TableName returns the table name for Frame.
func (Frame) TableName() string {
	return "tb_frame"
}

// Trace represents the tb_trace table, one row per TRACE record. Traces
// without frames, such as the serial 0 placeholder, have a row here and
// none in tb_trace_frame.
type Trace struct {
	SerialNum    int64 `gorm:"column:serial_num;primaryKey;autoIncrement:false"`
	ThreadSerial int64 `gorm:"column:thread_serial"`
	FrameCount   int   `gorm:"column:frame_count"`
}

// TableName returns the table name for Trace.
func (Trace) TableName() string {
	return "tb_trace"
}

// TraceFrame represents one row of tb_trace_frame: frame Depth of trace
// SerialNum, depth 0 being the innermost frame.
type TraceFrame struct {
	SerialNum    int64 `gorm:"column:serial_num;primaryKey;autoIncrement:false"`
	Depth        int   `gorm:"column:depth;primaryKey;autoIncrement:false"`
	ThreadSerial int64 `gorm:"column:thread_serial"`
	FrameID      int64 `gorm:"column:frame_id"`
}

// TableName returns the table name for TraceFrame.
func (TraceFrame) TableName() string {
	return "tb_trace_frame"
}

// HeapSummary represents the tb_heap_summary table, one row per record in
// stream order.
type HeapSummary struct {
	Seq                int   `gorm:"column:seq;primaryKey;autoIncrement:false"`
	LiveBytes          int64 `gorm:"column:live_bytes"`
	LiveInstances      int64 `gorm:"column:live_instances"`
	AllocatedBytes     int64 `gorm:"column:allocated_bytes"`
	AllocatedInstances int64 `gorm:"column:allocated_instances"`
}

// TableName returns the table name for HeapSummary.
func (HeapSummary) TableName() string {
	return "tb_heap_summary"
}

// DumpInfo represents the single-row tb_dump_info table describing the
// decoded file.
type DumpInfo struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	Format    string    `gorm:"column:format;type:varchar(32)"`
	IDSize    int       `gorm:"column:id_size"`
	Timestamp time.Time `gorm:"column:timestamp"`
	BytesRead int64     `gorm:"column:bytes_read"`
	Records   int64     `gorm:"column:records"`
	Symbols   int64     `gorm:"column:symbols"`
	Classes   int64     `gorm:"column:classes"`
	Threads   int64     `gorm:"column:threads"`
	SavedAt   time.Time `gorm:"column:saved_at;autoUpdateTime"`
}

// TableName returns the table name for DumpInfo.
func (DumpInfo) TableName() string {
	return "tb_dump_info"
}

// AllModels lists every table AutoMigrate creates.
func AllModels() []interface{} {
	return []interface{}{
		&Symbol{}, &LoadedClass{}, &Thread{}, &Frame{},
		&Trace{}, &TraceFrame{}, &HeapSummary{}, &DumpInfo{},
	}
}
