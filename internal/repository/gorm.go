package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jsnap/internal/parser/hprof"
	apperrors "github.com/jsnap/pkg/errors"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 500

// GormSnapshotRepository implements SnapshotRepository using GORM.
type GormSnapshotRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository.
func NewGormSnapshotRepository(db *gorm.DB, batchSize int) *GormSnapshotRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &GormSnapshotRepository{db: db, batchSize: batchSize}
}

// Migrate creates or updates the tables.
func (r *GormSnapshotRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// upsert inserts rows in chunks, replacing rows whose primary key exists.
func upsert[T any](tx *gorm.DB, rows []T, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, batchSize).Error
}

func symbolRows(symbols map[uint64]string) []Symbol {
	rows := make([]Symbol, 0, len(symbols))
	for id, name := range symbols {
		rows = append(rows, Symbol{ID: int64(id), Name: name})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func classRows(classes []*hprof.LoadedClass) []LoadedClass {
	rows := make([]LoadedClass, 0, len(classes))
	for _, c := range classes {
		rows = append(rows, newLoadedClass(c))
	}
	return rows
}

// InsertSymbols upserts symbol id to name rows.
func (r *GormSnapshotRepository) InsertSymbols(ctx context.Context, symbols map[uint64]string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsert(tx, symbolRows(symbols), r.batchSize)
	})
	if err != nil {
		return fmt.Errorf("failed to insert symbols: %w", err)
	}
	return nil
}

// InsertClasses upserts loaded classes keyed by serial number.
func (r *GormSnapshotRepository) InsertClasses(ctx context.Context, classes []*hprof.LoadedClass) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsert(tx, classRows(classes), r.batchSize)
	})
	if err != nil {
		return fmt.Errorf("failed to insert classes: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored dump with snap. Either every table is
// written or none is.
func (r *GormSnapshotRepository) SaveSnapshot(ctx context.Context, snap *hprof.Snapshot) error {
	ctx, span := otel.Tracer("jsnap/repository").Start(ctx, "repository.SaveSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.Int("db.symbols", snap.Symbols.Len()),
		attribute.Int("db.classes", snap.Classes.Len()),
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range AllModels() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("clear %T: %w", m, err)
			}
		}
		if err := upsert(tx, symbolRows(snap.Symbols.All()), r.batchSize); err != nil {
			return fmt.Errorf("symbols: %w", err)
		}
		if err := upsert(tx, classRows(snap.Classes.Classes()), r.batchSize); err != nil {
			return fmt.Errorf("classes: %w", err)
		}
		if err := upsert(tx, threadRows(snap), r.batchSize); err != nil {
			return fmt.Errorf("threads: %w", err)
		}
		if err := upsert(tx, frameRows(snap), r.batchSize); err != nil {
			return fmt.Errorf("frames: %w", err)
		}
		if err := upsert(tx, traceRows(snap), r.batchSize); err != nil {
			return fmt.Errorf("traces: %w", err)
		}
		if err := upsert(tx, traceFrameRows(snap), r.batchSize); err != nil {
			return fmt.Errorf("traces: %w", err)
		}
		if err := upsert(tx, heapSummaryRows(snap), r.batchSize); err != nil {
			return fmt.Errorf("heap summaries: %w", err)
		}
		info := newDumpInfo(snap)
		return upsert(tx, []DumpInfo{info}, 1)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func threadRows(snap *hprof.Snapshot) []Thread {
	rows := make([]Thread, 0, len(snap.Threads))
	for _, t := range snap.Threads {
		rows = append(rows, Thread{
			SerialNum:       int64(t.SerialNumber),
			ThreadObjID:     int64(t.ObjectID),
			TraceSerialNum:  int64(t.StackTraceSerial),
			Name:            snap.Symbols.Resolve(t.NameID),
			GroupName:       snap.Symbols.ResolveOptional(t.GroupNameID),
			ParentGroupName: snap.Symbols.ResolveOptional(t.ParentGroupNameID),
			Ended:           t.Ended,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SerialNum < rows[j].SerialNum })
	return rows
}

func frameRows(snap *hprof.Snapshot) []Frame {
	rows := make([]Frame, 0, len(snap.Frames))
	for _, f := range snap.Frames {
		rows = append(rows, Frame{
			FrameID:     int64(f.FrameID),
			MethodName:  snap.Symbols.Resolve(f.MethodNameID),
			Signature:   snap.Symbols.Resolve(f.MethodSignatureID),
			SourceFile:  snap.Symbols.ResolveOptional(f.SourceFileID),
			ClassSerial: int64(f.ClassSerial),
			LineNumber:  f.LineNumber,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].FrameID < rows[j].FrameID })
	return rows
}

func traceRows(snap *hprof.Snapshot) []Trace {
	rows := make([]Trace, 0, len(snap.Traces))
	for _, t := range snap.Traces {
		rows = append(rows, Trace{
			SerialNum:    int64(t.SerialNumber),
			ThreadSerial: int64(t.ThreadSerial),
			FrameCount:   len(t.FrameIDs),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SerialNum < rows[j].SerialNum })
	return rows
}

func traceFrameRows(snap *hprof.Snapshot) []TraceFrame {
	var rows []TraceFrame
	for _, t := range snap.Traces {
		for depth, id := range t.FrameIDs {
			rows = append(rows, TraceFrame{
				SerialNum:    int64(t.SerialNumber),
				Depth:        depth,
				ThreadSerial: int64(t.ThreadSerial),
				FrameID:      int64(id),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SerialNum != rows[j].SerialNum {
			return rows[i].SerialNum < rows[j].SerialNum
		}
		return rows[i].Depth < rows[j].Depth
	})
	return rows
}

func heapSummaryRows(snap *hprof.Snapshot) []HeapSummary {
	rows := make([]HeapSummary, 0, len(snap.HeapSummaries))
	for i, h := range snap.HeapSummaries {
		rows = append(rows, HeapSummary{
			Seq:                i,
			LiveBytes:          int64(h.LiveBytes),
			LiveInstances:      int64(h.LiveInstances),
			AllocatedBytes:     int64(h.AllocatedBytes),
			AllocatedInstances: int64(h.AllocatedInstances),
		})
	}
	return rows
}

func newDumpInfo(snap *hprof.Snapshot) DumpInfo {
	var records int64
	for _, n := range snap.RecordCounts {
		records += n
	}
	return DumpInfo{
		ID:        1,
		Format:    snap.Header.Format,
		IDSize:    int(snap.Header.IDSize),
		Timestamp: snap.Header.Timestamp,
		BytesRead: snap.BytesRead,
		Records:   records,
		Symbols:   int64(snap.Symbols.Len()),
		Classes:   int64(snap.Classes.Len()),
		Threads:   int64(len(snap.Threads)),
	}
}

// ListClasses returns loaded classes ordered by serial number.
func (r *GormSnapshotRepository) ListClasses(ctx context.Context, filter ClassFilter) ([]*hprof.LoadedClass, error) {
	q := r.db.WithContext(ctx).Model(&LoadedClass{})
	if filter.NameContains != "" {
		q = q.Where("class_name LIKE ?", "%"+filter.NameContains+"%")
	}
	if filter.Status != nil {
		q = q.Where("class_status = ?", int(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []LoadedClass
	if err := q.Order("serial_num").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	result := make([]*hprof.LoadedClass, len(rows))
	for i := range rows {
		result[i] = rows[i].ToModel()
	}
	return result, nil
}

// GetSymbol returns the name stored for id.
func (r *GormSnapshotRepository) GetSymbol(ctx context.Context, id uint64) (string, error) {
	var row Symbol
	err := r.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("symbol %d not found", id), err)
		}
		return "", fmt.Errorf("failed to get symbol: %w", err)
	}
	return row.Name, nil
}

// CountSymbols returns the number of stored symbols.
func (r *GormSnapshotRepository) CountSymbols(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Symbol{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count symbols: %w", err)
	}
	return n, nil
}

// ListThreads returns threads ordered by serial number.
func (r *GormSnapshotRepository) ListThreads(ctx context.Context) ([]Thread, error) {
	var rows []Thread
	if err := r.db.WithContext(ctx).Order("serial_num").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return rows, nil
}

// GetTrace returns a stack trace and its frames, innermost first.
func (r *GormSnapshotRepository) GetTrace(ctx context.Context, serial uint32) (*Trace, []TraceFrame, error) {
	db := r.db.WithContext(ctx)

	var trace Trace
	if err := db.Where("serial_num = ?", int64(serial)).Take(&trace).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("trace %d not found", serial), err)
		}
		return nil, nil, fmt.Errorf("failed to get trace: %w", err)
	}

	var frames []TraceFrame
	if err := db.Where("serial_num = ?", int64(serial)).Order("depth").Find(&frames).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to get trace frames: %w", err)
	}
	return &trace, frames, nil
}

// GetDumpInfo returns the description of the stored dump.
func (r *GormSnapshotRepository) GetDumpInfo(ctx context.Context) (*DumpInfo, error) {
	var info DumpInfo
	err := r.db.WithContext(ctx).Where("id = ?", 1).Take(&info).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "no dump stored", err)
		}
		return nil, fmt.Errorf("failed to get dump info: %w", err)
	}
	return &info, nil
}
