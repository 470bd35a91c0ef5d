package repository

import (
	"context"

	"github.com/jsnap/internal/parser/hprof"
)

// SnapshotRepository stores the tables of one decoded dump.
type SnapshotRepository interface {
	// Migrate creates or updates the tables.
	Migrate(ctx context.Context) error

	// InsertSymbols upserts symbol id to name rows.
	InsertSymbols(ctx context.Context, symbols map[uint64]string) error

	// InsertClasses upserts loaded classes keyed by serial number.
	InsertClasses(ctx context.Context, classes []*hprof.LoadedClass) error

	// SaveSnapshot writes every table of snap in a single transaction.
	SaveSnapshot(ctx context.Context, snap *hprof.Snapshot) error

	// ListClasses returns loaded classes ordered by serial number.
	ListClasses(ctx context.Context, filter ClassFilter) ([]*hprof.LoadedClass, error)

	// GetSymbol returns the name stored for id, or an error matching
	// pkg/errors.ErrNotFound.
	GetSymbol(ctx context.Context, id uint64) (string, error)

	// CountSymbols returns the number of stored symbols.
	CountSymbols(ctx context.Context) (int64, error)

	// ListThreads returns threads ordered by serial number.
	ListThreads(ctx context.Context) ([]Thread, error)

	// GetTrace returns a stack trace header and its frames ordered by depth.
	GetTrace(ctx context.Context, serial uint32) (*Trace, []TraceFrame, error)

	// GetDumpInfo returns the description of the stored dump.
	GetDumpInfo(ctx context.Context) (*DumpInfo, error)
}

// ClassFilter narrows ListClasses. Zero values match everything.
type ClassFilter struct {
	// NameContains matches a substring of the dotted class name.
	NameContains string
	// Status restricts to loaded or unloaded classes.
	Status *hprof.ClassStatus
	Limit  int
	Offset int
}
