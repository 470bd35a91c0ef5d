// Package analyzer runs one analysis of a heap dump: fetch, decode, persist.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jsnap/internal/parser/hprof"
	"github.com/jsnap/internal/progress"
	"github.com/jsnap/internal/repository"
	"github.com/jsnap/internal/storage"
	"github.com/jsnap/internal/workspace"
	"github.com/jsnap/pkg/compression"
	"github.com/jsnap/pkg/config"
	apperrors "github.com/jsnap/pkg/errors"
	"github.com/jsnap/pkg/utils"
)

// Result describes one analysis.
type Result struct {
	Location    string
	Workspace   *workspace.Workspace
	Compression compression.Type

	// Skipped is set when a completed analysis already existed.
	Skipped     bool
	CompletedAt time.Time

	// Snapshot is nil when Skipped.
	Snapshot *hprof.Snapshot
	Info     *repository.DumpInfo
	Duration time.Duration
}

// StorageFactory builds the backend a dump location refers to.
type StorageFactory func(t storage.StorageType, cfg *config.StorageConfig) (storage.Storage, error)

// SnapshotAnalyzer decodes dumps into per-dump workspaces.
type SnapshotAnalyzer struct {
	cfg        *config.Config
	logger     utils.Logger
	reporter   progress.Reporter
	clock      utils.Clock
	newStorage StorageFactory
	verbose    bool
}

// Option configures a SnapshotAnalyzer.
type Option func(*SnapshotAnalyzer)

// WithLogger sets the logger.
func WithLogger(l utils.Logger) Option {
	return func(a *SnapshotAnalyzer) { a.logger = utils.OrNull(l) }
}

// WithReporter sets where read progress goes.
func WithReporter(r progress.Reporter) Option {
	return func(a *SnapshotAnalyzer) { a.reporter = r }
}

// WithClock replaces the wall clock.
func WithClock(c utils.Clock) Option {
	return func(a *SnapshotAnalyzer) { a.clock = c }
}

// WithStorageFactory replaces how storage backends are built.
func WithStorageFactory(f StorageFactory) Option {
	return func(a *SnapshotAnalyzer) { a.newStorage = f }
}

// WithVerbose enables parser debug logging and phase timing.
func WithVerbose(v bool) Option {
	return func(a *SnapshotAnalyzer) { a.verbose = v }
}

// NewSnapshotAnalyzer creates an analyzer using cfg.
func NewSnapshotAnalyzer(cfg *config.Config, opts ...Option) *SnapshotAnalyzer {
	a := &SnapshotAnalyzer{
		cfg:        cfg,
		logger:     &utils.NullLogger{},
		reporter:   progress.Nop{},
		clock:      utils.NewRealClock(),
		newStorage: storage.NewStorage,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Workspace returns the workspace a dump location maps to.
func (a *SnapshotAnalyzer) Workspace(location string) (*workspace.Workspace, error) {
	dataDir, err := a.cfg.ResolveDataDir()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "invalid data_dir", err)
	}
	_, key := storage.ParseLocation(location)
	ws, err := workspace.New(dataDir, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid dump location", err)
	}
	return ws, nil
}

// Analyze decodes the dump at location into its workspace. An already
// completed workspace is reused unless force is set. When decoding fails
// midway, whatever was decoded is still persisted and the error returned
// alongside the Result.
func (a *SnapshotAnalyzer) Analyze(ctx context.Context, location string, force bool) (*Result, error) {
	ctx, span := otel.Tracer("jsnap/analyzer").Start(ctx, "analyzer.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("dump.location", location), attribute.Bool("force", force))

	res, err := a.analyze(ctx, location, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (a *SnapshotAnalyzer) analyze(ctx context.Context, location string, force bool) (*Result, error) {
	start := a.clock.Now()
	timer := utils.NewTimer("Analyze", utils.WithLogger(a.logger), utils.WithEnabled(a.verbose), utils.WithClock(a.clock))
	defer timer.PrintSummary()

	ws, err := a.Workspace(location)
	if err != nil {
		return nil, err
	}
	res := &Result{Location: location, Workspace: ws}
	log := a.logger.WithField("workspace", ws.Name)

	done, err := ws.Prepare(force)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "failed to prepare workspace", err)
	}
	if done {
		log.Info("Dump already analyzed, use --reanalyze to parse it again")
		res.Skipped = true
		if res.CompletedAt, err = ws.CompletedAt(); err != nil {
			log.Warn("Unreadable completion marker: %v", err)
		}
		res.Info, err = a.loadInfo(ctx, ws)
		return res, err
	}

	pt := timer.Start("Open")
	src, size, err := a.open(ctx, location)
	pt.Stop()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Compressed sources report progress in compressed bytes, since the
	// decoded length is unknown up front.
	counted := &countingReader{r: src, reporter: a.reporter}
	dec, ctype, err := compression.NewReader(counted)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "failed to open dump", err)
	}
	defer dec.Close()
	res.Compression = ctype
	log.Info("Parsing %s (%s, compression=%s)", location, formatSize(size), ctype)

	a.reporter.Start(size)
	opts := a.parserOptions()
	if ctype == compression.TypeNone {
		opts.Progress = a.reporter.Add
	} else {
		counted.enable()
	}

	pt = timer.Start("Decode")
	snap, parseErr := hprof.NewParser(opts).Parse(ctx, dec)
	pt.Stop()
	a.reporter.Finish()
	res.Snapshot = snap
	parseErr = classifyParseError(parseErr)
	if snap == nil {
		return res, parseErr
	}
	if parseErr != nil {
		log.Warn("Decoding stopped at byte %d: %v", snap.BytesRead, parseErr)
	}

	pt = timer.Start("Persist")
	info, err := a.persist(ctx, ws, snap)
	pt.Stop()
	if err != nil {
		return res, errors.Join(parseErr, err)
	}
	res.Info = info
	if parseErr != nil {
		return res, parseErr
	}

	if err := ws.MarkComplete(a.clock.Now()); err != nil {
		return res, apperrors.Wrap(apperrors.CodeIOError, "failed to mark workspace complete", err)
	}
	res.Duration = a.clock.Since(start)
	log.Info("Analysis finished in %s", res.Duration.Round(time.Millisecond))
	return res, nil
}

func (a *SnapshotAnalyzer) parserOptions() *hprof.ParserOptions {
	opts := hprof.DefaultParserOptions()
	if a.verbose {
		opts.Logger = a.logger
	}
	opts.ReadAhead = a.cfg.Parser.ReadAhead
	if a.cfg.Parser.ReadAheadChunk > 0 {
		opts.ReadAheadChunk = a.cfg.Parser.ReadAheadChunk
	}
	opts.KeepHeapRecords = a.cfg.Parser.KeepHeapRecords
	return opts
}

func (a *SnapshotAnalyzer) open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	typ, key := storage.ParseLocation(location)
	store, err := a.newStorage(typ, &a.cfg.Storage)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeConfigError, "failed to create storage", err)
	}
	rc, size, err := store.Open(ctx, key)
	if err != nil {
		if apperrors.GetErrorCode(err) != apperrors.CodeUnknown {
			return nil, 0, err
		}
		return nil, 0, apperrors.Wrap(apperrors.CodeIOError, "failed to open dump", err)
	}
	return rc, size, nil
}

func (a *SnapshotAnalyzer) persist(ctx context.Context, ws *workspace.Workspace, snap *hprof.Snapshot) (*repository.DumpInfo, error) {
	repos, err := repository.Open(ctx, &a.cfg.Database, ws.Dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open database", err)
	}
	defer repos.Close()

	if err := repos.Snapshot.SaveSnapshot(ctx, snap); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save snapshot", err)
	}
	info, err := repos.Snapshot.GetDumpInfo(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to read dump info", err)
	}
	return info, nil
}

func (a *SnapshotAnalyzer) loadInfo(ctx context.Context, ws *workspace.Workspace) (*repository.DumpInfo, error) {
	repos, err := repository.Open(ctx, &a.cfg.Database, ws.Dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open database", err)
	}
	defer repos.Close()
	return repos.Snapshot.GetDumpInfo(ctx)
}

// OpenRepositories opens the database of an analysed dump for querying.
func (a *SnapshotAnalyzer) OpenRepositories(ctx context.Context, location string) (*repository.Repositories, error) {
	ws, err := a.Workspace(location)
	if err != nil {
		return nil, err
	}
	if !ws.IsComplete() {
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("%s has not been analyzed, run jsnap parse first", ws.Name))
	}
	repos, err := repository.Open(ctx, &a.cfg.Database, ws.Dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open database", err)
	}
	return repos, nil
}

// countingReader reports source bytes once enabled. Bytes read before that,
// such as the compression sniff, are held back and reported by enable.
// The zstd decoder reads from its own goroutine.
type countingReader struct {
	r        io.Reader
	reporter progress.Reporter

	mu      sync.Mutex
	enabled bool
	pending int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.mu.Lock()
		if c.enabled {
			c.reporter.Add(int64(n))
		} else {
			c.pending += int64(n)
		}
		c.mu.Unlock()
	}
	return n, err
}

func (c *countingReader) enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	if c.pending > 0 {
		c.reporter.Add(c.pending)
		c.pending = 0
	}
}

func formatSize(n int64) string {
	if n < 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}
