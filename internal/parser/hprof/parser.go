package hprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jsnap/pkg/utils"
)

// ProgressFunc receives the number of bytes the cursor advanced.
type ProgressFunc func(n int64)

// RecordHandler receives every decoded record. Returning an error aborts the pass.
type RecordHandler func(Record) error

// ParserOptions configures the HPROF parser.
type ParserOptions struct {
	// Logger is used for debug logging. If nil, debug logs are suppressed.
	Logger utils.Logger
	// Progress is called once for the header and once per record.
	Progress ProgressFunc
	// Handler, if set, sees every record including heap dump sub-records.
	Handler RecordHandler
	// KeepHeapRecords retains GC roots and object descriptors in the Snapshot.
	KeepHeapRecords bool
	// ReadAhead overlaps file reads with decoding on a separate goroutine.
	ReadAhead bool
	// ReadAheadChunk is the size of each read-ahead chunk in bytes.
	ReadAheadChunk int
}

// DefaultParserOptions returns default parser options.
func DefaultParserOptions() *ParserOptions {
	return &ParserOptions{
		ReadAheadChunk: 1 << 20,
	}
}

// State is the position of the parser in its record loop.
type State int

const (
	StateAwaitingHeader State = iota
	StateDecodingPayload
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateDecodingPayload:
		return "decoding-payload"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Parser decodes one HPROF file per call to Parse. It is not safe for
// concurrent use.
type Parser struct {
	opts  *ParserOptions
	state State
}

// NewParser creates a new HPROF parser.
func NewParser(opts *ParserOptions) *Parser {
	if opts == nil {
		opts = DefaultParserOptions()
	}
	return &Parser{opts: opts}
}

// State returns the state the last pass ended in.
func (p *Parser) State() State {
	return p.state
}

// debugf logs a debug message if logger is configured.
func (p *Parser) debugf(format string, args ...interface{}) {
	if p.opts.Logger != nil {
		p.opts.Logger.Debug(format, args...)
	}
}

// parserState holds the per-pass state.
type parserState struct {
	stream   *Stream
	snapshot *Snapshot
}

func (st *parserState) idSize() int64 {
	return int64(st.stream.IDSize())
}

func (p *Parser) progress(n int64) {
	if p.opts.Progress != nil && n > 0 {
		p.opts.Progress(n)
	}
}

func (p *Parser) emit(rec Record) error {
	if p.opts.Handler == nil || rec == nil {
		return nil
	}
	return p.opts.Handler(rec)
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Snapshot, error) {
	if !p.opts.ReadAhead {
		stream, err := Open(path)
		if err != nil {
			p.state = StateFailed
			return nil, err
		}
		defer stream.Close()
		return p.ParseStream(ctx, stream)
	}

	f, err := os.Open(path)
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	return p.parseReader(ctx, f, info.Size())
}

// Parse parses an HPROF stream of unknown length.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*Snapshot, error) {
	return p.parseReader(ctx, r, -1)
}

func (p *Parser) parseReader(ctx context.Context, r io.Reader, size int64) (*Snapshot, error) {
	if p.opts.ReadAhead {
		ra := newReadAheadReader(ctx, r, p.opts.ReadAheadChunk, readAheadDepth)
		defer ra.Close()
		r = ra
	}
	stream, err := NewStream(NewReader(io.NopCloser(r), size))
	if err != nil {
		p.state = StateFailed
		return nil, err
	}
	return p.ParseStream(ctx, stream)
}

// ParseStream runs one pass over stream. On failure the partially populated
// Snapshot is returned together with the error.
func (p *Parser) ParseStream(ctx context.Context, stream *Stream) (*Snapshot, error) {
	ctx, span := otel.Tracer("jsnap/hprof").Start(ctx, "hprof.Parse")
	defer span.End()

	timer := utils.NewTimer("HPROF Parse", utils.WithLogger(p.opts.Logger), utils.WithEnabled(p.opts.Logger != nil))

	state := &parserState{stream: stream, snapshot: NewSnapshot()}
	state.snapshot.Header = stream.Header()
	p.progress(stream.Position())
	p.debugf("HPROF header: format=%s idSize=%d timestamp=%s",
		stream.Header().Format, stream.IDSize(), stream.Header().Timestamp)

	pt := timer.Start("Decode records")
	err := p.parseRecords(ctx, state)
	pt.Stop()

	timer.TimeFunc("Resolve class names", func() {
		if n := state.snapshot.Classes.ResolveNames(state.snapshot.Symbols); n > 0 {
			p.debugf("Resolved %d forward-referenced class names", n)
		}
	})
	state.snapshot.BytesRead = stream.Position()

	span.SetAttributes(
		attribute.Int64("hprof.bytes", state.snapshot.BytesRead),
		attribute.Int("hprof.symbols", state.snapshot.Symbols.Len()),
		attribute.Int("hprof.classes", state.snapshot.Classes.Len()),
	)
	timer.PrintSummary()

	if err != nil {
		p.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state.snapshot, err
	}
	p.state = StateDone
	return state.snapshot, nil
}

func (p *Parser) parseRecords(ctx context.Context, state *parserState) error {
	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.state = StateAwaitingHeader
		hdr, err := state.stream.NextRecordHeader()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		p.state = StateDecodingPayload
		if err := p.parseRecord(ctx, state, hdr); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &DecodeError{Offset: hdr.Offset, Tag: hdr.Tag, Err: err}
		}
		state.snapshot.RecordCounts[hdr.Tag]++
		p.progress(recordHeaderSize + int64(hdr.Length))
	}
}

// parseRecord decodes one record body and enforces that exactly Length
// bytes were consumed.
func (p *Parser) parseRecord(ctx context.Context, state *parserState, hdr RecordHeader) error {
	var (
		rec Record
		err error
	)

	switch hdr.Tag {
	case TagUTF8:
		rec, err = p.parseUTF8Record(state, hdr)
	case TagLoadClass:
		rec, err = p.parseLoadClassRecord(state, hdr)
	case TagUnloadClass:
		rec, err = p.parseUnloadClassRecord(state, hdr)
	case TagStackFrame:
		rec, err = p.parseStackFrameRecord(state, hdr)
	case TagStackTrace:
		rec, err = p.parseStackTraceRecord(state, hdr)
	case TagAllocSites:
		rec, err = p.parseAllocSitesRecord(state, hdr)
	case TagHeapSummary:
		rec, err = p.parseHeapSummaryRecord(state, hdr)
	case TagStartThread:
		rec, err = p.parseStartThreadRecord(state, hdr)
	case TagEndThread:
		rec, err = p.parseEndThreadRecord(state, hdr)
	case TagCPUSamples:
		rec, err = p.parseCPUSamplesRecord(state, hdr)
	case TagControlSettings:
		rec, err = p.parseControlSettingsRecord(state, hdr)
	case TagHeapDump, TagHeapDumpSegment:
		state.snapshot.HeapDump.Segments++
		err = p.parseHeapDumpRecord(ctx, state, hdr)
	case TagHeapDumpEnd:
		state.snapshot.HeapDump.Ended = true
		rec = &HeapDumpEnd{}
		err = p.parseHeapDumpRecord(ctx, state, hdr)
	default:
		p.debugf("Skipping %s record at offset %d (%d bytes)", hdr.Tag, hdr.Offset, hdr.Length)
		state.snapshot.SkippedRecords++
		rec = &SkippedRecord{Header: hdr}
		err = state.stream.r.Skip(int64(hdr.Length))
	}
	if err != nil {
		return err
	}

	pos := state.stream.Position()
	end := hdr.End()
	switch {
	case pos > end:
		return desyncf("%s record consumed %d bytes past its length %d", hdr.Tag, pos-end, hdr.Length)
	case pos < end:
		p.debugf("Skipping %d trailing bytes of %s record at offset %d", end-pos, hdr.Tag, hdr.Offset)
		if err := state.stream.r.Skip(end - pos); err != nil {
			return err
		}
	}
	return p.emit(rec)
}

// capHint bounds the initial capacity of slices sized by a count read from
// the input.
func capHint(count uint32) int {
	const maxHint = 4096
	if count > maxHint {
		return maxHint
	}
	return int(count)
}

// requireLength fails if the record body is shorter than n bytes.
func requireLength(hdr RecordHeader, n int64) error {
	if int64(hdr.Length) < n {
		return fmt.Errorf("%w: %s length %d, need at least %d", ErrMalformedRecord, hdr.Tag, hdr.Length, n)
	}
	return nil
}

func (p *Parser) parseUTF8Record(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, state.idSize()); err != nil {
		return nil, err
	}
	id, err := state.stream.ReadID()
	if err != nil {
		return nil, err
	}
	name, err := state.stream.r.ReadString(int(int64(hdr.Length) - state.idSize()))
	if err != nil {
		return nil, err
	}
	state.snapshot.Symbols.Put(id, name)
	return &Symbol{ID: id, Name: name}, nil
}

func (p *Parser) parseLoadClassRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 8+2*state.idSize()); err != nil {
		return nil, err
	}
	r := state.stream.r
	c := &LoadedClass{Status: ClassLoaded}
	var err error
	if c.SerialNumber, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if c.ClassID, err = state.stream.ReadID(); err != nil {
		return nil, err
	}
	if c.StackTraceSerial, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if c.NameID, err = state.stream.ReadID(); err != nil {
		return nil, err
	}
	c.Name = ClassName(state.snapshot.Symbols.Resolve(c.NameID))
	state.snapshot.Classes.Load(c)
	return c, nil
}

func (p *Parser) parseUnloadClassRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 4); err != nil {
		return nil, err
	}
	serial, err := state.stream.r.ReadU4()
	if err != nil {
		return nil, err
	}
	if !state.snapshot.Classes.Unload(serial) {
		p.debugf("UNLOAD_CLASS for unknown class serial %d", serial)
	}
	return &UnloadClass{SerialNumber: serial}, nil
}

func (p *Parser) parseStackFrameRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 8+4*state.idSize()); err != nil {
		return nil, err
	}
	s := state.stream
	f := &StackFrame{}
	var err error
	if f.FrameID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if f.MethodNameID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if f.MethodSignatureID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if f.SourceFileID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if f.ClassSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	line, err := s.r.ReadU4()
	if err != nil {
		return nil, err
	}
	f.LineNumber = int32(line)
	state.snapshot.Frames[f.FrameID] = f
	return f, nil
}

func (p *Parser) parseStackTraceRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 12); err != nil {
		return nil, err
	}
	r := state.stream.r
	t := &StackTrace{}
	var err error
	if t.SerialNumber, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if t.ThreadSerial, err = r.ReadU4(); err != nil {
		return nil, err
	}
	count, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	if err := requireLength(hdr, 12+int64(count)*state.idSize()); err != nil {
		return nil, err
	}
	t.FrameIDs = make([]uint64, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		id, err := state.stream.ReadID()
		if err != nil {
			return nil, err
		}
		t.FrameIDs = append(t.FrameIDs, id)
	}
	state.snapshot.Traces[t.SerialNumber] = t
	return t, nil
}

const allocSiteSize = 1 + 6*4

func (p *Parser) parseAllocSitesRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 2+4*4+2*8); err != nil {
		return nil, err
	}
	r := state.stream.r
	a := &AllocSites{}
	var err error
	if a.Flags, err = r.ReadU2(); err != nil {
		return nil, err
	}
	if a.CutoffRatio, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if a.LiveBytes, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if a.LiveInstances, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if a.AllocatedBytes, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if a.AllocatedInstances, err = r.ReadU8(); err != nil {
		return nil, err
	}
	count, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	if err := requireLength(hdr, 2+4*4+2*8+int64(count)*allocSiteSize); err != nil {
		return nil, err
	}
	a.Sites = make([]AllocSite, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		a.Sites = append(a.Sites, AllocSite{})
		site := &a.Sites[len(a.Sites)-1]
		if site.IsArray, err = r.ReadU1(); err != nil {
			return nil, err
		}
		for _, dst := range []*uint32{
			&site.ClassSerial, &site.StackTraceSerial,
			&site.LiveBytes, &site.LiveInstances,
			&site.AllocatedBytes, &site.AllocatedInstances,
		} {
			if *dst, err = r.ReadU4(); err != nil {
				return nil, err
			}
		}
	}
	state.snapshot.AllocSites = append(state.snapshot.AllocSites, a)
	return a, nil
}

func (p *Parser) parseHeapSummaryRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 24); err != nil {
		return nil, err
	}
	r := state.stream.r
	h := &HeapSummary{}
	var err error
	if h.LiveBytes, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if h.LiveInstances, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if h.AllocatedBytes, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if h.AllocatedInstances, err = r.ReadU8(); err != nil {
		return nil, err
	}
	state.snapshot.HeapSummaries = append(state.snapshot.HeapSummaries, h)
	return h, nil
}

func (p *Parser) parseStartThreadRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 8+4*state.idSize()); err != nil {
		return nil, err
	}
	s := state.stream
	t := &ThreadRecord{}
	var err error
	if t.SerialNumber, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	if t.ObjectID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if t.StackTraceSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	if t.NameID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if t.GroupNameID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if t.ParentGroupNameID, err = s.ReadID(); err != nil {
		return nil, err
	}
	state.snapshot.Threads[t.SerialNumber] = t
	return t, nil
}

func (p *Parser) parseEndThreadRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 4); err != nil {
		return nil, err
	}
	serial, err := state.stream.r.ReadU4()
	if err != nil {
		return nil, err
	}
	if t, ok := state.snapshot.Threads[serial]; ok {
		t.Ended = true
	}
	return &ThreadEnd{SerialNumber: serial}, nil
}

func (p *Parser) parseCPUSamplesRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 8); err != nil {
		return nil, err
	}
	r := state.stream.r
	c := &CPUSamples{}
	var err error
	if c.TotalSamples, err = r.ReadU4(); err != nil {
		return nil, err
	}
	count, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	if err := requireLength(hdr, 8+int64(count)*8); err != nil {
		return nil, err
	}
	c.Traces = make([]CPUTrace, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		var trace CPUTrace
		if trace.Samples, err = r.ReadU4(); err != nil {
			return nil, err
		}
		if trace.StackTraceSerial, err = r.ReadU4(); err != nil {
			return nil, err
		}
		c.Traces = append(c.Traces, trace)
	}
	state.snapshot.CPUSamples = append(state.snapshot.CPUSamples, c)
	return c, nil
}

func (p *Parser) parseControlSettingsRecord(state *parserState, hdr RecordHeader) (Record, error) {
	if err := requireLength(hdr, 6); err != nil {
		return nil, err
	}
	r := state.stream.r
	c := &ControlSettings{}
	var err error
	if c.Flags, err = r.ReadU4(); err != nil {
		return nil, err
	}
	if c.TraceDepth, err = r.ReadU2(); err != nil {
		return nil, err
	}
	state.snapshot.ControlSettings = c
	return c, nil
}
