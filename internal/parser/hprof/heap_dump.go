package hprof

import (
	"context"
)

// fixedLayout describes a sub-record whose size depends only on the
// identifier width: ids identifiers followed by extra bytes.
type fixedLayout struct {
	ids   int64
	extra int64
}

func (l fixedLayout) size(idSize int64) int64 {
	return l.ids*idSize + l.extra
}

// extensionLayouts lists sub-records that carry nothing the decoder needs
// but whose width is known, so they can be stepped over without desyncing.
var extensionLayouts = map[HeapDumpTag]fixedLayout{
	HeapTagPadding:              {},
	HeapTagRootInternedString:   {ids: 1},
	HeapTagRootFinalizing:       {ids: 1},
	HeapTagRootDebugger:         {ids: 1},
	HeapTagRootReferenceCleanup: {ids: 1},
	HeapTagRootVMInternal:       {ids: 1},
	HeapTagRootJNIMonitor:       {ids: 1, extra: 8},
	HeapTagRootUnreachable:      {ids: 1},
	HeapTagPrimitiveArrayNoData: {ids: 1, extra: 9},
	HeapTagHeapDumpInfo:         {ids: 1, extra: 4},
}

// parseHeapDumpRecord walks the sub-records of a HEAP_DUMP or
// HEAP_DUMP_SEGMENT body. Sub-records have no length prefix, so every one
// must be decoded exactly; the walk ends when the body is used up and fails
// if a sub-record crosses the end.
func (p *Parser) parseHeapDumpRecord(ctx context.Context, state *parserState, hdr RecordHeader) error {
	s := state.stream
	end := hdr.End()

	for s.Position() < end {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		offset := s.Position()
		tagByte, err := s.r.ReadU1()
		if err != nil {
			return err
		}
		tag := HeapDumpTag(tagByte)

		rec, err := p.parseHeapDumpSubRecord(state, tag, offset, end)
		if err != nil {
			return err
		}
		if pos := s.Position(); pos > end {
			return desyncf("%s sub-record at offset %d ends at %d, past segment end %d", tag, offset, pos, end)
		}
		if err := p.emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseHeapDumpSubRecord(state *parserState, tag HeapDumpTag, offset, end int64) (Record, error) {
	stats := &state.snapshot.HeapDump

	switch tag {
	case HeapTagRootUnknown, HeapTagRootJNIGlobal, HeapTagRootJNILocal,
		HeapTagRootJavaFrame, HeapTagRootNativeStack, HeapTagRootStickyClass,
		HeapTagRootThreadBlock, HeapTagRootMonitorUsed, HeapTagRootThreadObject:
		root, err := p.parseGCRoot(state, tag)
		if err != nil {
			return nil, err
		}
		stats.Roots[root.Kind]++
		if p.opts.KeepHeapRecords {
			state.snapshot.Roots = append(state.snapshot.Roots, root)
		}
		return root, nil

	case HeapTagClassDump:
		cd, err := p.parseClassDump(state)
		if err != nil {
			return nil, err
		}
		stats.ClassDumps++
		if p.opts.KeepHeapRecords {
			state.snapshot.ClassDumps = append(state.snapshot.ClassDumps, cd)
		}
		return cd, nil

	case HeapTagInstanceDump:
		inst, err := p.parseInstanceDump(state)
		if err != nil {
			return nil, err
		}
		stats.Instances++
		if p.opts.KeepHeapRecords {
			state.snapshot.Instances = append(state.snapshot.Instances, inst)
		}
		return inst, nil

	case HeapTagObjectArrayDump:
		arr, err := p.parseObjectArrayDump(state)
		if err != nil {
			return nil, err
		}
		stats.ObjectArrays++
		if p.opts.KeepHeapRecords {
			state.snapshot.ObjectArrays = append(state.snapshot.ObjectArrays, arr)
		}
		return arr, nil

	case HeapTagPrimitiveArrayDump:
		arr, err := p.parsePrimitiveArrayDump(state)
		if err != nil {
			return nil, err
		}
		stats.PrimitiveArrays++
		if p.opts.KeepHeapRecords {
			state.snapshot.PrimitiveArrays = append(state.snapshot.PrimitiveArrays, arr)
		}
		return arr, nil
	}

	layout, ok := extensionLayouts[tag]
	if !ok {
		return nil, &SubRecordError{Tag: tag, Offset: offset}
	}
	n := layout.size(state.idSize())
	if pos := state.stream.Position(); pos+n > end {
		return nil, desyncf("%s sub-record at offset %d needs %d bytes, %d left in segment", tag, offset, n, end-pos)
	}
	if err := state.stream.r.Skip(n); err != nil {
		return nil, err
	}
	if tag != HeapTagPadding {
		stats.Skipped++
	}
	return nil, nil
}

func (p *Parser) parseGCRoot(state *parserState, tag HeapDumpTag) (*GCRoot, error) {
	s := state.stream
	root := &GCRoot{}
	var err error
	if root.ObjectID, err = s.ReadID(); err != nil {
		return nil, err
	}

	switch tag {
	case HeapTagRootUnknown:
		root.Kind = RootUnknown
	case HeapTagRootStickyClass:
		root.Kind = RootStickyClass
	case HeapTagRootMonitorUsed:
		root.Kind = RootMonitorUsed
	case HeapTagRootJNIGlobal:
		root.Kind = RootJNIGlobal
		root.ReferrerID, err = s.ReadID()
	case HeapTagRootJNILocal, HeapTagRootJavaFrame:
		root.Kind = RootJNILocal
		if tag == HeapTagRootJavaFrame {
			root.Kind = RootJavaFrame
		}
		if root.ThreadSerial, err = s.r.ReadU4(); err == nil {
			root.FrameDepth, err = s.r.ReadU4()
		}
	case HeapTagRootNativeStack, HeapTagRootThreadBlock:
		root.Kind = RootNativeStack
		if tag == HeapTagRootThreadBlock {
			root.Kind = RootThreadBlock
		}
		root.ThreadSerial, err = s.r.ReadU4()
	case HeapTagRootThreadObject:
		root.Kind = RootThreadObject
		if root.ThreadSerial, err = s.r.ReadU4(); err == nil {
			root.StackTraceSerial, err = s.r.ReadU4()
		}
	}
	if err != nil {
		return nil, err
	}
	return root, nil
}

// parseClassDump parses a CLASS_DUMP sub-record.
func (p *Parser) parseClassDump(state *parserState) (*ClassDump, error) {
	s := state.stream
	cd := &ClassDump{}
	var err error

	if cd.ClassID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if cd.StackTraceSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	for _, dst := range []*uint64{&cd.SuperClassID, &cd.LoaderID, &cd.SignersID, &cd.ProtectionDomainID} {
		if *dst, err = s.ReadID(); err != nil {
			return nil, err
		}
	}
	// Two reserved ids.
	if err := s.r.Skip(2 * state.idSize()); err != nil {
		return nil, err
	}
	if cd.InstanceSize, err = s.r.ReadU4(); err != nil {
		return nil, err
	}

	cpCount, err := s.r.ReadU2()
	if err != nil {
		return nil, err
	}
	cd.ConstantPool = make([]ConstantPoolEntry, cpCount)
	for i := range cd.ConstantPool {
		if cd.ConstantPool[i].Index, err = s.r.ReadU2(); err != nil {
			return nil, err
		}
		if cd.ConstantPool[i].Value, err = s.readTypedValue(); err != nil {
			return nil, err
		}
	}

	staticCount, err := s.r.ReadU2()
	if err != nil {
		return nil, err
	}
	cd.StaticFields = make([]StaticField, staticCount)
	for i := range cd.StaticFields {
		if cd.StaticFields[i].NameID, err = s.ReadID(); err != nil {
			return nil, err
		}
		if cd.StaticFields[i].Value, err = s.readTypedValue(); err != nil {
			return nil, err
		}
	}

	fieldCount, err := s.r.ReadU2()
	if err != nil {
		return nil, err
	}
	cd.InstanceFields = make([]FieldDecl, fieldCount)
	for i := range cd.InstanceFields {
		if cd.InstanceFields[i].NameID, err = s.ReadID(); err != nil {
			return nil, err
		}
		if cd.InstanceFields[i].Type, err = s.readBasicType(); err != nil {
			return nil, err
		}
	}
	return cd, nil
}

// parseInstanceDump parses an INSTANCE_DUMP sub-record, skipping field data.
func (p *Parser) parseInstanceDump(state *parserState) (*InstanceDump, error) {
	s := state.stream
	inst := &InstanceDump{}
	var err error
	if inst.ObjectID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if inst.StackTraceSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	if inst.ClassID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if inst.PayloadLength, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	if err := s.r.Skip(int64(inst.PayloadLength)); err != nil {
		return nil, err
	}
	return inst, nil
}

// parseObjectArrayDump parses an OBJECT_ARRAY_DUMP sub-record.
func (p *Parser) parseObjectArrayDump(state *parserState) (*ObjectArrayDump, error) {
	s := state.stream
	arr := &ObjectArrayDump{}
	var err error
	if arr.ObjectID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if arr.StackTraceSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	count, err := s.r.ReadU4()
	if err != nil {
		return nil, err
	}
	if arr.ClassID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if !p.opts.KeepHeapRecords && p.opts.Handler == nil {
		if err := s.r.Skip(int64(count) * state.idSize()); err != nil {
			return nil, err
		}
		return arr, nil
	}
	arr.Elements = make([]uint64, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		id, err := s.ReadID()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, id)
	}
	return arr, nil
}

// parsePrimitiveArrayDump parses a PRIMITIVE_ARRAY_DUMP sub-record,
// skipping element data.
func (p *Parser) parsePrimitiveArrayDump(state *parserState) (*PrimitiveArrayDump, error) {
	s := state.stream
	arr := &PrimitiveArrayDump{}
	var err error
	if arr.ObjectID, err = s.ReadID(); err != nil {
		return nil, err
	}
	if arr.StackTraceSerial, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	if arr.Length, err = s.r.ReadU4(); err != nil {
		return nil, err
	}
	offset := s.Position()
	elemType, err := s.r.ReadU1()
	if err != nil {
		return nil, err
	}
	arr.ElementType = BasicType(elemType)
	if !arr.ElementType.IsPrimitive() {
		return nil, &FieldTypeError{Tag: elemType, Offset: offset}
	}
	size := int64(BasicTypeSize(arr.ElementType, state.stream.IDSize()))
	if err := s.r.Skip(int64(arr.Length) * size); err != nil {
		return nil, err
	}
	return arr, nil
}
