// Package hprof decodes Java HPROF heap dump files in a single forward pass.
//
// # Package Organization
//
// ## Core Reading (core_*.go)
//   - core_reader.go: buffered big-endian Reader with an absolute cursor
//   - core_stream.go: Stream, the header preamble and identifier width
//   - core_value.go: basic-typed Value decoding
//
// ## Decoding (parser.go, heap_dump.go, readahead.go)
//   - parser.go: top-level record loop and per-record decoders
//   - heap_dump.go: heap dump sub-record walker
//   - readahead.go: optional read-ahead goroutine
//
// ## Model (types.go, records.go, tables.go, snapshot.go)
//   - types.go: tags, basic types, headers
//   - records.go: the closed Record set
//   - tables.go: SymbolTable and ClassTable
//   - snapshot.go: everything a pass collects
//
// # Framing
//
// Top-level records carry a length and can always be skipped. Heap dump
// sub-records do not; a sub-tag without a known layout stops the pass with
// ErrUnknownSubRecord rather than guessing. After every record the cursor
// must sit exactly at the record end.
//
// # Usage Example
//
//	parser := hprof.NewParser(hprof.DefaultParserOptions())
//	snap, err := parser.ParseFile(ctx, "heap.hprof")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range snap.Classes.Classes() {
//	    fmt.Println(c.SerialNumber, c.Name, c.Status)
//	}
package hprof
