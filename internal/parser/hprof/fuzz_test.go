package hprof

import (
	"bytes"
	"context"
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add(fullDump(Version102, IDSize4).bytes())
	f.Add(fullDump(Version101, IDSize8).bytes())
	f.Add(newDump(Version102, IDSize4).utf8(1, "Main").loadClass(1, 100, 0, 1).bytes())
	f.Add([]byte("JAVA PROFILE 1.0.2"))

	f.Fuzz(func(t *testing.T, data []byte) {
		parser := NewParser(nil)
		snap, err := parser.Parse(context.Background(), bytes.NewReader(data))
		if err != nil {
			if parser.State() != StateFailed {
				t.Fatalf("failed pass left parser in state %s", parser.State())
			}
			return
		}
		if snap.BytesRead != int64(len(data)) {
			t.Fatalf("consumed %d of %d bytes", snap.BytesRead, len(data))
		}
	})
}
