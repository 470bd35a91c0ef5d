package hprof

import (
	"context"
	"io"
	"sync"
)

// readAheadDepth is how many chunks may be buffered ahead of the decoder.
const readAheadDepth = 4

// readAheadReader reads src on its own goroutine into a bounded queue of
// chunks, so file I/O overlaps with decoding. Bytes come out in the same
// order they were read.
type readAheadReader struct {
	chunks chan []byte
	done   chan struct{}
	cur    []byte
	err    error // written by the producer before chunks is closed

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newReadAheadReader(ctx context.Context, src io.Reader, chunkSize, depth int) *readAheadReader {
	if chunkSize <= 0 {
		chunkSize = defaultBufferSize
	}
	if depth <= 0 {
		depth = 1
	}
	r := &readAheadReader{
		chunks: make(chan []byte, depth),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.produce(ctx, src, chunkSize)
	return r
}

func (r *readAheadReader) produce(ctx context.Context, src io.Reader, chunkSize int) {
	defer r.wg.Done()
	defer close(r.chunks)

	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			select {
			case r.chunks <- buf[:n]:
			case <-r.done:
				r.err = io.ErrClosedPipe
				return
			case <-ctx.Done():
				r.err = ctx.Err()
				return
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			r.err = io.EOF
			return
		}
		if err != nil {
			r.err = err
			return
		}
	}
}

// Read implements io.Reader.
func (r *readAheadReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.cur) == 0 {
		chunk, ok := <-r.chunks
		if !ok {
			return 0, r.err
		}
		r.cur = chunk
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// Close stops the producer and waits for it to exit.
func (r *readAheadReader) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
	return nil
}
