package lens

import (
	"errors"
	"io"
	"sync"
	"time"
)

const interceptTailBytes = 256

// IOStats counts the calls made through a traced reader or writer.
type IOStats struct {
	Calls    uint64
	Bytes    uint64
	Errors   uint64 // io.EOF is not counted
	Duration time.Duration
}

// ioTrace is the state shared by the traced reader and writer.
type ioTrace struct {
	dbg     *Debugger
	mu      sync.Mutex
	stats   IOStats
	tail    *tailBuffer
	sendErr error
}

// record counts one call and reports it to the collector. Reporting never alters the result of the call.
func (t *ioTrace) record(op string, p []byte, n int, err error, elapsed time.Duration) {
	t.mu.Lock()
	t.stats.Calls++
	t.stats.Bytes += uint64(n)
	t.stats.Duration += elapsed
	if err != nil && !errors.Is(err, io.EOF) {
		t.stats.Errors++
	}
	_, _ = t.tail.Write(p[:min(max(n, 0), len(p))])
	t.mu.Unlock()

	var ret any = n
	if err != nil {
		ret = err
	}
	text, renderErr := t.dbg.dumper.RenderCallValue(op, []any{len(p)}, ret)
	if renderErr == nil {
		renderErr = t.dbg.send(PacketIntercept, text, CaptureCallstack(2, t.dbg.dumper.locator))
	}
	if renderErr != nil {
		t.mu.Lock()
		t.sendErr = renderErr
		t.mu.Unlock()
	}
}

// Stats returns a copy of the counters.
func (t *ioTrace) Stats() IOStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Tail returns the last bytes transferred, "..." prefixed when earlier data was dropped.
func (t *ioTrace) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tail.String()
}

// Err returns the last failure to report a call, the wrapped stream is unaffected by it.
func (t *ioTrace) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendErr
}

// TracedReader reports every Read to a collector.
type TracedReader struct {
	ioTrace
	r io.Reader
}

// TraceReader wraps r so each Read is sent as an intercept packet.
func TraceReader(r io.Reader, dbg *Debugger) *TracedReader {
	return &TracedReader{ioTrace: ioTrace{dbg: dbg, tail: newTailBuffer(interceptTailBytes)}, r: r}
}

func (t *TracedReader) Read(p []byte) (int, error) {
	start := time.Now()
	n, err := t.r.Read(p)
	t.record("read", p, n, err, time.Since(start))
	return n, err
}

// TracedWriter reports every Write to a collector.
type TracedWriter struct {
	ioTrace
	w io.Writer
}

// TraceWriter wraps w so each Write is sent as an intercept packet.
func TraceWriter(w io.Writer, dbg *Debugger) *TracedWriter {
	return &TracedWriter{ioTrace: ioTrace{dbg: dbg, tail: newTailBuffer(interceptTailBytes)}, w: w}
}

func (t *TracedWriter) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := t.w.Write(p)
	t.record("write", p, n, err, time.Since(start))
	return n, err
}
