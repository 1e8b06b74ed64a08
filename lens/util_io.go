package lens

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// teeWriter writes to a shared primary writer plus writers it owns. Only the owned writers are closed.
type teeWriter struct {
	primary io.Writer
	owned   []io.WriteCloser
}

// TeeWriter duplicates writes to primary and every owned writer. Closing it closes the owned writers
// and leaves primary open, so stdout can be teed into a log file. Nil writers are skipped.
func TeeWriter(primary io.Writer, owned ...io.WriteCloser) io.WriteCloser {
	w := &teeWriter{primary: primary}
	for _, o := range owned {
		if o != nil {
			w.owned = append(w.owned, o)
		}
	}
	if w.primary == nil {
		w.primary = io.Discard
	}
	return w
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.primary.Write(p)
	errs := []error{err}
	for _, o := range w.owned {
		if on, oErr := o.Write(p); oErr != nil {
			errs = append(errs, oErr)
		} else if err == nil && on != n {
			return 0, fmt.Errorf("uneven write %d != %d", n, on)
		}
	}
	return n, errors.Join(errs...)
}

func (w *teeWriter) Close() error {
	var errs []error
	for _, o := range w.owned {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}

// tailBuffer keeps roughly the last maxBytes written to it, prefixed with "..." once trimmed.
type tailBuffer struct {
	buf      bytes.Buffer
	maxBytes int
}

func newTailBuffer(maxBytes int) *tailBuffer {
	return &tailBuffer{maxBytes: max(maxBytes, 2)}
}

func (tb *tailBuffer) Write(p []byte) (int, error) {
	if len(p) > tb.maxBytes {
		tb.buf.Reset()
		tb.buf.WriteString("...")
		tb.buf.Write(p[len(p)-tb.maxBytes/2:])
		return len(p), nil
	}
	tb.buf.Write(p)
	if tb.buf.Len() > tb.maxBytes {
		current := tb.buf.Bytes()
		trimmed := bytes.Clone(current[len(current)-(tb.maxBytes/2):])
		tb.buf.Reset()
		tb.buf.WriteString("...")
		tb.buf.Write(trimmed)
	}
	return len(p), nil
}

func (tb *tailBuffer) String() string {
	return tb.buf.String()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLockedBuffer returns a mutex-protected buffer, usable as collector output.
func NewLockedBuffer() *lockedBuffer {
	return &lockedBuffer{}
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.String()
}

func (lb *lockedBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Len()
}
