package lens

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	data       []byte
	writeCount int
	err        error
}

func (m *mockWriter) Write(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	} else if m.writeCount > 0 && len(p) > m.writeCount {
		p = p[:m.writeCount]
	}
	m.data = append(m.data, p...)
	return len(p), nil
}

type mockCloser struct {
	mockWriter
	closed bool
	err    error
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.err
}

func TestTeeWriterWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		primary io.Writer
		owned   []io.WriteCloser
		wantN   int
		wantErr bool
	}{
		{
			name:    "primary_only",
			primary: &mockWriter{},
			wantN:   4,
		},
		{
			name:    "all_success",
			primary: &mockWriter{},
			owned:   []io.WriteCloser{&mockCloser{}, nil},
			wantN:   4,
		},
		{
			name:    "nil_primary",
			primary: nil,
			owned:   []io.WriteCloser{&mockCloser{}},
			wantN:   4,
		},
		{
			name:    "different_counts",
			primary: &mockWriter{},
			owned:   []io.WriteCloser{&mockCloser{mockWriter: mockWriter{writeCount: 3}}},
			wantErr: true,
		},
		{
			name:    "primary_error",
			primary: &mockWriter{err: errors.New("error1")},
			owned:   []io.WriteCloser{&mockCloser{}},
			wantErr: true,
		},
		{
			name:    "owned_error",
			primary: &mockWriter{},
			owned:   []io.WriteCloser{&mockCloser{mockWriter: mockWriter{err: errors.New("error2")}}},
			wantN:   4,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := TeeWriter(tt.primary, tt.owned...).Write([]byte("test"))
			assert.Equal(t, tt.wantN, n)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if mw, ok := tt.primary.(*mockWriter); ok {
				assert.Equal(t, "test", string(mw.data))
			}
			for _, o := range tt.owned {
				if mc, ok := o.(*mockCloser); ok {
					assert.Equal(t, "test", string(mc.data))
				}
			}
		})
	}
}

func TestTeeWriterClose(t *testing.T) {
	t.Parallel()

	t.Run("primary_left_open", func(t *testing.T) {
		primary := &mockCloser{}
		owned := &mockCloser{}
		require.NoError(t, TeeWriter(primary, owned).Close())
		assert.False(t, primary.closed)
		assert.True(t, owned.closed)
	})
	t.Run("errors_joined", func(t *testing.T) {
		err1 := errors.New("error1")
		err2 := errors.New("error2")
		mc1 := &mockCloser{err: err1}
		mc2 := &mockCloser{err: err2}
		err := TeeWriter(io.Discard, mc1, mc2).Close()
		require.ErrorIs(t, err, err1)
		require.ErrorIs(t, err, err2)
		assert.True(t, mc1.closed)
		assert.True(t, mc2.closed)
	})
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	type step struct {
		data            string
		expectedContent string
	}

	tests := []struct {
		name      string
		sizeLimit int
		steps     []step
	}{
		{
			name:      "single_write_no_truncate",
			sizeLimit: 10,
			steps:     []step{{data: "hello", expectedContent: "hello"}},
		},
		{
			name:      "multiple_writes_with_truncations",
			sizeLimit: 8,
			steps: []step{
				{data: "12345", expectedContent: "12345"},
				{data: "67890", expectedContent: "...7890"},
				{data: "abc", expectedContent: "...0abc"},
				{data: "def", expectedContent: "...cdef"},
			},
		},
		{
			name:      "oversized_write",
			sizeLimit: 4,
			steps:     []step{{data: "abcdefgh", expectedContent: "...gh"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTailBuffer(tt.sizeLimit)
			for _, step := range tt.steps {
				n, err := tb.Write([]byte(step.data))
				require.NoError(t, err)
				assert.Equal(t, len(step.data), n)
				assert.Equal(t, step.expectedContent, tb.String())
			}
		})
	}
}

func TestLockedBufferConcurrentWrite(t *testing.T) {
	t.Parallel()

	lb := NewLockedBuffer()
	var wg sync.WaitGroup
	const workers = 10
	const loops = 100
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < loops; j++ {
				_, _ = lb.Write([]byte("a"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*loops, lb.Len())
	assert.Equal(t, bytes.Repeat([]byte("a"), workers*loops), []byte(lb.String()))
}
