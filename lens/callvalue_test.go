package lens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCallValue(t *testing.T) {
	t.Parallel()

	d := plainDumper(DefaultFormatterConfig())
	tests := []struct {
		name   string
		fn     string
		params []any
		ret    any
		expect string
	}{
		{"no_return", "Close", nil, nil, "Close()"},
		{"int_return", "Read", []any{512}, 100, "Read(512): 100"},
		{"return_info", "Write", []any{"ab", 2}, 1024, `Write("ab", 2): 1024 // 2^10`},
		{"nested_arg", "Put", []any{[]point{{X: 1}}}, true, `Put([lens.point { ... }]): true`},
		{"long_arg", "Log", []any{strings.Repeat("x", 40)}, nil, `Log("` + strings.Repeat("x", argumentStringLength) + `"…)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := d.RenderCallValue(tt.fn, tt.params, tt.ret)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, out)
		})
	}
}

func TestDiffDumps(t *testing.T) {
	t.Parallel()

	d := plainDumper(DefaultFormatterConfig())

	t.Run("equal", func(t *testing.T) {
		diff, err := d.DiffDumps(&node{Name: "a"}, &node{Name: "a"})
		require.NoError(t, err)
		assert.Empty(t, diff)
	})
	t.Run("changed_field", func(t *testing.T) {
		diff, err := d.DiffDumps(point{X: 1, Y: 2}, point{X: 1, Y: 3})
		require.NoError(t, err)
		assert.Contains(t, diff, "--- a\n+++ b\n")
		assert.Contains(t, diff, "\n-    Y: 2,\n")
		assert.Contains(t, diff, "\n+    Y: 3,\n")
		assert.Contains(t, diff, "\n     X: 1,\n")
	})
	t.Run("styled_dumper", func(t *testing.T) {
		styled := NewDumper(DefaultFormatterConfig(), WithStyler(NewStyler(nil)))
		diff, err := styled.DiffDumps([]int{1}, []int{2})
		require.NoError(t, err)
		assert.Equal(t, StripStyles(diff), diff)
		assert.Contains(t, diff, "-[1] // 1 item\n")
	})
}
