package lens

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestStyleRoundTrip(t *testing.T) {
	t.Parallel()

	texts := []string{"plain", "with space", "日本語", "tab\there", "[brackets]"}
	for _, p := range []Palette{DarkPalette, LightPalette} {
		s := NewStyler(p)
		for _, role := range AllStyleRoles() {
			for _, text := range texts {
				styled := s.Style(text, role)
				assert.Equal(t, text, StripStyles(styled), "role %s", role)
				assert.Equal(t, VisibleWidth(text), VisibleWidth(styled))
			}
		}
	}
}

func TestStyle(t *testing.T) {
	t.Parallel()

	t.Run("palette_sequence", func(t *testing.T) {
		styled := NewStyler(nil).Style("42", RoleNumber)
		assert.True(t, strings.HasPrefix(styled, DarkPalette[RoleNumber]))
		assert.True(t, strings.HasSuffix(styled, ansiResetSequence))
	})
	t.Run("unstyled_role", func(t *testing.T) {
		assert.Equal(t, "x", NewStyler(nil).Style("x", RoleNone))
	})
	t.Run("empty_text", func(t *testing.T) {
		assert.Empty(t, NewStyler(nil).Style("", RoleNumber))
	})
	t.Run("plain", func(t *testing.T) {
		assert.Equal(t, "x", PlainStyler().Style("x", RoleNumber))
		assert.Empty(t, PlainStyler().Swatch(termenv.ANSIRed))
	})
	t.Run("nil_styler", func(t *testing.T) {
		var s *Styler
		assert.Equal(t, "x", s.Style("x", RoleError))
	})
	t.Run("role_names", func(t *testing.T) {
		assert.Equal(t, "number", RoleNumber.String())
		assert.Equal(t, "unknown", StyleRole(200).String())
		assert.Len(t, AllStyleRoles(), int(RoleOrigin)+1)
	})
}

func TestVisibleWidth(t *testing.T) {
	t.Parallel()

	s := NewStyler(nil)
	tests := []struct {
		name  string
		text  string
		width int
	}{
		{"ascii", "hello", 5},
		{"styled", s.Style("hello", RoleString), 5},
		{"wide", "日本", 4},
		{"empty", "", 0},
		{"mixed", s.Style("a", RoleKey) + "日" + s.Style("b", RoleInfo), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.width, VisibleWidth(tt.text))
		})
	}
}

func TestPadVisible(t *testing.T) {
	t.Parallel()

	styled := NewStyler(nil).Style("ab", RoleNumber)
	tests := []struct {
		name   string
		text   string
		width  int
		fill   rune
		align  Align
		expect string
	}{
		{"left", "ab", 5, ' ', AlignLeft, "ab   "},
		{"right", "ab", 5, '.', AlignRight, "...ab"},
		{"center", "ab", 6, '-', AlignCenter, "--ab--"},
		{"center_odd", "ab", 5, '-', AlignCenter, "-ab--"},
		{"already_wide", "abcdef", 3, ' ', AlignLeft, "abcdef"},
		{"styled_text", styled, 4, ' ', AlignRight, "  " + styled},
		{"wide_fill", "ab", 6, '日', AlignLeft, "ab日日"},
		{"zero_width_fill", "ab", 4, '\u0301', AlignLeft, "ab  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, PadVisible(tt.text, tt.width, tt.fill, tt.align))
		})
	}
}
