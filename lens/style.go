package lens

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// StyleRole names an abstract styling purpose, mapped to an escape sequence by a Palette.
type StyleRole uint8

const (
	RoleNone StyleRole = iota
	RoleNull
	RoleBool
	RoleNumber
	RoleString
	RoleEscape
	RoleKey
	RoleType
	RoleKeyword
	RoleInfo
	RoleError
	RoleRecursion
	RolePath
	RoleTime
	RoleFunction
	RoleHidden
	RoleBinary
	RoleHeader
	RoleBorder
	RoleTrace
	RoleOrigin
)

var roleNames = [...]string{
	RoleNone:      "none",
	RoleNull:      "null",
	RoleBool:      "bool",
	RoleNumber:    "number",
	RoleString:    "string",
	RoleEscape:    "escape",
	RoleKey:       "key",
	RoleType:      "type",
	RoleKeyword:   "keyword",
	RoleInfo:      "info",
	RoleError:     "error",
	RoleRecursion: "recursion",
	RolePath:      "path",
	RoleTime:      "time",
	RoleFunction:  "function",
	RoleHidden:    "hidden",
	RoleBinary:    "binary",
	RoleHeader:    "header",
	RoleBorder:    "border",
	RoleTrace:     "trace",
	RoleOrigin:    "origin",
}

func (r StyleRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// AllStyleRoles lists every defined role, used when iterating a palette.
func AllStyleRoles() []StyleRole {
	roles := make([]StyleRole, 0, len(roleNames))
	for i := range roleNames {
		roles = append(roles, StyleRole(i))
	}
	return roles
}

// Palette maps roles to full SGR sequences. Roles missing from the palette are rendered unstyled.
type Palette map[StyleRole]string

var ansiResetSequence = termenv.CSI + termenv.ResetSeq + "m"

func colorSequence(color termenv.Color) string {
	return termenv.CSI + color.Sequence(false) + "m"
}

// DarkPalette is the default palette, tuned for dark terminal backgrounds.
var DarkPalette = Palette{
	RoleNull:      colorSequence(termenv.ANSIBlue),
	RoleBool:      colorSequence(termenv.ANSIBlue),
	RoleNumber:    colorSequence(termenv.ANSIBrightGreen),
	RoleString:    colorSequence(termenv.ANSI256Color(209)),
	RoleEscape:    colorSequence(termenv.ANSIBrightMagenta),
	RoleKey:       colorSequence(termenv.ANSIBrightCyan),
	RoleType:      colorSequence(termenv.ANSIBrightYellow),
	RoleKeyword:   colorSequence(termenv.ANSIBrightMagenta),
	RoleInfo:      colorSequence(termenv.ANSIBrightBlack),
	RoleError:     colorSequence(termenv.ANSIRed),
	RoleRecursion: colorSequence(termenv.ANSIBrightRed),
	RolePath:      colorSequence(termenv.ANSI256Color(209)),
	RoleTime:      colorSequence(termenv.ANSIBrightBlue),
	RoleFunction:  colorSequence(termenv.ANSIBrightGreen),
	RoleHidden:    colorSequence(termenv.ANSIBrightBlack),
	RoleBinary:    colorSequence(termenv.ANSIYellow),
	RoleHeader:    colorSequence(termenv.ANSIBrightWhite),
	RoleBorder:    colorSequence(termenv.ANSIBrightBlack),
	RoleTrace:     colorSequence(termenv.ANSIBrightBlack),
	RoleOrigin:    colorSequence(termenv.ANSICyan),
}

// LightPalette is tuned for light terminal backgrounds.
var LightPalette = Palette{
	RoleNull:      colorSequence(termenv.ANSI256Color(21)),
	RoleBool:      colorSequence(termenv.ANSI256Color(21)),
	RoleNumber:    colorSequence(termenv.ANSI256Color(28)),
	RoleString:    colorSequence(termenv.ANSI256Color(88)),
	RoleEscape:    colorSequence(termenv.ANSI256Color(90)),
	RoleKey:       colorSequence(termenv.ANSI256Color(27)),
	RoleType:      colorSequence(termenv.ANSI256Color(94)),
	RoleKeyword:   colorSequence(termenv.ANSI256Color(90)),
	RoleInfo:      colorSequence(termenv.ANSI256Color(244)),
	RoleError:     colorSequence(termenv.ANSI256Color(160)),
	RoleRecursion: colorSequence(termenv.ANSI256Color(160)),
	RolePath:      colorSequence(termenv.ANSI256Color(88)),
	RoleTime:      colorSequence(termenv.ANSI256Color(26)),
	RoleFunction:  colorSequence(termenv.ANSI256Color(28)),
	RoleHidden:    colorSequence(termenv.ANSI256Color(244)),
	RoleBinary:    colorSequence(termenv.ANSI256Color(130)),
	RoleHeader:    colorSequence(termenv.ANSIBlack),
	RoleBorder:    colorSequence(termenv.ANSI256Color(244)),
	RoleTrace:     colorSequence(termenv.ANSI256Color(244)),
	RoleOrigin:    colorSequence(termenv.ANSI256Color(30)),
}

// stylesEnabled is the process wide on/off switch.
var stylesEnabled atomic.Bool

func init() {
	stylesEnabled.Store(true)
}

// SetStylesEnabled toggles escape sequence output for every Styler in the process.
func SetStylesEnabled(on bool) {
	stylesEnabled.Store(on)
}

// StylesEnabled reports the process wide styling switch.
func StylesEnabled() bool {
	return stylesEnabled.Load()
}

// Styler applies a Palette to text. A nil *Styler renders everything unstyled.
type Styler struct {
	palette Palette
	plain   bool
}

// NewStyler returns a styler for the palette; a nil palette selects DarkPalette.
func NewStyler(p Palette) *Styler {
	if p == nil {
		p = DarkPalette
	}
	return &Styler{palette: p}
}

// PlainStyler never emits escape sequences regardless of the global switch.
func PlainStyler() *Styler {
	return &Styler{plain: true}
}

// Style wraps text in the role's escape sequence. Unknown roles and disabled styling return text unchanged.
func (s *Styler) Style(text string, role StyleRole) string {
	if s == nil || s.plain || text == "" || !stylesEnabled.Load() {
		return text
	}
	seq, ok := s.palette[role]
	if !ok || seq == "" {
		return text
	}
	return seq + text + ansiResetSequence
}

var ansiEscapeRegex = regexp.MustCompile("[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

// StripStyles removes all ANSI escape sequences.
func StripStyles(text string) string {
	if !strings.ContainsAny(text, "\u001B\u009B") {
		return text
	}
	return ansiEscapeRegex.ReplaceAllString(text, "")
}

// VisibleWidth returns the terminal column width of text, ignoring escape sequences.
func VisibleWidth(text string) int {
	return runewidth.StringWidth(StripStyles(text))
}

// Align selects where padding is placed by PadVisible.
type Align uint8

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

// PadVisible pads text with fill until its visible width reaches width. Text already wider is returned unchanged.
func PadVisible(text string, width int, fill rune, align Align) string {
	missing := width - VisibleWidth(text)
	if missing <= 0 {
		return text
	}
	fillWidth := runewidth.RuneWidth(fill)
	if fillWidth < 1 {
		fill, fillWidth = ' ', 1
	}
	count := missing / fillWidth
	switch align {
	case AlignRight:
		return strings.Repeat(string(fill), count) + text
	case AlignCenter:
		left := count / 2
		return strings.Repeat(string(fill), left) + text + strings.Repeat(string(fill), count-left)
	default:
		return text + strings.Repeat(string(fill), count)
	}
}

// Swatch renders a two column block in the given background color, or nothing when styling is off.
func (s *Styler) Swatch(c termenv.Color) string {
	if s == nil || s.plain || c == nil || !stylesEnabled.Load() {
		return ""
	}
	return termenv.CSI + c.Sequence(true) + "m  " + ansiResetSequence
}
