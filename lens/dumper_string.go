package lens

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

var (
	colorRegex        = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	keyValueRegex     = regexp.MustCompile(`^[A-Za-z_][\w.\-]*=[^\s&;=]*(?:[&;][A-Za-z_][\w.\-]*=[^\s&;=]*)*$`)
	keyValueSepRegex  = regexp.MustCompile(`[&;]`)
	callableNameRegex = regexp.MustCompile(`^[\w./\-]+\.(?:\(\*?\w+\)\.|\w+\.)?\w+$`)
)

var controlNames = [...]string{
	"NUL", "SOH", "STX", "ETX", "EOT", "ENQ", "ACK", "BEL", "BS", "HT", "LF", "VT", "FF", "CR", "SO", "SI",
	"DLE", "DC1", "DC2", "DC3", "DC4", "NAK", "SYN", "ETB", "CAN", "EM", "SUB", "ESC", "FS", "GS", "RS", "US",
}

var (
	cp437Controls = []rune("␀☺☻♥♦♣♠•◘○◙♂♀♪♫☼►◄↕‼¶§▬↨↑↓→←∟↔▲▼")
	cp437High     = []rune("ÇüéâäàåçêëèïîìÄÅÉæÆôöòûùÿÖÜ¢£¥₧ƒáíóúñÑªº¿⌐¬½¼¡«»░▒▓│┤╡╢╖╕╣║╗╝╜╛┐└┴┬├─┼╞╟╚╔╩╦╠═╬╧╨╤╥╙╘╒╓╫╪┘┌█▄▌▐▀αßΓπΣσµτΦΘΩδ∞φε∩≡±≥≤⌠⌡÷≈°∙·√ⁿ²■\u00a0")
)

func (rc *RenderContext) renderString(s String, depth int, key string) Fragment {
	if rc.cfg.isHidden(key) {
		return Fragment{Text: rc.Style(`"***"`, RoleHidden), Info: "hidden"}
	} else if !utf8.ValidString(s.S) {
		return rc.renderBinary([]byte(s.S))
	}
	if rc.cfg.Heuristics {
		if f, ok := rc.stringHeuristics(s, depth, key); ok {
			return f
		}
	}
	return rc.renderText(s.S, "")
}

// renderText quotes and escapes text, trimming it to the string budget. annotation is a heuristic result
// which replaces the length info unless the text was trimmed.
func (rc *RenderContext) renderText(text, annotation string) Fragment {
	byteLen, charLen := len(text), utf8.RuneCountInString(text)
	trimmed := charLen > rc.cfg.MaxStringLength
	if trimmed {
		text = truncateRunes(text, rc.cfg.MaxStringLength)
	}
	out := rc.quote(text)
	if trimmed {
		out += rc.Style("…", RoleInfo)
	}

	var info []string
	if annotation != "" {
		info = append(info, annotation)
	}
	if trimmed || (annotation == "" && (byteLen != charLen || byteLen > rc.cfg.StringInfoThreshold)) {
		info = append(info, lengthInfo(byteLen, charLen))
	}
	if trimmed {
		info = append(info, "trimmed")
	}
	return Fragment{Text: out, Info: strings.Join(info, ", ")}
}

func lengthInfo(byteLen, charLen int) string {
	if byteLen == charLen {
		return strconv.Itoa(byteLen) + " B"
	}
	return strconv.Itoa(byteLen) + " B, " + strconv.Itoa(charLen) + " ch"
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func (rc *RenderContext) stringHeuristics(s String, depth int, key string) (Fragment, bool) {
	text := s.S
	switch {
	case len(text) == 36 && text[8] == '-' && text[13] == '-' && text[18] == '-' && text[23] == '-':
		if u, err := uuid.Parse(text); err == nil {
			if info, ok := rc.uuidInfo(u); ok {
				return rc.renderText(text, info), true
			}
		}
	case colorRegex.MatchString(text):
		c, r, g, b := parseHexColor(text)
		f := rc.renderText(text, "color rgb("+strconv.Itoa(r)+", "+strconv.Itoa(g)+", "+strconv.Itoa(b)+")")
		if swatch := rc.d.styler.Swatch(c); swatch != "" {
			f.Text += " " + swatch
		}
		return f, true
	}
	if trimmedText := strings.TrimSpace(text); len(trimmedText) > 1 &&
		(trimmedText[0] == '{' || trimmedText[0] == '[') && gjson.Valid(text) {
		return rc.renderJSON(text, depth, key)
	}
	if len(text) <= rc.cfg.MaxStringLength {
		if f, ok := rc.renderPathList(text); ok {
			return f, true
		} else if keyValueRegex.MatchString(text) {
			return rc.renderKeyValues(text), true
		}
	}
	if len(text) < 256 && callableNameRegex.MatchString(text) {
		if file, line, ok := rc.d.locator.Locate(text, 0); ok {
			return rc.renderText(text, "func "+rc.d.trimmer.Trim(file)+":"+strconv.Itoa(line)), true
		}
	}
	return Fragment{}, false
}

// uuidInfo describes the version of u, and the embedded time for time based versions.
// Unknown versions are not reported.
func (rc *RenderContext) uuidInfo(u uuid.UUID) (string, bool) {
	version := u.Version()
	if version < 1 || version > 8 || u.Variant() != uuid.RFC4122 {
		return "", false
	}
	info := "uuid v" + strconv.Itoa(int(version))
	if version == 1 || version == 6 || version == 7 {
		sec, nsec := u.Time().UnixTime()
		info += " " + time.Unix(sec, nsec).In(rc.cfg.location()).Format("2006-01-02 15:04:05 MST")
	}
	return info, true
}

func parseHexColor(text string) (termenv.Color, int, int, int) {
	digits := text[1:]
	switch len(digits) {
	case 3:
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	case 8:
		digits = digits[:6]
	}
	rgb, _ := hex.DecodeString(digits)
	return termenv.RGBColor("#" + strings.ToLower(digits)), int(rgb[0]), int(rgb[1]), int(rgb[2])
}

func (rc *RenderContext) renderJSON(text string, depth int, key string) (Fragment, bool) {
	switch rc.cfg.JSONMode {
	case JSONInline:
		if len(text) > rc.cfg.MaxStringLength {
			break // over the string budget, rendered as trimmed text
		}
		f := rc.Render(jsonValue(gjson.Parse(text)), depth, key)
		f.Info = joinNonEmpty(", ", "json", f.Info)
		return f, true
	case JSONPretty:
		if len(text) <= rc.cfg.MaxStringLength {
			formatted := strings.TrimRight(string(pretty.PrettyOptions([]byte(text), &pretty.Options{
				Width:  80,
				Prefix: "",
				Indent: rc.cfg.Indent,
			})), "\n")
			lines := strings.Split(formatted, "\n")
			for i, line := range lines {
				lines[i] = rc.Style(line, RoleString)
			}
			return Fragment{Text: strings.Join(lines, "\n"), Info: "json"}, true
		}
	}
	return rc.renderText(text, "json"), true
}

// jsonValue converts a parsed JSON document, keeping object key order.
func jsonValue(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null{}
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			return Int{V: r.Int()}
		}
		return Float{V: r.Num, Bits: 64}
	case gjson.String:
		return String{S: r.Str}
	}
	if r.IsArray() {
		elems := r.Array()
		values := make([]Value, len(elems))
		for i, e := range elems {
			values[i] = jsonValue(e)
		}
		return NewList("json array", values...)
	}
	var items []SeqItem
	r.ForEach(func(k, v gjson.Result) bool {
		items = append(items, SeqItem{Key: String{S: k.String()}, Value: jsonValue(v)})
		return true
	})
	return NewMap("json object", items...)
}

// renderPathList splits strings like $PATH into their entries.
func (rc *RenderContext) renderPathList(text string) (Fragment, bool) {
	sep := string(os.PathListSeparator)
	if !strings.Contains(text, sep) {
		return Fragment{}, false
	}
	entries := strings.Split(text, sep)
	for _, e := range entries {
		if !looksLikePath(e) {
			return Fragment{}, false
		}
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = rc.Style(strconv.Quote(e), RolePath)
	}
	return Fragment{
		Text: strings.Join(parts, rc.Style(sep, RoleKeyword)),
		Info: strconv.Itoa(len(entries)) + " paths",
	}, true
}

func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, "\n\t") {
		return false
	}
	return filepath.IsAbs(s) || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "~/")
}

func (rc *RenderContext) renderKeyValues(text string) Fragment {
	pairs := keyValueSepRegex.Split(text, -1)
	seps := keyValueSepRegex.FindAllString(text, -1)
	var sb strings.Builder
	sb.WriteString(rc.Style(`"`, RoleString))
	for i, pair := range pairs {
		if i > 0 {
			sb.WriteString(rc.Style(seps[i-1], RoleKeyword))
		}
		k, v, _ := strings.Cut(pair, "=")
		sb.WriteString(rc.Style(k, RoleKey))
		sb.WriteString(rc.Style("=", RoleKeyword))
		sb.WriteString(rc.Style(v, RoleString))
	}
	sb.WriteString(rc.Style(`"`, RoleString))
	if len(pairs) == 1 {
		return Fragment{Text: sb.String(), Info: "key=value"}
	}
	return Fragment{Text: sb.String(), Info: strconv.Itoa(len(pairs)) + " key=value pairs"}
}

// quote renders text as a string literal in the configured escaping dialect.
func (rc *RenderContext) quote(text string) string {
	dialect := rc.cfg.Escaping
	open, closing := `"`, `"`
	switch dialect {
	case EscapeMySQL:
		open, closing = "'", "'"
	case EscapePostgreSQL:
		open, closing = "E'", "'"
	}
	delim := rune(closing[0])

	var sb, run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			sb.WriteString(rc.Style(run.String(), RoleString))
			run.Reset()
		}
	}
	for _, r := range text {
		if esc, ok := escapeRune(r, delim, dialect, rc.cfg.EscapeNonASCII); ok {
			flush()
			sb.WriteString(rc.Style(esc, RoleEscape))
		} else {
			run.WriteRune(r)
		}
	}
	flush()
	return rc.Style(open, RoleString) + sb.String() + rc.Style(closing, RoleString)
}

// escapeRune returns the escaped form of r, control characters and the delimiter are always escaped.
func escapeRune(r, delim rune, dialect EscapeDialect, nonASCII bool) (string, bool) {
	switch {
	case r == delim || r == '\\':
		if r == '\'' && dialect == EscapeMySQL {
			return "''", true
		}
		return `\` + string(r), true
	case r < 0x20 || r == 0x7f:
		return escapeControl(r, dialect), true
	case r >= 0x80 && r < 0xa0, r == utf8.RuneError, nonASCII && r >= 0x80:
		return escapeNonASCII(r, dialect), true
	}
	return "", false
}

func escapeControl(r rune, dialect EscapeDialect) string {
	switch dialect {
	case EscapeNamedControl:
		if r == 0x7f {
			return "<DEL>"
		}
		return "<" + controlNames[r] + ">"
	case EscapeSymbolic:
		if r == 0x7f {
			return "␡"
		}
		return string(0x2400 + r)
	case EscapeCP437:
		if r == 0x7f {
			return "⌂"
		}
		return string(cp437Controls[r])
	}

	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	switch dialect {
	case EscapeGo:
		switch r {
		case '\a':
			return `\a`
		case '\b':
			return `\b`
		case '\f':
			return `\f`
		case '\v':
			return `\v`
		}
	case EscapeJS:
		switch r {
		case 0:
			return `\0`
		case '\b':
			return `\b`
		case '\f':
			return `\f`
		case '\v':
			return `\v`
		}
	case EscapeJSON:
		switch r {
		case '\b':
			return `\b`
		case '\f':
			return `\f`
		}
		return `\u00` + hex.EncodeToString([]byte{byte(r)})
	case EscapeMySQL:
		switch r {
		case 0:
			return `\0`
		case '\b':
			return `\b`
		case 0x1a:
			return `\Z`
		}
	case EscapePostgreSQL:
		switch r {
		case '\b':
			return `\b`
		case '\f':
			return `\f`
		}
	}
	return `\x` + hex.EncodeToString([]byte{byte(r)})
}

func escapeNonASCII(r rune, dialect EscapeDialect) string {
	if r <= 0xffff {
		return `\u` + leftPadHex(uint64(r), 4)
	}
	switch dialect {
	case EscapeJSON:
		r1, r2 := utf16.EncodeRune(r)
		return `\u` + leftPadHex(uint64(r1), 4) + `\u` + leftPadHex(uint64(r2), 4)
	case EscapeJS:
		return `\u{` + strconv.FormatUint(uint64(r), 16) + `}`
	}
	return `\U` + leftPadHex(uint64(r), 8)
}

func leftPadHex(v uint64, width int) string {
	s := strconv.FormatUint(v, 16)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// renderBinary renders non UTF-8 content in chunks annotated with offset and hex bytes. Runs of identical
// chunks are collapsed.
func (rc *RenderContext) renderBinary(data []byte) Fragment {
	info := []string{strconv.Itoa(len(data)) + " B binary"}
	if rc.cfg.Heuristics && len(data) == 16 {
		if u, err := uuid.FromBytes(data); err == nil {
			if uInfo, ok := rc.uuidInfo(u); ok {
				info = append([]string{uInfo + " " + u.String()}, info...)
			}
		}
	}
	if len(data) > rc.cfg.MaxStringLength {
		data = data[:rc.cfg.MaxStringLength]
		info = append(info, "trimmed")
	}

	chunkLen := max(rc.cfg.BinaryChunkLength, 1)
	if len(data) <= chunkLen {
		return Fragment{Text: rc.binaryLiteral(data), Info: strings.Join(info, ", ")}
	}

	var sb strings.Builder
	sb.WriteString(rc.Style("[", RoleKeyword))
	var prev []byte
	repeats := 0
	flushRepeats := func() {
		if repeats > 0 {
			sb.WriteString("\n" + rc.cfg.Indent + rc.Style("... "+strconv.Itoa(repeats)+"×", RoleInfo))
			repeats = 0
		}
	}
	for offset := 0; offset < len(data); offset += chunkLen {
		chunk := data[offset:min(offset+chunkLen, len(data))]
		if prev != nil && bytes.Equal(chunk, prev) {
			repeats++
			continue
		}
		flushRepeats()
		prev = chunk
		sb.WriteString("\n" + rc.cfg.Indent + rc.binaryLiteral(chunk) + " " +
			rc.info(leftPadHex(uint64(offset), 4)+": "+hexBytes(chunk)))
	}
	flushRepeats()
	sb.WriteString("\n" + rc.Style("]", RoleKeyword))
	return Fragment{Text: sb.String(), Info: strings.Join(info, ", ")}
}

// binaryLiteral escapes bytes one by one, printable ASCII stays readable.
func (rc *RenderContext) binaryLiteral(data []byte) string {
	var sb, run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			sb.WriteString(rc.Style(run.String(), RoleBinary))
			run.Reset()
		}
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7f && b != '"' && b != '\\' {
			run.WriteByte(b)
			continue
		}
		flush()
		var esc string
		switch {
		case rc.cfg.Escaping == EscapeCP437 && b < 0x20:
			esc = string(cp437Controls[b])
		case rc.cfg.Escaping == EscapeCP437 && b >= 0x80:
			esc = string(cp437High[b-0x80])
		case b == '"' || b == '\\':
			esc = `\` + string(rune(b))
		default:
			esc = `\x` + hex.EncodeToString([]byte{b})
		}
		sb.WriteString(rc.Style(esc, RoleEscape))
	}
	flush()
	return rc.Style(`b"`, RoleBinary) + sb.String() + rc.Style(`"`, RoleBinary)
}

func hexBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}
