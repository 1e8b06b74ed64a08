package lens

import (
	"encoding/hex"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const defaultTableWidth = 120

type columnType uint8

const (
	columnText columnType = iota
	columnNumber
	columnBinary16
	columnDate
	columnTime
	columnDatetime
)

// fixedWidth is the width a temporal column needs to show a value on one line, zero for other types.
func (t columnType) fixedWidth() int {
	switch t {
	case columnDate:
		return 10
	case columnTime:
		return 8
	case columnDatetime:
		return 19
	}
	return 0
}

func (t columnType) temporal() bool {
	return t.fixedWidth() > 0
}

var (
	datetimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}$`)
	dateRegex     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex     = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
)

type tableColumn struct {
	name        string
	typ         columnType
	headerWidth int
	maxWidth    int
	// maxWord is the widest space free run, the narrowest width that wraps without breaking words.
	maxWord  int
	flexible bool
}

type tableCell struct {
	text string
	role StyleRole
}

// RenderTable lays out rows, a slice of structs or maps, as a bordered grid using the configured width.
func (d *Dumper) RenderTable(rows any) (string, error) {
	return d.RenderTableWidth(rows, d.cfg.Width)
}

// RenderTableWidth is RenderTable for an explicit width, zero detects the terminal width. Row sets which
// cannot fit are rendered as a regular dump instead.
func (d *Dumper) RenderTableWidth(rows any, width int) (string, error) {
	if width <= 0 {
		width = terminalWidth()
	}
	rc := d.newContext(d.cfg)
	return rc.guard(func() string {
		v := ValueOf(rows)
		if out, ok := rc.renderTable(v, width); ok {
			return out
		}
		return rc.joinInfo(rc.Render(v, 0, ""), "")
	})
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultTableWidth
}

func (rc *RenderContext) renderTable(v Value, width int) (string, bool) {
	seq, ok := v.(*Sequence)
	if !ok || seq.Len == 0 {
		return "", false
	}
	names, records := tableRecords(seq)
	if len(names) == 0 {
		return "", false
	}

	cols := make([]tableColumn, len(names))
	cells := make([][]tableCell, len(records))
	for i, name := range names {
		values := make([]Value, len(records))
		for r, rec := range records {
			values[r] = rec[name]
		}
		cols[i] = tableColumn{name: name, typ: classifyColumn(values), headerWidth: runewidth.StringWidth(name)}
	}
	for r, rec := range records {
		cells[r] = make([]tableCell, len(names))
		for i, name := range names {
			cell := rc.cellText(rec[name], cols[i].typ, name)
			cells[r][i] = cell
			measureCell(&cols[i], cell.text)
		}
	}

	widths, ok := layoutColumns(cols, width, rc.cfg)
	if !ok {
		return "", false
	}
	return rc.drawTable(cols, cells, widths), true
}

// tableRecords extracts the column names, in first seen order, and the named values of each row.
func tableRecords(seq *Sequence) ([]string, []map[string]Value) {
	var names []string
	seen := make(map[string]bool)
	addName := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	records := make([]map[string]Value, 0, seq.Len)
	for _, item := range seq.Items() {
		rec := make(map[string]Value)
		switch row := item.Value.(type) {
		case *Composite:
			for _, f := range row.Fields() {
				addName(f.Name)
				rec[f.Name] = f.Value
			}
		case *Sequence:
			for i, e := range row.Items() {
				name := keyString(e.Key)
				if row.List {
					name = strconv.Itoa(i)
				}
				addName(name)
				rec[name] = e.Value
			}
		default:
			addName("value")
			rec["value"] = row
		}
		records = append(records, rec)
	}
	return names, records
}

func classifyColumn(values []Value) columnType {
	typ, set := columnText, false
	for _, v := range values {
		var t columnType
		switch tv := v.(type) {
		case nil, Null:
			continue
		case Int, Float:
			t = columnNumber
		case String:
			switch {
			case !utf8.ValidString(tv.S) && len(tv.S) == 16:
				t = columnBinary16
			case datetimeRegex.MatchString(tv.S):
				t = columnDatetime
			case dateRegex.MatchString(tv.S):
				t = columnDate
			case timeRegex.MatchString(tv.S):
				t = columnTime
			default:
				return columnText
			}
		case *Composite:
			if tv.Type != "time.Time" {
				return columnText
			}
			t = columnDatetime
		default:
			return columnText
		}
		if set && t != typ {
			return columnText
		}
		typ, set = t, true
	}
	return typ
}

// cellText renders a single line plain text for a cell, plus the role to style it with.
func (rc *RenderContext) cellText(v Value, typ columnType, name string) tableCell {
	switch tv := v.(type) {
	case nil, Null:
		return tableCell{text: "nil", role: RoleNull}
	case String:
		if rc.cfg.isHidden(name) {
			return tableCell{text: "***", role: RoleHidden}
		} else if !utf8.ValidString(tv.S) {
			if typ == columnBinary16 {
				if u, err := uuid.FromBytes([]byte(tv.S)); err == nil {
					return tableCell{text: u.String(), role: RoleBinary}
				}
			}
			return tableCell{text: hex.EncodeToString([]byte(tv.S)), role: RoleBinary}
		}
		role := RoleString
		if typ.temporal() {
			role = RoleTime
		}
		return tableCell{text: singleLine(tv.S), role: role}
	case *Composite:
		if t, ok := compositeAs[*time.Time](tv); ok {
			return tableCell{text: t.In(rc.cfg.location()).Format(time.DateTime), role: RoleTime}
		}
	}
	f := rc.WithBudget(Budget{
		MaxDepth:             1,
		MaxStringLength:      rc.cfg.MaxStringLength,
		MaxArrayInlineLength: rc.cfg.MaxArrayInlineLength,
		MaxArrayInlineItems:  rc.cfg.MaxArrayInlineItems,
	}).Render(v, 0, name)
	role := RoleNone
	switch v.(type) {
	case Int, Float:
		role = RoleNumber
	case Bool:
		role = RoleBool
	}
	return tableCell{text: singleLine(StripStyles(f.Text)), role: role}
}

// singleLine replaces control characters with their symbolic pictures and collapses indentation.
func singleLine(s string) string {
	if strings.Contains(s, "\n") {
		s = strings.Join(strings.Fields(s), " ")
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return 0x2400 + r
		} else if r == 0x7f {
			return '␡'
		}
		return r
	}, s)
}

func measureCell(c *tableColumn, text string) {
	c.maxWidth = max(c.maxWidth, runewidth.StringWidth(text))
	for _, word := range strings.Fields(text) {
		c.maxWord = max(c.maxWord, runewidth.StringWidth(word))
	}
}

// layoutColumns computes the content width of each column for a table at most width columns wide.
// It returns false when no layout with every column at least one wide exists.
func layoutColumns(cols []tableColumn, width int, cfg *FormatterConfig) ([]int, bool) {
	n := len(cols)
	avail := width - (3*n + 1) // "| " + " | " separators + " |"
	if n == 0 || avail < n {
		return nil, false
	}
	fair := float64(avail) / float64(n)
	widths := make([]int, n)
	needs := make([]int, n)
	remaining := avail
	var flex []int
	for i := range cols {
		needs[i] = max(cols[i].maxWidth, cols[i].headerWidth, 1)
		cols[i].flexible = float64(cols[i].maxWidth) > cfg.FlexibleColumnRatio*fair
		if cols[i].flexible {
			flex = append(flex, i)
			continue
		}
		widths[i] = needs[i]
		remaining -= widths[i]
	}

	if len(flex) > 0 && remaining > 0 {
		widthCap := max(cfg.ColumnWidthCap*width, 1)
		var capTotal int
		for _, i := range flex {
			capTotal += min(needs[i], widthCap)
		}
		given := 0
		for _, i := range flex {
			widths[i] = min(remaining*min(needs[i], widthCap)/capTotal, needs[i])
			given += widths[i]
		}
		// hand out the rounding remainder
		for leftover := remaining - given; leftover > 0; {
			progress := false
			for _, i := range flex {
				if leftover > 0 && widths[i] < needs[i] {
					widths[i]++
					leftover--
					progress = true
				}
			}
			if !progress {
				break
			}
		}
	}

	shrinkToFit(cols, widths, avail)
	nudgeTemporal(cols, widths)
	for i := range widths {
		if widths[i] < 1 {
			donor := widestColumn(cols, widths, false)
			if donor < 0 || widths[donor] <= 1 {
				return nil, false
			}
			widths[donor]--
			widths[i]++
		}
	}
	shrinkToFit(cols, widths, avail)
	for _, w := range widths {
		if w < 1 {
			return nil, false
		}
	}
	return widths, true
}

// shrinkToFit trims columns until the total fits. Columns still wider than their longest word are trimmed
// first so they keep wrapping at spaces, then the currently widest.
func shrinkToFit(cols []tableColumn, widths []int, avail int) {
	total := 0
	for _, w := range widths {
		total += w
	}
	for total > avail {
		i := wrappableColumn(cols, widths)
		if i < 0 {
			i = widestColumn(cols, widths, true)
		}
		if i < 0 || widths[i] <= 1 {
			return
		}
		widths[i]--
		total--
	}
}

// wrappableColumn returns the widest non temporal column that can lose a cell without breaking a word,
// or -1.
func wrappableColumn(cols []tableColumn, widths []int) int {
	best := -1
	for i, w := range widths {
		if cols[i].typ.temporal() || w <= max(cols[i].maxWord, 1) {
			continue
		} else if best < 0 || w > widths[best] {
			best = i
		}
	}
	return best
}

// widestColumn returns the widest column, preferring non temporal ones when preferNonTemporal is set.
func widestColumn(cols []tableColumn, widths []int, preferNonTemporal bool) int {
	best := -1
	for i, w := range widths {
		if preferNonTemporal && cols[i].typ.temporal() {
			continue
		} else if best < 0 || w > widths[best] {
			best = i
		}
	}
	if best < 0 && preferNonTemporal {
		return widestColumn(cols, widths, false)
	}
	return best
}

// nudgeTemporal widens date and time columns which are one or two short of fitting their values on one
// line, taking the space from the widest non temporal column. Datetime columns too narrow for the full
// value are nudged to date width so they wrap between date and time.
func nudgeTemporal(cols []tableColumn, widths []int) {
	for i, c := range cols {
		target := c.typ.fixedWidth()
		if target == 0 || widths[i] >= target || c.maxWidth < target {
			continue
		}
		if target-widths[i] > 2 && c.typ == columnDatetime {
			target = columnDate.fixedWidth()
		}
		deficit := target - widths[i]
		if deficit <= 0 || deficit > 2 {
			continue
		}
		donor := -1
		for j := range cols {
			if j != i && !cols[j].typ.temporal() && widths[j]-deficit >= 1 && (donor < 0 || widths[j] > widths[donor]) {
				donor = j
			}
		}
		if donor >= 0 {
			widths[donor] -= deficit
			widths[i] += deficit
		}
	}
}

// wrapCell breaks text into lines of at most width columns, at the last space unless that leaves the line
// less than fill full, in which case the word is broken.
func wrapCell(text string, width int, fill float64) []string {
	if width < 1 {
		return []string{text}
	}
	var lines []string
	rest := []rune(text)
	for runewidth.StringWidth(string(rest)) > width {
		w, cut := 0, 0
		for cut < len(rest) {
			rw := runewidth.RuneWidth(rest[cut])
			if w+rw > width {
				break
			}
			w += rw
			cut++
		}
		if cut == 0 {
			cut = 1
		}
		space := -1
		for j := min(cut, len(rest)-1); j > 0; j-- {
			if rest[j] == ' ' {
				space = j
				break
			}
		}
		if space > 0 && float64(runewidth.StringWidth(string(rest[:space]))) >= fill*float64(width) {
			lines = append(lines, string(rest[:space]))
			rest = rest[space+1:]
		} else {
			lines = append(lines, string(rest[:cut]))
			rest = rest[cut:]
		}
	}
	return append(lines, string(rest))
}

func (rc *RenderContext) drawTable(cols []tableColumn, cells [][]tableCell, widths []int) string {
	var sb strings.Builder
	pipe := rc.Style("|", RoleBorder)

	divider := make([]string, len(widths))
	for i, w := range widths {
		divider[i] = strings.Repeat("-", w+2)
	}
	dividerLine := rc.Style("+"+strings.Join(divider, "+")+"+", RoleBorder)

	headers := make([]tableCell, len(cols))
	for i, c := range cols {
		headers[i] = tableCell{text: c.name, role: RoleHeader}
	}
	rc.drawRow(&sb, pipe, cols, headers, widths, true)
	sb.WriteString(dividerLine)
	sb.WriteByte('\n')
	for _, row := range cells {
		rc.drawRow(&sb, pipe, cols, row, widths, false)
	}
	sb.WriteString(dividerLine)
	return sb.String()
}

// drawRow writes one record, continuing wrapped cells on extra lines where the other columns are blank.
func (rc *RenderContext) drawRow(sb *strings.Builder, pipe string, cols []tableColumn, row []tableCell,
	widths []int, header bool) {
	wrapped := make([][]string, len(row))
	height := 1
	for i, cell := range row {
		wrapped[i] = wrapCell(cell.text, widths[i], rc.cfg.WrapFillRatio)
		height = max(height, len(wrapped[i]))
	}
	for line := 0; line < height; line++ {
		sb.WriteString(pipe)
		for i, cell := range row {
			var text string
			if line < len(wrapped[i]) {
				text = wrapped[i][line]
			}
			align := AlignLeft
			if !header && cols[i].typ == columnNumber {
				align = AlignRight
			}
			sb.WriteByte(' ')
			sb.WriteString(PadVisible(rc.Style(text, cell.role), widths[i], ' ', align))
			sb.WriteByte(' ')
			sb.WriteString(pipe)
		}
		sb.WriteByte('\n')
	}
}
