package lens

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const identityHashWidth = 6

// identityHash is a short fingerprint of an instance identity, never of its content.
func identityHash(id uintptr) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return "#" + leftPadHex(xxhash.Sum64(buf[:]), 16)[:identityHashWidth]
}

func itemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return strconv.Itoa(n) + " items"
}

// indentLines indents every line after the first, the first line continues the parent line.
func indentLines(text, indent string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	return strings.ReplaceAll(text, "\n", "\n"+indent)
}

func (rc *RenderContext) renderSequence(s *Sequence, depth int, key string) Fragment {
	if s.Len == 0 {
		return Fragment{Text: rc.Style("[]", RoleKeyword)}
	}
	vk := visitKey{id: s.Identity(), typeName: s.Type}
	if _, ok := rc.visited[vk]; ok {
		return Fragment{Text: rc.Style("[ RECURSION ]", RoleRecursion)}
	} else if depth >= rc.cfg.MaxDepth {
		return Fragment{Text: rc.Style("[ ... ]", RoleKeyword), Info: itemCount(s.Len)}
	}
	rc.visited[vk] = struct{}{}
	defer delete(rc.visited, vk)

	items := s.Items()
	parts := make([]Fragment, len(items))
	for i, item := range items {
		childKey := key
		if !s.List {
			childKey = keyString(item.Key)
		}
		f := rc.Render(item.Value, depth+1, childKey)
		if !s.List {
			f.Text = rc.renderKey(item.Key, depth+1) + rc.Style(":", RoleKeyword) + " " + f.Text
		}
		parts[i] = f
	}

	info := itemCount(s.Len)
	if len(items) < s.Len {
		info = strconv.Itoa(len(items)) + " of " + info + ", trimmed"
	}
	return rc.layoutItems("[", "]", parts, s.List, info)
}

// layoutItems picks between the single line form, the single line form with the item comments moved into
// one trailing comment, and one item per line.
func (rc *RenderContext) layoutItems(open, closing string, parts []Fragment, list bool, info string) Fragment {
	sep := rc.Style(",", RoleKeyword) + " "
	width, multiline, withInfo := 0, false, 0
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
		width += VisibleWidth(p.Text) + 2
		if strings.Contains(p.Text, "\n") {
			multiline = true
		}
		if p.Info != "" {
			withInfo++
		}
	}

	if !multiline && width < rc.cfg.MaxArrayInlineLength {
		inline := rc.Style(open, RoleKeyword) + strings.Join(texts, sep) + rc.Style(closing, RoleKeyword)
		if list && withInfo == 0 {
			return Fragment{Text: inline, Info: info}
		} else if len(parts) < rc.cfg.MaxArrayInlineItems {
			if withInfo > 0 {
				moved := make([]string, 0, withInfo)
				for _, p := range parts {
					if p.Info != "" {
						moved = append(moved, p.Info)
					}
				}
				info += " (" + strings.Join(moved, "; ") + ")"
			}
			return Fragment{Text: inline, Info: info}
		}
	}

	var sb strings.Builder
	sb.WriteString(rc.Style(open, RoleKeyword))
	for _, p := range parts {
		sb.WriteString("\n")
		sb.WriteString(rc.cfg.Indent)
		sb.WriteString(indentLines(rc.joinInfo(p, rc.Style(",", RoleKeyword)), rc.cfg.Indent))
	}
	sb.WriteString("\n")
	sb.WriteString(rc.Style(closing, RoleKeyword))
	return Fragment{Text: sb.String(), Info: info}
}

// keyString is the context key passed to heuristics for a map entry.
func keyString(k Value) string {
	switch tk := k.(type) {
	case String:
		return tk.S
	case Int:
		if tk.Unsigned {
			return strconv.FormatUint(tk.U, 10)
		}
		return strconv.FormatInt(tk.V, 10)
	}
	return ""
}

func (rc *RenderContext) renderKey(k Value, depth int) string {
	if s, ok := k.(String); ok && utf8ValidIdentifier(s.S) {
		return rc.Style(strconv.Quote(s.S), RoleKey)
	}
	return rc.Render(k, depth, "").Text
}

func utf8ValidIdentifier(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f || r == '\\' || r == '"' {
			return false
		}
	}
	return true
}

func (rc *RenderContext) typeLabel(name string) string {
	return rc.Style(name, RoleType)
}

func (rc *RenderContext) renderComposite(c *Composite, depth int) Fragment {
	hash := identityHash(c.Identity())
	vk := visitKey{id: c.Identity(), typeName: c.Type}
	if _, ok := rc.visited[vk]; ok {
		return Fragment{Text: rc.typeLabel(c.Type) + " " + rc.Style("{ RECURSION }", RoleRecursion), Info: hash}
	}
	desc := Describe(c)
	if depth >= rc.cfg.MaxDepth {
		if fn, ok := rc.d.formatters.Short.ResolveWithDefault(desc); ok {
			if f := fn(rc, c, depth); !f.IsZero() {
				return f
			}
		}
		return depthLimitedComposite(rc, c, depth)
	}
	rc.visited[vk] = struct{}{}
	defer delete(rc.visited, vk)

	if fn, ok := rc.d.formatters.Handlers.Resolve(desc); ok {
		if f := fn(rc, c, depth); !f.IsZero() {
			return f
		}
	}

	fields := rc.orderFields(c.Fields())
	if len(fields) == 0 {
		return Fragment{Text: rc.typeLabel(c.Type) + " " + rc.Style("{}", RoleKeyword), Info: hash}
	}
	var sb strings.Builder
	sb.WriteString(rc.typeLabel(c.Type))
	sb.WriteString(" ")
	sb.WriteString(rc.Style("{", RoleKeyword))
	for _, field := range fields {
		f := rc.Render(field.Value, depth+1, field.Name)
		nameRole := RoleKey
		if field.Visibility == Unexported {
			nameRole = RoleHidden
		}
		sb.WriteString("\n")
		sb.WriteString(rc.cfg.Indent)
		sb.WriteString(rc.Style(field.Name, nameRole))
		sb.WriteString(rc.Style(":", RoleKeyword))
		sb.WriteString(" ")
		sb.WriteString(indentLines(rc.joinInfo(f, rc.Style(",", RoleKeyword)), rc.cfg.Indent))
	}
	sb.WriteString("\n")
	sb.WriteString(rc.Style("}", RoleKeyword))
	return Fragment{Text: sb.String(), Info: hash}
}

// depthLimitedComposite is the default short form once the depth budget is used up.
func depthLimitedComposite(rc *RenderContext, v Value, _ int) Fragment {
	c, ok := v.(*Composite)
	if !ok {
		return Fragment{}
	}
	return Fragment{Text: rc.typeLabel(c.Type) + " " + rc.Style("{ ... }", RoleKeyword), Info: identityHash(c.Identity())}
}

func (rc *RenderContext) orderFields(fields []Field) []Field {
	switch rc.cfg.FieldOrder {
	case FieldOrderAlphabetic:
		fields = append([]Field(nil), fields...)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	case FieldOrderVisibility:
		fields = append([]Field(nil), fields...)
		sort.SliceStable(fields, func(i, j int) bool {
			if fields[i].Visibility != fields[j].Visibility {
				return fields[i].Visibility < fields[j].Visibility
			}
			return fields[i].Name < fields[j].Name
		})
	}
	return fields
}

func (rc *RenderContext) renderOpaque(o *Opaque, depth int) Fragment {
	if fn, ok := rc.d.formatters.Handlers.Resolve(Describe(o)); ok {
		if f := fn(rc, o, depth); !f.IsZero() {
			return f
		}
	}
	info := identityHash(o.Identity())
	if o.ID != "" {
		info = "#" + o.ID
	}
	return Fragment{Text: rc.Style(o.Resource+" resource", RoleKeyword), Info: joinNonEmpty(" ", info, o.detail)}
}

func (rc *RenderContext) renderCallable(c *Callable) Fragment {
	sig := strings.TrimPrefix(c.Signature, "func")
	if sig == "" {
		sig = "()"
	}
	var info string
	if c.File != "" {
		info = rc.d.trimmer.Trim(c.File)
		if c.Line > 0 {
			info += ":" + strconv.Itoa(c.Line)
		}
	}
	text := rc.Style(shortFuncName(c.Name), RoleFunction) + sig
	if len(c.Captured) > 0 {
		args := rc.argumentContext()
		vars := make([]string, len(c.Captured))
		for i, f := range c.Captured {
			vars[i] = f.Name + ": " + args.Render(f.Value, 0, f.Name).Text
		}
		text += " " + rc.Style("use", RoleKeyword) + " (" + strings.Join(vars, ", ") + ")"
	}
	return Fragment{Text: text, Info: info}
}

// shortFuncName drops the import path directories from a runtime function name.
func shortFuncName(name string) string {
	if i := strings.LastIndexByte(stripTypeParams(name), '/'); i >= 0 {
		return stripTypeParams(name)[i+1:]
	}
	return name
}
