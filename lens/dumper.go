package lens

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrContractViolation is the root of errors caused by values or arguments outside the formatter contract.
var ErrContractViolation = errors.New("contract violation")

// ContractError reports a programming error detected while rendering; the dump is abandoned.
type ContractError struct {
	Detail string
}

func (e *ContractError) Error() string {
	return ErrContractViolation.Error() + ": " + e.Detail
}

func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

func contractViolation(format string, args ...any) *ContractError {
	return &ContractError{Detail: fmt.Sprintf(format, args...)}
}

// Fragment is rendered text plus an optional info comment. The comment is kept separate so a parent can
// place separators between the value and the comment.
type Fragment struct {
	Text string
	Info string
}

// IsZero reports if nothing was rendered, handlers return a zero Fragment to defer to structural rendering.
func (f Fragment) IsZero() bool {
	return f.Text == ""
}

// Dumper renders Go values as colorized, depth limited text. A Dumper is safe for concurrent use; all
// per dump state lives in a RenderContext created for each call.
type Dumper struct {
	cfg        FormatterConfig
	formatters *Formatters
	styler     *Styler
	locator    SourceLocator
	trimmer    PathTrimmer
	sources    *sourceCache
}

// DumperOption customizes a Dumper at construction.
type DumperOption func(*Dumper)

// WithStyler sets the styler, PlainStyler() disables escape sequences for this Dumper only.
func WithStyler(s *Styler) DumperOption {
	return func(d *Dumper) { d.styler = s }
}

// WithLocator sets the source locator used to recover function declaration sites.
func WithLocator(l SourceLocator) DumperOption {
	return func(d *Dumper) { d.locator = l }
}

// WithFormatters replaces the handler registries.
func WithFormatters(f *Formatters) DumperOption {
	return func(d *Dumper) { d.formatters = f }
}

// WithPathTrimmer sets how trace file paths are displayed.
func WithPathTrimmer(t PathTrimmer) DumperOption {
	return func(d *Dumper) { d.trimmer = t }
}

// WithSourceCacheMB bounds the memory used to cache source lines for expression names.
func WithSourceCacheMB(mb int) DumperOption {
	return func(d *Dumper) {
		if sc, err := newSourceCache(int64(mb) * 1024 * 1024); err == nil {
			d.sources = sc
		}
	}
}

// NewDumper creates a Dumper for the config.
func NewDumper(cfg FormatterConfig, opts ...DumperOption) *Dumper {
	d := &Dumper{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(d)
	}
	if d.formatters == nil {
		d.formatters = NewFormatters()
	}
	if d.styler == nil {
		d.styler = NewStyler(nil)
	}
	if d.locator == nil {
		d.locator = RuntimeLocator{}
	}
	if d.sources == nil {
		d.sources, _ = newSourceCache(defaultSourceCacheBytes)
	}
	return d
}

var defaultDumper = sync.OnceValue(func() *Dumper {
	return NewDumper(DefaultFormatterConfig())
})

// Dump renders v with the expression name and trace using a default Dumper.
func Dump(v any) (string, error) {
	out, _, err := defaultDumper().dump(v, defaultDumper().cfg, 0)
	return out, err
}

func (d *Dumper) Config() FormatterConfig {
	return d.cfg
}

func (d *Dumper) Formatters() *Formatters {
	return d.formatters
}

func (d *Dumper) Styler() *Styler {
	return d.styler
}

// Dump renders v prefixed by the source expression it was called with and followed by the call trace.
func (d *Dumper) Dump(v any) (string, error) {
	out, _, err := d.dump(v, d.cfg, 0)
	return out, err
}

// DumpBudget is Dump with the limits replaced for this call only.
func (d *Dumper) DumpBudget(v any, b Budget) (string, error) {
	out, _, err := d.dump(v, d.cfg.WithBudget(b), 0)
	return out, err
}

// Render renders v alone, without name or trace.
func (d *Dumper) Render(v any) (string, error) {
	rc := d.newContext(d.cfg)
	return rc.guard(func() string {
		return rc.joinInfo(rc.Render(ValueOf(v), 0, ""), "")
	})
}

// dump also returns the captured stack so producers can report where the dump was made.
func (d *Dumper) dump(v any, cfg FormatterConfig, skip int) (string, Callstack, error) {
	rc := d.newContext(cfg)
	stack := CaptureCallstack(skip+1, d.locator)
	out, err := rc.guard(func() string {
		var name string
		if len(stack) > 0 && stack[0].File != "" {
			name, _ = d.expressionName(stack[0].File, stack[0].Line)
		}

		var sb strings.Builder
		if name != "" {
			sb.WriteString(rc.Style(name, RoleOrigin))
			sb.WriteString(": ")
		}
		var frag Fragment
		if ref, ok := d.callableRefForName(name, v); ok {
			frag = rc.Render(ref, 0, "")
		} else {
			frag = rc.Render(ValueOf(v), 0, "")
		}
		sb.WriteString(rc.joinInfo(frag, ""))
		if trace := rc.renderTrace(stack); trace != "" {
			sb.WriteByte('\n')
			sb.WriteString(trace)
		}
		return sb.String()
	})
	return out, stack, err
}

type visitKey struct {
	id       uintptr
	typeName string
}

// RenderContext carries the state of a single dump: the effective config and the set of values being
// rendered on the current path. It must not be shared between goroutines.
type RenderContext struct {
	d       *Dumper
	cfg     *FormatterConfig
	visited map[visitKey]struct{}
}

func (d *Dumper) newContext(cfg FormatterConfig) *RenderContext {
	cfg = cfg.withDefaults()
	return &RenderContext{d: d, cfg: &cfg, visited: make(map[visitKey]struct{})}
}

// guard converts contract violations raised while rendering into errors. Other panics propagate.
func (rc *RenderContext) guard(render func() string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*ContractError)
			if !ok {
				panic(r)
			}
			clear(rc.visited)
			out, err = "", ce
		}
	}()
	return render(), nil
}

// Config returns the effective config of this render.
func (rc *RenderContext) Config() *FormatterConfig {
	return rc.cfg
}

// Style applies the dumper styler.
func (rc *RenderContext) Style(text string, role StyleRole) string {
	return rc.d.styler.Style(text, role)
}

// WithBudget derives a context using different limits which shares the path state of rc. Nested renders
// started from a handler use it to apply their own limits without affecting the caller.
func (rc *RenderContext) WithBudget(b Budget) *RenderContext {
	cfg := rc.cfg.WithBudget(b)
	return &RenderContext{d: rc.d, cfg: &cfg, visited: rc.visited}
}

// RenderAny converts and renders a Go value, for handlers rendering derived values.
func (rc *RenderContext) RenderAny(v any, depth int, key string) Fragment {
	return rc.Render(ValueOf(v), depth, key)
}

// Render renders v at the given depth. key is the field name or map key v was reached through, used by
// heuristics and hidden field masking.
func (rc *RenderContext) Render(v Value, depth int, key string) Fragment {
	switch tv := v.(type) {
	case nil, Null:
		return Fragment{Text: rc.Style("nil", RoleNull)}
	case Bool:
		if tv {
			return Fragment{Text: rc.Style("true", RoleBool)}
		}
		return Fragment{Text: rc.Style("false", RoleBool)}
	case Int:
		return rc.renderInt(tv, key)
	case Float:
		return rc.renderFloat(tv, key)
	case String:
		return rc.renderString(tv, depth, key)
	case *Sequence:
		if tv == nil {
			return Fragment{Text: rc.Style("nil", RoleNull)}
		}
		return rc.renderSequence(tv, depth, key)
	case *Composite:
		if tv == nil {
			return Fragment{Text: rc.Style("nil", RoleNull)}
		}
		return rc.renderComposite(tv, depth)
	case *Opaque:
		if tv == nil {
			return Fragment{Text: rc.Style("nil", RoleNull)}
		}
		return rc.renderOpaque(tv, depth)
	case *Callable:
		if tv == nil {
			return Fragment{Text: rc.Style("nil", RoleNull)}
		}
		return rc.renderCallable(tv)
	}
	panic(contractViolation("unrecognized value kind %T", v))
}

// joinInfo appends sep and then the styled info comment to the fragment text.
func (rc *RenderContext) joinInfo(f Fragment, sep string) string {
	if f.Info == "" {
		return f.Text + sep
	}
	return f.Text + sep + " " + rc.info(f.Info)
}

func (rc *RenderContext) info(text string) string {
	return rc.Style("// "+text, RoleInfo)
}

func (rc *RenderContext) renderTrace(stack Callstack) string {
	if rc.cfg.TraceLength <= 0 {
		return ""
	}
	stack = stack.Filter(rc.cfg.SkipFrames).TopN(rc.cfg.TraceLength)
	lines := make([]string, 0, len(stack))
	for _, f := range stack {
		lines = append(lines, rc.renderFrame(f))
	}
	return strings.Join(lines, "\n")
}

func (rc *RenderContext) renderFrame(f Frame) string {
	var sb strings.Builder
	if name := f.Name(); name != "" {
		sb.WriteString(rc.Style("--- in ", RoleTrace))
		sb.WriteString(rc.Style(name, RoleFunction))
		sb.WriteString(rc.Style("(", RoleFunction))
		args := rc.argumentContext()
		for i, arg := range f.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(args.Render(arg, 0, "").Text)
		}
		sb.WriteString(rc.Style(")", RoleFunction))
	} else {
		sb.WriteString(rc.Style("--- at", RoleTrace))
	}
	if loc := rc.d.trimmer.Trim(f.File); loc != "" {
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, f.Line)
		}
		sb.WriteString(" ")
		sb.WriteString(rc.Style("["+loc+"]", RoleTrace))
	}
	return sb.String()
}

// RenderTrace renders a callstack the way Dump appends it.
func (d *Dumper) RenderTrace(stack Callstack) string {
	return d.newContext(d.cfg).renderTrace(stack)
}

// Trace renders the current call trace, without any value.
func (d *Dumper) Trace() string {
	return d.RenderTrace(CaptureCallstack(1, d.locator))
}
