package lens

import (
	"errors"
	"reflect"
	"strings"
)

// maxErrorTreeDepth bounds error chains, Unwrap methods returning their receiver would otherwise never end.
const maxErrorTreeDepth = 32

// Recover reports a panic to the collector and re-panics with the same value. It must be deferred directly:
//
//	defer dbg.Recover()
func (g *Debugger) Recover() {
	r := recover()
	if r == nil {
		return
	}
	stack := CaptureCallstack(1, g.dumper.locator)
	if text, err := g.renderPanic(r, stack); err == nil {
		_ = g.send(PacketPanic, text, stack)
	}
	panic(r)
}

func (g *Debugger) renderPanic(r any, stack Callstack) (string, error) {
	rc := g.dumper.newContext(g.dumper.cfg)
	return rc.guard(func() string {
		var sb strings.Builder
		sb.WriteString(rc.Style("panic:", RoleError))
		sb.WriteByte(' ')
		if err, ok := r.(error); ok {
			sb.WriteString(rc.renderErrorTree(err))
		} else {
			sb.WriteString(rc.joinInfo(rc.Render(ValueOf(r), 0, ""), ""))
		}
		if trace := rc.renderTrace(stack); trace != "" {
			sb.WriteByte('\n')
			sb.WriteString(trace)
		}
		return sb.String()
	})
}

// ReportError renders err with its wrapped and joined causes and sends it. A nil error is ignored.
func (g *Debugger) ReportError(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	text, renderErr := g.dumper.RenderError(err)
	if renderErr != nil {
		return "", renderErr
	}
	return text, g.send(PacketError, text, CaptureCallstack(1, g.dumper.locator))
}

// RenderError renders err with its wrapped and joined causes, one indented line per cause.
func (d *Dumper) RenderError(err error) (string, error) {
	rc := d.newContext(d.cfg)
	return rc.guard(func() string {
		return rc.renderErrorTree(err)
	})
}

func (rc *RenderContext) renderErrorTree(err error) string {
	var sb strings.Builder
	rc.writeErrorNode(&sb, err, 0)
	return sb.String()
}

func (rc *RenderContext) writeErrorNode(sb *strings.Builder, err error, depth int) {
	if depth > 0 {
		sb.WriteByte('\n')
		sb.WriteString(strings.Repeat(rc.cfg.Indent, depth))
		sb.WriteString(rc.Style("caused by", RoleKeyword))
		sb.WriteByte(' ')
	}
	sb.WriteString(rc.Style(reflect.TypeOf(err).String(), RoleType))
	sb.WriteString(": ")
	sb.WriteString(rc.Style(err.Error(), RoleError))
	if depth >= maxErrorTreeDepth {
		sb.WriteByte(' ')
		sb.WriteString(rc.info("chain truncated"))
		return
	}

	var causes []error
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		causes = u.Unwrap()
	default:
		if cause := errors.Unwrap(err); cause != nil {
			causes = []error{cause}
		}
	}
	for _, cause := range causes {
		if cause != nil {
			rc.writeErrorNode(sb, cause, depth+1)
		}
	}
}
