package lens

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-analyze/bulk"
)

const maxCaptureFrames = 64

// InvocationKind describes how the enclosing function of a frame was entered.
type InvocationKind uint8

const (
	InvocationNone InvocationKind = iota
	// InvocationStatic is reported by producers that distinguish type level functions; Go captures never set it.
	InvocationStatic
	InvocationInstance
)

func (k InvocationKind) String() string {
	switch k {
	case InvocationStatic:
		return "static"
	case InvocationInstance:
		return "instance"
	}
	return "none"
}

// RawFrame is one entry of a platform backtrace: a call site paired with what was called there.
type RawFrame struct {
	// File and Line locate the call site, empty when only the callee name is known.
	File string
	Line int
	// Function is the fully qualified name of the callee, as reported by runtime.Func.Name.
	Function string
	// PC is the callee entry, zero for traces which did not come from this process.
	PC   uintptr
	Args []Value
}

// Frame is one lexical scope on the execution path: the location execution is at, paired with the
// function that location is inside of.
type Frame struct {
	File       string
	Line       int
	Package    string
	Owner      string
	Function   string
	Args       []Value
	Invocation InvocationKind
}

// Name returns the Go style qualified name of the enclosing function, or an empty string for top level frames.
func (f Frame) Name() string {
	if f.Function == "" {
		return ""
	}
	var sb strings.Builder
	if f.Package != "" {
		sb.WriteString(filepath.Base(f.Package))
		sb.WriteByte('.')
	}
	if f.Owner != "" {
		if strings.HasPrefix(f.Owner, "*") {
			sb.WriteString("(" + f.Owner + ")")
		} else {
			sb.WriteString(f.Owner)
		}
		sb.WriteByte('.')
	}
	sb.WriteString(f.Function)
	return sb.String()
}

// Location returns file:line, or just the file when the line is unknown.
func (f Frame) Location() string {
	if f.File == "" {
		return ""
	} else if f.Line <= 0 {
		return f.File
	}
	return f.File + ":" + strconv.Itoa(f.Line)
}

// Callstack is an immutable, innermost first sequence of frames.
type Callstack []Frame

// SkipRule removes frames from a Callstack. Empty fields match anything, but at least one field must be set.
type SkipRule struct {
	Package  string
	Owner    string
	Function string
}

func (r SkipRule) matches(f Frame) bool {
	if r.Package == "" && r.Owner == "" && r.Function == "" {
		return false
	}
	return (r.Package == "" || r.Package == f.Package || filepath.Base(f.Package) == r.Package) &&
		(r.Owner == "" || r.Owner == f.Owner || strings.TrimPrefix(f.Owner, "*") == r.Owner) &&
		(r.Function == "" || r.Function == f.Function)
}

// Filter returns a new Callstack without frames matched by any of the rules.
func (cs Callstack) Filter(rules []SkipRule) Callstack {
	if len(rules) == 0 {
		return cs
	}
	return bulk.SliceFilter(func(f Frame) bool {
		for _, r := range rules {
			if r.matches(f) {
				return false
			}
		}
		return true
	}, cs)
}

// TopN returns the n innermost frames.
func (cs Callstack) TopN(n int) Callstack {
	if n < 0 {
		n = 0
	}
	if n >= len(cs) {
		return cs
	}
	return cs[:n:n]
}

// ShiftFrames reinterprets a raw backtrace into frames describing where execution currently is.
// The location of frame i comes from raw entry i-1, while the enclosing function comes from raw entry i.
// The innermost frame reports the defining site of the function raw[0] called, resolved through loc.
// Locations that cannot be recovered are left empty.
func ShiftFrames(raw []RawFrame, loc SourceLocator) Callstack {
	if len(raw) == 0 {
		return nil
	}
	if loc == nil {
		loc = RuntimeLocator{}
	}
	frames := make(Callstack, 0, len(raw)+1)
	for i := 0; i <= len(raw); i++ {
		var f Frame
		if i < len(raw) {
			f = frameInside(raw[i])
		}
		if i == 0 {
			f.File, f.Line, _ = loc.Locate(raw[0].Function, raw[0].PC)
		} else {
			f.File, f.Line = raw[i-1].File, raw[i-1].Line
			if f.File == "" && i < len(raw) {
				f.File, f.Line, _ = loc.Locate(raw[i].Function, raw[i].PC)
			}
		}
		if i == len(raw) && f.File == "" {
			break // no top level call site
		}
		frames = append(frames, f)
	}
	return frames
}

// frameInside builds the function half of a frame from the callee of a raw entry.
func frameInside(r RawFrame) Frame {
	pkg, owner, fn := parseFuncName(r.Function)
	f := Frame{Package: pkg, Owner: owner, Function: fn, Args: r.Args}
	if owner != "" {
		f.Invocation = InvocationInstance
	}
	return f
}

// parseFuncName splits a runtime function name like `github.com/a/b.(*T).M` into package, owner and function.
func parseFuncName(name string) (pkg, owner, fn string) {
	name = stripTypeParams(name)
	if name == "" {
		return "", "", ""
	}
	lastSlash := strings.LastIndexByte(name, '/')
	dot := strings.IndexByte(name[lastSlash+1:], '.')
	if dot < 0 {
		return "", "", name
	}
	dot += lastSlash + 1
	pkg, rest := name[:dot], name[dot+1:]

	if strings.HasPrefix(rest, "(") {
		if end := strings.IndexByte(rest, ')'); end > 0 && end+2 <= len(rest) {
			return pkg, rest[1:end], rest[end+2:]
		}
		return pkg, "", rest
	}
	parts := strings.Split(rest, ".")
	if len(parts) >= 2 && !isClosureSegment(parts[1]) && parts[0] != "init" {
		return pkg, parts[0], strings.Join(parts[1:], ".")
	}
	return pkg, "", rest
}

func isClosureSegment(s string) bool {
	for _, prefix := range [...]string{"func", "gowrap", "deferwrap"} {
		if strings.HasPrefix(s, prefix) {
			_, err := strconv.Atoi(s[len(prefix):])
			return err == nil
		}
	}
	return false
}

// stripTypeParams removes generic instantiation brackets, which may contain dots and slashes.
func stripTypeParams(name string) string {
	for {
		start := strings.IndexByte(name, '[')
		if start < 0 {
			return name
		}
		depth, end := 0, -1
		for i := start; i < len(name); i++ {
			if name[i] == '[' {
				depth++
			} else if name[i] == ']' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}
		if end < 0 {
			return name[:start]
		}
		name = name[:start] + name[end+1:]
	}
}

// ownSourceDir is the directory of this package, frames located here are excluded from captured stacks.
var ownSourceDir = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}()

var ownPackage, _, _ = parseFuncName(runtime.FuncForPC(reflect.ValueOf(parseFuncName).Pointer()).Name())

func isOwnFrame(f Frame) bool {
	if f.File == "" {
		return f.Package == ownPackage
	}
	return ownSourceDir != "" && !strings.HasSuffix(f.File, "_test.go") && filepath.Dir(f.File) == ownSourceDir
}

// CaptureCallstack snapshots the current goroutine stack, skipping the given number of callers.
func CaptureCallstack(skip int, loc SourceLocator) Callstack {
	return ShiftFrames(captureRawFrames(skip+1), loc).excludeOwnFrames()
}

// captureRawFrames converts runtime frames, which already name their enclosing function, into call site
// entries naming the callee, so that every stack source goes through the same ShiftFrames transform.
func captureRawFrames(skip int) []RawFrame {
	pcs := make([]uintptr, maxCaptureFrames)
	n := runtime.Callers(skip+1, pcs) // include the callee of the first reported call site
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	raw := make([]RawFrame, 0, n)
	var callee *RawFrame
	for {
		f, more := frames.Next()
		if callee != nil {
			raw = append(raw, RawFrame{File: f.File, Line: f.Line, Function: callee.Function, PC: callee.PC})
		}
		callee = &RawFrame{Function: f.Function, PC: f.Entry}
		if !more {
			break
		}
	}
	if len(raw) > 0 {
		raw = append(raw, *callee) // goroutine entry, no call site
	}
	return raw
}

func (cs Callstack) excludeOwnFrames() Callstack {
	return bulk.SliceFilter(func(f Frame) bool {
		return !isOwnFrame(f)
	}, cs)
}
