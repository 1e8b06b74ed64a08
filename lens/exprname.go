package lens

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultSourceCacheBytes = 8 * 1024 * 1024
	// maxExpressionLines bounds how many lines a dump call may span.
	maxExpressionLines = 12
	snippetPrefix      = "package p\nfunc _() {\n"
)

// dumpFuncNames are the call names whose first argument is reported as the dumped expression.
var dumpFuncNames = map[string]bool{"Dump": true, "DumpBudget": true}

// sourceCache keeps recently read source files split into lines.
type sourceCache struct {
	cache *ristretto.Cache[string, []string]
}

func newSourceCache(maxBytes int64) (*sourceCache, error) {
	if maxBytes <= 0 {
		maxBytes = defaultSourceCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []string]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &sourceCache{cache: cache}, nil
}

func (c *sourceCache) lines(file string) ([]string, bool) {
	if lines, ok := c.cache.Get(file); ok {
		return lines, true
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, false
	}
	lines := strings.Split(string(data), "\n")
	c.cache.Set(file, lines, int64(len(data)))
	return lines, true
}

// expressionName recovers the source text of the first argument of the dump call at file:line.
// Literal arguments and unreadable sources yield ok=false.
func (d *Dumper) expressionName(file string, line int) (string, bool) {
	if d.sources == nil || line < 1 {
		return "", false
	}
	lines, ok := d.sources.lines(file)
	if !ok || line > len(lines) {
		return "", false
	}
	var snippet strings.Builder
	for i := line - 1; i < len(lines) && i < line-1+maxExpressionLines; i++ {
		snippet.WriteString(lines[i])
		snippet.WriteByte('\n')
		// the call may open a block, as in `if out, err := d.Dump(v); err != nil {`
		for closing := 0; closing <= 2; closing++ {
			if name, ok := firstDumpArgument(snippet.String() + strings.Repeat("}\n", closing)); ok {
				return name, name != ""
			}
		}
	}
	return "", false
}

// firstDumpArgument parses a statement snippet and returns the first argument of the first dump call.
// ok is false while the snippet is not yet a complete statement.
func firstDumpArgument(snippet string) (string, bool) {
	src := snippetPrefix + snippet + "}\n"
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.SkipObjectResolution)
	if err != nil {
		return "", false
	}
	var arg ast.Expr
	ast.Inspect(f, func(n ast.Node) bool {
		if arg != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		var name string
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			name = fn.Name
		case *ast.SelectorExpr:
			name = fn.Sel.Name
		}
		if dumpFuncNames[name] {
			arg = call.Args[0]
			return false
		}
		return true
	})
	if arg == nil {
		return "", true
	} else if _, isLit := arg.(*ast.BasicLit); isLit {
		return "", true
	}
	start, end := fset.Position(arg.Pos()).Offset, fset.Position(arg.End()).Offset
	if start < 0 || end > len(src) || start >= end {
		return "", true
	}
	return strings.Join(strings.Fields(src[start:end]), " "), true
}

// callableRefForName recognizes `Dump([]any{obj, "Method"})`, which names a method rather than a list.
func (d *Dumper) callableRefForName(name string, v any) (Value, bool) {
	if !strings.HasPrefix(name, "[") {
		return nil, false
	}
	ref, err := CallableRef(v)
	if err != nil {
		return nil, false
	}
	return ref, true
}

// CallableRef resolves a two element [receiver, "Method"] pair into the method it names.
func CallableRef(pair any) (*Callable, error) {
	rv := reflect.ValueOf(pair)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array || rv.Len() != 2 {
		return nil, contractViolation("callable reference must be a [receiver, method] pair, got %T", pair)
	}
	recv, method := rv.Index(0), rv.Index(1)
	for recv.Kind() == reflect.Interface && !recv.IsNil() {
		recv = recv.Elem()
	}
	for method.Kind() == reflect.Interface && !method.IsNil() {
		method = method.Elem()
	}
	if !recv.IsValid() || method.Kind() != reflect.String {
		return nil, contractViolation("callable reference must be a [receiver, method] pair, got %T", pair)
	} else if (recv.Kind() == reflect.Interface || recv.Kind() == reflect.Pointer) && recv.IsNil() {
		return nil, contractViolation("callable reference receiver is nil")
	}
	m, ok := recv.Type().MethodByName(method.String())
	if !ok {
		return nil, contractViolation("%s has no method %s", recv.Type(), method.String())
	}
	c := callableOf(m.Func)
	// drop the receiver from the method expression signature
	c.Signature = recv.Method(m.Index).Type().String()
	return c, nil
}
