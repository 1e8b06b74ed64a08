package lens

import (
	"errors"
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"runtime"

	"golang.org/x/tools/go/packages"
)

// SourceLocator resolves the declaring file and first line of a function.
// Implementations return ok=false instead of failing.
type SourceLocator interface {
	// Locate finds the declaration of the named function (runtime.Func naming), pc may be zero.
	Locate(function string, pc uintptr) (file string, line int, ok bool)
}

// RuntimeLocator resolves functions of the running binary through the runtime symbol table.
type RuntimeLocator struct{}

func (RuntimeLocator) Locate(function string, pc uintptr) (string, int, bool) {
	if pc == 0 {
		return "", 0, false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil || (function != "" && fn.Name() != function) {
		return "", 0, false
	}
	file, line := fn.FileLine(fn.Entry())
	if file == "" {
		return "", 0, false
	}
	return file, line, true
}

// ChainLocator tries each locator in order.
type ChainLocator []SourceLocator

func (c ChainLocator) Locate(function string, pc uintptr) (string, int, bool) {
	for _, l := range c {
		if l == nil {
			continue
		} else if file, line, ok := l.Locate(function, pc); ok {
			return file, line, true
		}
	}
	return "", 0, false
}

type declSite struct {
	file string
	line int
}

// PackageSourceLocator resolves function names from parsed package sources, allowing traces received from
// other processes (which carry no usable PC) to recover declaration sites.
type PackageSourceLocator struct {
	sites map[string]declSite
}

// NewPackageSourceLocator loads the packages matching patterns (default "./...") relative to dir and
// indexes every function declaration.
func NewPackageSourceLocator(dir string, patterns ...string) (*PackageSourceLocator, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Dir:   dir,
		Tests: true,
		Mode:  packages.NeedFiles | packages.NeedSyntax | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	} else if packages.PrintErrors(pkgs) > 0 {
		return nil, errors.New("packages contain errors")
	}

	l := &PackageSourceLocator{sites: make(map[string]declSite)}
	for _, p := range pkgs {
		for _, f := range p.Syntax {
			for _, decl := range f.Decls {
				funcDecl, ok := decl.(*ast.FuncDecl)
				if !ok {
					continue
				}
				pos := p.Fset.Position(funcDecl.Pos())
				l.sites[runtimeFuncName(p.PkgPath, funcDecl)] = declSite{file: filepath.ToSlash(pos.Filename), line: pos.Line}
			}
		}
	}
	return l, nil
}

// Len reports the number of indexed declarations.
func (l *PackageSourceLocator) Len() int {
	return len(l.sites)
}

func (l *PackageSourceLocator) Locate(function string, _ uintptr) (string, int, bool) {
	if function == "" {
		return "", 0, false
	}
	site, ok := l.sites[stripTypeParams(function)]
	if !ok {
		return "", 0, false
	}
	return site.file, site.line, true
}

// runtimeFuncName renders a declaration the way runtime.Func.Name reports it, without type parameters.
func runtimeFuncName(pkgPath string, funcDecl *ast.FuncDecl) string {
	if funcDecl.Recv == nil || len(funcDecl.Recv.List) == 0 {
		return pkgPath + "." + funcDecl.Name.Name
	}
	// types.ExprString will render "*MyType", "MyType[K]", etc
	recv := stripTypeParams(types.ExprString(funcDecl.Recv.List[0].Type))
	if len(recv) > 0 && recv[0] == '*' {
		return fmt.Sprintf("%s.(%s).%s", pkgPath, recv, funcDecl.Name.Name)
	}
	return pkgPath + "." + recv + "." + funcDecl.Name.Name
}
