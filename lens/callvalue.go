package lens

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// argumentStringLength bounds strings shown inside call parentheses.
const argumentStringLength = 32

var identityHashRegex = regexp.MustCompile(`#[0-9a-f]{6}\b`)

// argumentContext derives the reduced budget used for values shown inline within a call.
func (rc *RenderContext) argumentContext() *RenderContext {
	return rc.WithBudget(Budget{
		MaxDepth:             1,
		MaxStringLength:      argumentStringLength,
		MaxArrayInlineLength: rc.cfg.MaxArrayInlineLength,
		MaxArrayInlineItems:  rc.cfg.MaxArrayInlineItems,
	})
}

// RenderCallValue formats one intercepted call as `name(arg, arg): return`. A nil ret omits the return part.
func (d *Dumper) RenderCallValue(name string, params []any, ret any) (string, error) {
	rc := d.newContext(d.cfg)
	return rc.guard(func() string {
		args := rc.argumentContext()
		var sb strings.Builder
		sb.WriteString(rc.Style(name, RoleFunction))
		sb.WriteString(rc.Style("(", RoleFunction))
		for i, p := range params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(args.Render(ValueOf(p), 0, "").Text)
		}
		sb.WriteString(rc.Style(")", RoleFunction))
		if ret != nil {
			sb.WriteString(rc.Style(":", RoleKeyword))
			sb.WriteByte(' ')
			sb.WriteString(args.joinInfo(args.Render(ValueOf(ret), 0, ""), ""))
		}
		return sb.String()
	})
}

// DiffDumps renders both values without styles and returns their unified diff, empty when they render the
// same. Identity hashes are masked as they differ between any two instances.
func (d *Dumper) DiffDumps(a, b any) (string, error) {
	plain := *d
	plain.styler = PlainStyler()
	textA, err := plain.Render(a)
	if err != nil {
		return "", err
	}
	textB, err := plain.Render(b)
	if err != nil {
		return "", err
	}
	textA = identityHashRegex.ReplaceAllString(textA, "#")
	textB = identityHashRegex.ReplaceAllString(textB, "#")
	if textA == textB {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA + "\n"),
		B:        difflib.SplitLines(textB + "\n"),
		FromFile: "a",
		ToFile:   "b",
		Context:  2,
	})
}
