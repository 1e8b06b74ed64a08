package lens

import (
	"math/big"
	"net/url"
	"reflect"
	"strconv"
	"time"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func registerBuiltinHandlers(f *Formatters) {
	f.Register("time.Time", renderTime)
	f.Register("url.URL", renderURL)
	f.Register("big.Int", renderBigNumber)
	f.Register("big.Float", renderBigNumber)
	f.Register("big.Rat", renderBigNumber)
	f.Register("file", renderFileResource)
	f.Handlers.RegisterType(errorType, renderErrorValue)

	f.RegisterShort("time.Time", renderTime)
	f.RegisterShort("url.URL", renderURL)
	f.Short.RegisterType(errorType, renderErrorValue)
	f.Short.SetDefault(depthLimitedComposite)
}

// compositeAs extracts the Go value behind a composite, trying the pointer first so pointer receiver
// interfaces are found.
func compositeAs[T any](v Value) (T, bool) {
	var zero T
	c, ok := v.(*Composite)
	if !ok {
		return zero, false
	}
	gv, ok := c.GoValue()
	if !ok {
		return zero, false
	}
	if gv.CanAddr() && gv.Addr().CanInterface() {
		if t, ok := gv.Addr().Interface().(T); ok {
			return t, true
		}
	}
	if gv.CanInterface() {
		if t, ok := gv.Interface().(T); ok {
			return t, true
		}
	}
	return zero, false
}

func renderTime(rc *RenderContext, v Value, _ int) Fragment {
	t, ok := compositeAs[*time.Time](v)
	if !ok {
		return Fragment{}
	}
	text := rc.typeLabel("time.Time") + " " + rc.Style(t.Format("2006-01-02 15:04:05.000000 -07:00"), RoleTime)
	if t.IsZero() {
		return Fragment{Text: text, Info: "zero"}
	}
	return Fragment{Text: text, Info: t.Location().String()}
}

func renderURL(rc *RenderContext, v Value, _ int) Fragment {
	u, ok := compositeAs[*url.URL](v)
	if !ok {
		return Fragment{}
	}
	return Fragment{Text: rc.typeLabel("url.URL") + " " + rc.quote(u.String())}
}

func renderBigNumber(rc *RenderContext, v Value, _ int) Fragment {
	var text string
	if n, ok := compositeAs[*big.Int](v); ok {
		text = n.String()
	} else if n, ok := compositeAs[*big.Float](v); ok {
		text = n.Text('g', -1)
	} else if n, ok := compositeAs[*big.Rat](v); ok {
		text = n.RatString()
	} else {
		return Fragment{}
	}
	c := v.(*Composite)
	return Fragment{Text: rc.typeLabel(c.Type) + " " + rc.Style(text, RoleNumber)}
}

// renderErrorValue renders errors without exported fields as their message; errors carrying exported
// fields keep the structural form.
func renderErrorValue(rc *RenderContext, v Value, _ int) Fragment {
	c, ok := v.(*Composite)
	if !ok {
		return Fragment{}
	}
	for _, f := range c.Fields() {
		if f.Visibility == Exported {
			return Fragment{}
		}
	}
	err, ok := compositeAs[error](v)
	if !ok {
		return Fragment{}
	}
	return Fragment{Text: rc.typeLabel(c.Type) + " " + rc.quote(err.Error()), Info: identityHash(c.Identity())}
}

func renderFileResource(rc *RenderContext, v Value, _ int) Fragment {
	o, ok := v.(*Opaque)
	if !ok {
		return Fragment{}
	}
	text := rc.Style("file resource", RoleKeyword)
	if o.detail != "" {
		text += " " + rc.Style(strconv.Quote(o.detail), RolePath)
	}
	return Fragment{Text: text, Info: "fd " + o.ID}
}
