package lens

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"unsafe"
)

const (
	// convertMaxItems bounds how many entries of a slice, array or map are converted.
	convertMaxItems = 1024
	// convertMaxPointerHops bounds pointer chains like `type P *P` which never reach a value.
	convertMaxPointerHops = 32
)

var (
	valueInterfaceType = reflect.TypeOf((*Value)(nil)).Elem()
	netConnType        = reflect.TypeOf((*net.Conn)(nil)).Elem()
	osFileType         = reflect.TypeOf((*os.File)(nil))
)

// ValueOf converts an arbitrary Go value into the Value union. Children of sequences and composites
// are converted lazily when first rendered, so converting a large or cyclic graph is cheap.
func ValueOf(v any) Value {
	if lv, ok := v.(Value); ok {
		return lv
	}
	return valueOf(reflect.ValueOf(v))
}

func valueOf(v reflect.Value) Value {
	for hops := 0; v.IsValid(); hops++ {
		if hops > convertMaxPointerHops {
			return &Opaque{Resource: "pointer cycle", Type: v.Type().String(), id: v.Pointer(), goType: v.Type()}
		}
		if v.CanInterface() && v.Type().Implements(valueInterfaceType) && (v.Kind() != reflect.Interface && v.Kind() != reflect.Pointer || !v.IsNil()) {
			return v.Interface().(Value)
		}
		switch v.Kind() {
		case reflect.Interface:
			if v.IsNil() {
				return Null{}
			}
			v = v.Elem()
			continue
		case reflect.Pointer:
			if v.IsNil() {
				return Null{}
			}
			if o, ok := resourceOf(v); ok {
				return o
			}
			v = v.Elem()
			continue
		}
		break
	}
	if !v.IsValid() {
		return Null{}
	}

	vType := v.Type()
	switch v.Kind() {
	case reflect.Bool:
		return Bool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int{V: v.Int(), Type: namedType(vType), goType: vType}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		return Int{V: int64(u), U: u, Unsigned: true, Type: namedType(vType), goType: vType}
	case reflect.Float32:
		return Float{V: v.Float(), Type: namedType(vType), Bits: 32}
	case reflect.Float64:
		return Float{V: v.Float(), Type: namedType(vType), Bits: 64}
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return NewComposite(vType.String(),
			Field{Name: "Real", Value: Float{V: real(c), Bits: 64}},
			Field{Name: "Imag", Value: Float{V: imag(c), Bits: 64}})
	case reflect.String:
		return String{S: v.String(), Type: namedType(vType)}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return Null{}
		} else if vType.Elem().Kind() == reflect.Uint8 {
			return bytesValue(v, vType)
		}
		return sliceValue(v, vType)
	case reflect.Map:
		if v.IsNil() {
			return Null{}
		}
		return mapValue(v, vType)
	case reflect.Struct:
		if o, ok := resourceOf(v); ok {
			return o
		}
		return structValue(v, vType)
	case reflect.Func:
		if v.IsNil() {
			return Null{}
		}
		return callableOf(v)
	case reflect.Chan:
		if v.IsNil() {
			return Null{}
		}
		return &Opaque{Resource: "channel", Type: vType.String(), id: v.Pointer(), goType: vType,
			ID:     "0x" + strconv.FormatUint(uint64(v.Pointer()), 16),
			detail: "cap " + strconv.Itoa(v.Cap())}
	case reflect.UnsafePointer:
		return &Opaque{Resource: "pointer", Type: vType.String(), id: v.Pointer(), goType: vType,
			ID: "0x" + strconv.FormatUint(uint64(v.Pointer()), 16)}
	}
	panic(contractViolation("unsupported reflect kind %s", v.Kind()))
}

// namedType returns the type name only when it differs from the builtin kind name.
func namedType(t reflect.Type) string {
	if t.Name() == t.Kind().String() && t.PkgPath() == "" {
		return ""
	}
	return t.String()
}

// resourceOf recognizes OS resources which should render as handles instead of structs.
func resourceOf(v reflect.Value) (*Opaque, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	vType := v.Type()
	if vType == osFileType {
		f := v.Interface().(*os.File)
		return &Opaque{Resource: "file", Type: vType.String(), id: v.Pointer(), goType: vType,
			ID: strconv.FormatUint(uint64(f.Fd()), 10), detail: f.Name()}, true
	} else if vType.Implements(netConnType) {
		if vType.Kind() == reflect.Pointer && v.IsNil() {
			return nil, false
		}
		conn := v.Interface().(net.Conn)
		var id uintptr
		if vType.Kind() == reflect.Pointer {
			id = v.Pointer()
		}
		o := &Opaque{Resource: "socket", Type: vType.String(), id: id, goType: vType}
		if la, ra := conn.LocalAddr(), conn.RemoteAddr(); la != nil && ra != nil {
			o.ID = la.String() + "->" + ra.String()
		} else if la != nil {
			o.ID = la.String()
		}
		return o, true
	}
	return nil, false
}

func bytesValue(v reflect.Value, vType reflect.Type) Value {
	var data []byte
	if v.Kind() == reflect.Slice {
		data = append([]byte(nil), v.Bytes()...)
	} else {
		data = make([]byte, v.Len())
		for i := range data {
			data[i] = byte(v.Index(i).Uint())
		}
	}
	return String{S: string(data), Type: vType.String(), Bytes: true}
}

func sliceValue(v reflect.Value, vType reflect.Type) *Sequence {
	if v.Kind() == reflect.Array && !v.CanAddr() {
		v = addressable(v)
	}
	seq := &Sequence{Type: vType.String(), List: true, Len: v.Len()}
	if v.Kind() == reflect.Slice {
		seq.id = v.Pointer()
	} else {
		seq.id = v.UnsafeAddr()
	}
	seq.loader = func() []SeqItem {
		n := min(v.Len(), convertMaxItems)
		items := make([]SeqItem, n)
		for i := 0; i < n; i++ {
			items[i] = SeqItem{Value: valueOf(v.Index(i))}
		}
		return items
	}
	return seq
}

func mapValue(v reflect.Value, vType reflect.Type) *Sequence {
	seq := &Sequence{Type: vType.String(), Len: v.Len(), id: v.Pointer()}
	seq.loader = func() []SeqItem {
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return lensCompareReflectValue(keys[i], keys[j]) < 0 })
		if len(keys) > convertMaxItems {
			keys = keys[:convertMaxItems]
		}
		items := make([]SeqItem, len(keys))
		for i, k := range keys {
			items[i] = SeqItem{Key: valueOf(k), Value: valueOf(v.MapIndex(k))}
		}
		return items
	}
	return seq
}

func structValue(v reflect.Value, vType reflect.Type) *Composite {
	if !v.CanAddr() {
		v = addressable(v)
	}
	c := &Composite{Type: vType.String(), id: v.UnsafeAddr(), goType: vType, goValue: v}
	for i := 0; i < vType.NumField(); i++ {
		if sf := vType.Field(i); sf.Anonymous {
			c.Ancestors = append(c.Ancestors, sf.Type.String())
		}
	}
	c.loader = func() []Field {
		fields := make([]Field, vType.NumField())
		for i := range fields {
			sf := vType.Field(i)
			fv := v.Field(i)
			vis := Exported
			if !sf.IsExported() {
				vis = Unexported
			}
			if !fv.CanInterface() {
				fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
			}
			fields[i] = Field{Visibility: vis, Name: sf.Name, Value: valueOf(fv), Embedded: sf.Anonymous}
		}
		return fields
	}
	return c
}

// addressable copies v into new memory so unexported fields can be reached through unsafe.
func addressable(v reflect.Value) reflect.Value {
	tmp := reflect.New(v.Type()).Elem()
	tmp.Set(v)
	return tmp
}

func callableOf(v reflect.Value) *Callable {
	c := &Callable{Signature: v.Type().String()}
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		c.Name = fmt.Sprintf("func@0x%x", v.Pointer())
		return c
	}
	c.Name = fn.Name()
	c.File, c.Line = fn.FileLine(fn.Entry())
	return c
}

func uintptrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// lensCompareReflectValue compares two reflect.Value keys for sorting.
// Keys in a map are guaranteed to be the same type, so we switch on kind once.
func lensCompareReflectValue(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return compareOrdered(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return compareOrdered(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return compareOrdered(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return compareOrdered(a.Float(), b.Float())
	case reflect.Bool:
		// false < true
		if a.Bool() == b.Bool() {
			return 0
		} else if b.Bool() {
			return -1
		}
		return 1
	case reflect.Complex64, reflect.Complex128:
		ac, bc := a.Complex(), b.Complex()
		if c := compareOrdered(real(ac), real(bc)); c != 0 {
			return c
		}
		return compareOrdered(imag(ac), imag(bc))
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		return compareOrdered(a.Pointer(), b.Pointer())
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if c := lensCompareReflectValue(a.Index(i), b.Index(i)); c != 0 {
				return c
			}
		}
		return 0
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if c := lensCompareReflectValue(a.Field(i), b.Field(i)); c != 0 {
				return c
			}
		}
		return 0
	case reflect.Interface:
		if a.IsNil() && b.IsNil() {
			return 0
		} else if a.IsNil() {
			return -1
		} else if b.IsNil() {
			return 1
		}
		// different underlying types: compare by type name for consistent ordering
		if a.Elem().Type() != b.Elem().Type() {
			return compareOrdered(a.Elem().Type().String(), b.Elem().Type().String())
		}
		return lensCompareReflectValue(a.Elem(), b.Elem())
	default:
		return compareOrdered(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func compareOrdered[T int64 | uint64 | float64 | string | uintptr](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
