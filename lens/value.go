package lens

import (
	"reflect"
	"sync"
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota + 1
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindComposite
	KindOpaque
	KindCallable
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindComposite:
		return "composite"
	case KindOpaque:
		return "opaque"
	case KindCallable:
		return "callable"
	}
	return "invalid"
}

// Value is the closed set of shapes the dumper knows how to render.
// Implementations live in this package only.
type Value interface {
	Kind() Kind
	sealed()
}

type Null struct{}

type Bool bool

// Int holds any Go integer; Unsigned values keep their full range in U.
type Int struct {
	V        int64
	U        uint64
	Unsigned bool
	Type     string
	goType   reflect.Type
}

type Float struct {
	V    float64
	Type string
	// Bits is 32 for float32 sources, otherwise 64.
	Bits int
}

// String holds text or raw bytes. Bytes is set when the source was a byte slice or array.
type String struct {
	S     string
	Type  string
	Bytes bool
}

// SeqItem is one entry of a Sequence. Key is nil for positional list entries.
type SeqItem struct {
	Key   Value
	Value Value
}

// Sequence is an ordered list of items, either positional (List) or keyed (a map).
type Sequence struct {
	Type string
	List bool
	Len  int

	id     uintptr
	once   sync.Once
	items  []SeqItem
	loader func() []SeqItem
}

// Visibility of a composite field.
type Visibility uint8

const (
	Exported Visibility = iota
	Unexported
)

func (v Visibility) String() string {
	if v == Unexported {
		return "unexported"
	}
	return "exported"
}

type Field struct {
	Visibility Visibility
	Name       string
	Value      Value
	Embedded   bool
}

// Composite is a value with a named owner type and named fields.
type Composite struct {
	Type string
	// Ancestors lists embedded type names, outermost first; used for registry capability matching.
	Ancestors []string

	id      uintptr
	goType  reflect.Type
	goValue reflect.Value
	once    sync.Once
	fields  []Field
	loader  func() []Field
}

// Opaque is a resource-like handle (file, socket, channel) with no walkable structure.
type Opaque struct {
	Resource string
	ID       string
	Type     string

	id     uintptr
	goType reflect.Type
	detail string
}

// Callable is a function value with its resolved signature and defining site.
type Callable struct {
	Name      string
	Signature string
	File      string
	Line      int
	Captured  []Field
}

func (Null) Kind() Kind { return KindNull }
func (Bool) Kind() Kind { return KindBool }
func (Int) Kind() Kind { return KindInt }
func (Float) Kind() Kind { return KindFloat }
func (String) Kind() Kind { return KindString }
func (*Sequence) Kind() Kind { return KindSequence }
func (*Composite) Kind() Kind { return KindComposite }
func (*Opaque) Kind() Kind { return KindOpaque }
func (*Callable) Kind() Kind { return KindCallable }
func (Null) sealed() {}
func (Bool) sealed() {}
func (Int) sealed() {}
func (Float) sealed() {}
func (String) sealed() {}
func (*Sequence) sealed() {}
func (*Composite) sealed() {}
func (*Opaque) sealed() {}
func (*Callable) sealed() {}

// NewList builds a positional sequence from already converted values.
func NewList(typeName string, values ...Value) *Sequence {
	items := make([]SeqItem, len(values))
	for i, v := range values {
		items[i] = SeqItem{Value: v}
	}
	s := &Sequence{Type: typeName, List: true, Len: len(items), items: items}
	s.once.Do(func() {})
	return s
}

// NewMap builds a keyed sequence, keeping the item order given.
func NewMap(typeName string, items ...SeqItem) *Sequence {
	s := &Sequence{Type: typeName, Len: len(items), items: items}
	s.once.Do(func() {})
	return s
}

// NewComposite builds a composite from already converted fields.
func NewComposite(typeName string, fields ...Field) *Composite {
	c := &Composite{Type: typeName, fields: fields}
	c.once.Do(func() {})
	return c
}

// Items returns the sequence entries, resolving lazily converted children on first use.
func (s *Sequence) Items() []SeqItem {
	s.once.Do(func() {
		if s.loader != nil {
			s.items = s.loader()
			s.loader = nil
		}
	})
	return s.items
}

// Fields returns the composite fields in declaration order.
func (c *Composite) Fields() []Field {
	c.once.Do(func() {
		if c.loader != nil {
			c.fields = c.loader()
			c.loader = nil
		}
	})
	return c.fields
}

// GoType returns the reflected source type, or nil for composites built by hand.
func (c *Composite) GoType() reflect.Type {
	return c.goType
}

// GoValue returns the reflected source value when available.
func (c *Composite) GoValue() (reflect.Value, bool) {
	return c.goValue, c.goValue.IsValid()
}

// Identity returns the stable per-instance identity used for cycle detection and hashes.
func (s *Sequence) Identity() uintptr {
	if s.id != 0 {
		return s.id
	}
	return uintptrOf(s)
}

func (c *Composite) Identity() uintptr {
	if c.id != 0 {
		return c.id
	}
	return uintptrOf(c)
}

func (o *Opaque) Identity() uintptr {
	if o.id != 0 {
		return o.id
	}
	return uintptrOf(o)
}

// Lookup returns the first field with the given name.
func (c *Composite) Lookup(name string) (Value, bool) {
	for _, f := range c.Fields() {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// ShapeDescriptor classifies a value for registry dispatch.
type ShapeDescriptor struct {
	Kind      Kind
	TypeName  string
	Ancestors []string
	GoType    reflect.Type
}

// Describe computes the shape descriptor of v.
func Describe(v Value) ShapeDescriptor {
	switch tv := v.(type) {
	case *Composite:
		return ShapeDescriptor{Kind: KindComposite, TypeName: tv.Type, Ancestors: tv.Ancestors, GoType: tv.goType}
	case *Opaque:
		return ShapeDescriptor{Kind: KindOpaque, TypeName: tv.Resource, GoType: tv.goType}
	case *Sequence:
		return ShapeDescriptor{Kind: KindSequence, TypeName: tv.Type}
	case Int:
		return ShapeDescriptor{Kind: KindInt, TypeName: tv.Type, GoType: tv.goType}
	case Float:
		return ShapeDescriptor{Kind: KindFloat, TypeName: tv.Type}
	case String:
		return ShapeDescriptor{Kind: KindString, TypeName: tv.Type}
	case nil:
		return ShapeDescriptor{Kind: KindNull}
	}
	return ShapeDescriptor{Kind: v.Kind()}
}
