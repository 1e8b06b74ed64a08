package lens

import (
	"reflect"
	"slices"
	"sync"
)

// RenderFunc renders a value claimed by a registry entry. Returning a zero Fragment defers to the
// structural rendering.
type RenderFunc func(rc *RenderContext, v Value, depth int) Fragment

// Matcher decides if a registry entry applies to a shape.
type Matcher func(ShapeDescriptor) bool

type registryEntry struct {
	name   string
	match  Matcher
	render RenderFunc
}

// Registry is an ordered table of render functions. Lookups first try an exact type name match, then the
// entries in registration order; more specific entries must therefore be registered before general ones.
// Resolution never modifies the registry.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]RenderFunc
	entries  []registryEntry
	fallback RenderFunc
}

func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]RenderFunc)}
}

// Register claims the named type. Composites embedding the type also match, after all exact matches.
func (r *Registry) Register(typeName string, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[typeName] = fn
	r.entries = append(r.entries, registryEntry{
		name:   typeName,
		match:  func(d ShapeDescriptor) bool { return slices.Contains(d.Ancestors, typeName) },
		render: fn,
	})
}

// RegisterType claims a Go type. Interface types are matched as a capability against every value whose
// type, or pointer to type, implements them.
func (r *Registry) RegisterType(t reflect.Type, fn RenderFunc) {
	if t.Kind() != reflect.Interface {
		r.Register(t.String(), fn)
		return
	}
	r.RegisterMatch(t.String(), func(d ShapeDescriptor) bool {
		return d.GoType != nil && (d.GoType.Implements(t) ||
			(d.GoType.Kind() != reflect.Pointer && reflect.PointerTo(d.GoType).Implements(t)))
	}, fn)
}

// RegisterMatch appends an entry using an arbitrary predicate.
func (r *Registry) RegisterMatch(name string, m Matcher, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{name: name, match: m, render: fn})
}

// SetDefault sets the entry used by ResolveWithDefault when nothing else matches.
func (r *Registry) SetDefault(fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// Resolve finds the render function for a shape.
func (r *Registry) Resolve(d ShapeDescriptor) (RenderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(d)
}

// ResolveWithDefault is Resolve falling back to the default entry.
func (r *Registry) ResolveWithDefault(d ShapeDescriptor) (RenderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.resolveLocked(d); ok {
		return fn, true
	}
	return r.fallback, r.fallback != nil
}

func (r *Registry) resolveLocked(d ShapeDescriptor) (RenderFunc, bool) {
	if d.TypeName != "" {
		if fn, ok := r.exact[d.TypeName]; ok {
			return fn, true
		}
	}
	for _, e := range r.entries {
		if e.match(d) {
			return e.render, true
		}
	}
	return nil, false
}

// Names lists the entry names in resolution order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Clone copies the registry so it can be extended without affecting dumpers sharing the original.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{exact: make(map[string]RenderFunc, len(r.exact)), fallback: r.fallback}
	for k, v := range r.exact {
		c.exact[k] = v
	}
	c.entries = append([]registryEntry(nil), r.entries...)
	return c
}

// Formatters pairs the full handler registry with the short registry used once the depth budget is exhausted.
type Formatters struct {
	Handlers *Registry
	Short    *Registry
}

// NewFormatters returns registries populated with the built in handlers.
func NewFormatters() *Formatters {
	f := &Formatters{Handlers: NewRegistry(), Short: NewRegistry()}
	registerBuiltinHandlers(f)
	return f
}

// Register is shorthand for f.Handlers.Register.
func (f *Formatters) Register(typeName string, fn RenderFunc) {
	f.Handlers.Register(typeName, fn)
}

// RegisterShort is shorthand for f.Short.Register.
func (f *Formatters) RegisterShort(typeName string, fn RenderFunc) {
	f.Short.Register(typeName, fn)
}
