package host

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/dop251/goja"

	"github.com/wippyai/jsibridge/errors"
	"github.com/wippyai/jsibridge/jsi"
)

// Host is the interface for struct-based host modules. Exported methods
// with the signature of Method are registered under Namespace, named in
// lowerCamelCase (AllocBuffer -> allocBuffer).
type Host interface {
	// Namespace returns the dotted global path the functions are installed
	// under (e.g. "native" or "app.io"). An empty namespace installs on
	// the global object.
	Namespace() string
}

// Method is the signature of host methods picked up by RegisterHost.
type Method = func(this goja.Value, args []goja.Value) (goja.Value, error)

// ExplicitRegistrar allows hosts to provide exact function names instead
// of relying on method name conversion.
type ExplicitRegistrar interface {
	Register() map[string]jsi.HostFunction
}

// Registry collects host functions and installs them into runtimes.
type Registry struct {
	funcs map[string]map[string]jsi.HostFunction
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]map[string]jsi.HostFunction),
	}
}

var methodType = reflect.TypeOf((Method)(nil))

// RegisterHost registers the functions of h.
func (r *Registry) RegisterHost(h Host) error {
	if h == nil {
		return errors.InvalidInput(errors.PhaseCall, "host cannot be nil")
	}
	ns := h.Namespace()

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			if err := r.Register(ns, name, fn); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		bound := rv.Method(i)
		if bound.Type() != methodType {
			continue
		}
		fn := bound.Interface().(Method)
		if err := r.Register(ns, toLowerCamel(method.Name), jsi.Func(fn)); err != nil {
			return err
		}
	}
	return nil
}

// Register adds fn as namespace.name. Names are unique per namespace.
func (r *Registry) Register(namespace, name string, fn jsi.HostFunction) error {
	if name == "" {
		return errors.Registration(namespace, name, errors.InvalidInput(errors.PhaseCall, "function name cannot be empty"))
	}
	if fn == nil {
		return errors.Registration(namespace, name, errors.InvalidInput(errors.PhaseCall, "function cannot be nil"))
	}
	for _, part := range splitNamespace(namespace) {
		if part == "" {
			return errors.Registration(namespace, name, errors.InvalidInput(errors.PhaseCall, "empty namespace segment"))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]jsi.HostFunction)
	}
	if _, exists := r.funcs[namespace][name]; exists {
		return errors.Registration(namespace, name, errors.InvalidInput(errors.PhaseCall, "already registered"))
	}
	r.funcs[namespace][name] = fn
	return nil
}

// RegisterFunc registers a plain Go function.
func (r *Registry) RegisterFunc(namespace, name string, fn Method) error {
	if fn == nil {
		return errors.Registration(namespace, name, errors.InvalidInput(errors.PhaseCall, "function cannot be nil"))
	}
	return r.Register(namespace, name, jsi.Func(fn))
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Functions returns the function names of namespace in sorted order.
func (r *Registry) Functions(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs[namespace]))
	for name := range r.funcs[namespace] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Install creates a function object for every registered function and
// assigns it under its namespace on the global object, creating
// intermediate objects as needed. Must be called on the engine's
// execution context.
//
// The registry keeps owning its functions: each runtime gets its own
// wrapper, so closing a runtime never releases a function that other
// runtimes or later installs still use.
func (r *Registry) Install(rt *jsi.Runtime) error {
	if rt == nil {
		return errors.NotInitialized(errors.PhaseCall, "runtime")
	}
	vm := rt.VM()

	for _, ns := range r.Namespaces() {
		target, err := namespaceObject(vm, ns)
		if err != nil {
			return errors.Registration(ns, "", err)
		}

		r.mu.RLock()
		funcs := r.funcs[ns]
		r.mu.RUnlock()

		for _, name := range r.Functions(ns) {
			fn := funcs[name]
			if fn.Released() {
				return errors.Registration(ns, name, errors.Released(errors.PhaseCall, "host function"))
			}
			obj, err := rt.NewHostFunction(name, installed(fn))
			if err != nil {
				return errors.Registration(ns, name, err)
			}
			if err := target.Set(name, obj); err != nil {
				return errors.Registration(ns, name, err)
			}
		}
	}
	return nil
}

// installed wraps a registry-owned function for a single runtime.
func installed(fn jsi.HostFunction) jsi.HostFunction {
	return jsi.NewHostFunctionClosure(fn, func(fn jsi.HostFunction, this goja.Value, args []goja.Value) (goja.Value, error) {
		if fn.Released() {
			return nil, errors.Released(errors.PhaseCall, "host function")
		}
		return fn.Call(this, args)
	}, nil)
}

func splitNamespace(ns string) []string {
	if ns == "" {
		return nil
	}
	return strings.Split(ns, ".")
}

func namespaceObject(vm *goja.Runtime, ns string) (*goja.Object, error) {
	target := vm.GlobalObject()
	for _, part := range splitNamespace(ns) {
		existing := target.Get(part)
		if obj, ok := existing.(*goja.Object); ok {
			target = obj
			continue
		}
		if existing != nil && !goja.IsUndefined(existing) && !goja.IsNull(existing) {
			return nil, errors.TypeMismatch(errors.PhaseCall, "*goja.Object", existing.ExportType().String())
		}
		obj := vm.NewObject()
		if err := target.Set(part, obj); err != nil {
			return nil, err
		}
		target = obj
	}
	return target, nil
}

// toLowerCamel converts a Go method name to a JS function name.
// Handles leading acronyms: HTTPGet -> httpGet, ID -> id.
func toLowerCamel(s string) string {
	runes := []rune(s)
	i := 0
	for i < len(runes) && unicode.IsUpper(runes[i]) {
		i++
	}
	switch {
	case i == 0:
		return s
	case i == 1 || i == len(runes):
		// single capital, or the whole name is an acronym
	default:
		// last capital starts the next word
		i--
	}
	for j := 0; j < i; j++ {
		runes[j] = unicode.ToLower(runes[j])
	}
	return string(runes)
}
