package jsi

import (
	"code.hybscloud.com/atomix"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/wippyai/jsibridge/errors"
	"github.com/wippyai/jsibridge/resource"
)

// Type IDs of the values a Runtime tracks in its resource table.
const (
	typeMemoryBuffer resource.TypeID = iota + 1
	typeDeallocator
	typeHostFunction
	typeNativeState
	typeRetainedPointer
)

// Runtime wraps a goja VM with the state the bridge needs: the hidden
// native-state slot, typed array intrinsics, the scheduler binding and a
// table of every live wrapper handed to the engine.
//
// Methods that touch the VM must be called from the engine's execution
// context, like any other goja call.
type Runtime struct {
	vm        *goja.Runtime
	executor  RuntimeExecutor
	table     *resource.Table
	ownsTable bool
	stateKey  *goja.Symbol
	views     *typedArrayIntrinsics
	events    *handleEvents
	closed    atomix.Uint32
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecutor binds the runtime to a scheduler. Jobs passed to exec must
// run later on the engine's execution context.
func WithExecutor(exec RuntimeExecutor) Option {
	return func(r *Runtime) {
		r.executor = exec
	}
}

// WithEventLoop binds the runtime to loop. The VM must be the one the
// loop runs.
func WithEventLoop(loop *eventloop.EventLoop) Option {
	return func(r *Runtime) {
		if loop != nil {
			r.executor = LoopExecutor(loop)
		}
	}
}

// WithTable tracks live wrappers in an existing table instead of a
// private one. A shared table is not closed by Runtime.Close.
func WithTable(t *resource.Table) Option {
	return func(r *Runtime) {
		if t != nil {
			r.table = t
		}
	}
}

// NewRuntime prepares vm for the bridge. Must be called on the engine's
// execution context.
func NewRuntime(vm *goja.Runtime, opts ...Option) (*Runtime, error) {
	if vm == nil {
		return nil, errors.NotInitialized(errors.PhaseAttach, "goja runtime")
	}

	r := &Runtime{
		vm:       vm,
		stateKey: goja.NewSymbol("jsi.nativeState"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.table == nil {
		r.table = resource.NewTable()
		r.ownsTable = true
	}

	views, err := loadTypedArrayIntrinsics(vm)
	if err != nil {
		return nil, err
	}
	r.views = views

	r.events = &handleEvents{}
	r.table.Subscribe(r.events)
	return r, nil
}

// VM returns the wrapped goja runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Runtime returns the wrapped goja runtime, which makes *Runtime a
// jsibridge.RuntimeProvider.
func (r *Runtime) Runtime() *goja.Runtime {
	return r.vm
}

// Table returns the table of live wrappers.
func (r *Runtime) Table() *resource.Table {
	return r.table
}

// LiveHandles returns the number of wrappers that were handed to the
// engine and have not been released yet.
func (r *Runtime) LiveHandles() int {
	return r.table.Len()
}

// ExternalMemory returns the number of bytes held by live MemoryBuffers
// exposed through NewArrayBuffer.
func (r *Runtime) ExternalMemory() int {
	total := 0
	r.table.Each(func(_ resource.Handle, typeID resource.TypeID, v any) bool {
		if typeID == typeMemoryBuffer {
			if rel, ok := v.(*releaser); ok {
				total += rel.size
			}
		}
		return true
	})
	return total
}

// Close releases every wrapper still tracked by the runtime. Each
// deallocator runs exactly once, either here or earlier. Close does not
// stop the VM and is a no-op after the first call.
func (r *Runtime) Close() error {
	if r.closed.Add(1) != 1 {
		return nil
	}
	r.table.Unsubscribe(r.events)
	if !r.ownsTable {
		return nil
	}
	return r.table.Close()
}

// NewArrayBuffer exposes buf to the engine without copying. The returned
// ArrayBuffer aliases buf.Data()[:buf.Size()], and buf is released once
// the engine reclaims it. The release is tied to the ArrayBuffer itself,
// not to its native-state slot, so neither scripts nor SetNativeState can
// end it early. A buffer can be exposed only once.
func (r *Runtime) NewArrayBuffer(buf *MemoryBuffer) (*goja.Object, error) {
	if buf == nil {
		return nil, errors.InvalidInput(errors.PhaseBuffer, "nil memory buffer")
	}
	if buf.Released() {
		return nil, errors.Released(errors.PhaseBuffer, "memory buffer")
	}
	if buf.size < 0 || buf.size > cap(buf.data) {
		return nil, errors.OutOfBounds(errors.PhaseBuffer, 0, buf.size, cap(buf.data))
	}
	if !buf.release.expose() {
		return nil, errors.InvalidInput(errors.PhaseBuffer, "memory buffer already exposed to the engine")
	}

	ab := r.vm.NewArrayBuffer(buf.data[:buf.size])
	obj, ok := r.vm.ToValue(ab).(*goja.Object)
	if !ok {
		buf.release.unexpose()
		return nil, errors.TypeMismatch(errors.PhaseBuffer, "*goja.Object", "ArrayBuffer")
	}

	d := newObjectDeallocator("memory buffer holder", buf.Release)
	if err := r.hold(obj, d); err != nil {
		d.discard()
		buf.release.unexpose()
		return nil, errors.Wrap(errors.PhaseBuffer, errors.KindInvalidInput, err, "attach memory buffer")
	}
	buf.release.track(r.table, typeMemoryBuffer)
	return obj, nil
}

// NewHostFunction exposes fn to the engine as a function object named
// name. fn stays alive while the engine can call it; its deallocator runs
// once the function object is reclaimed. Errors returned by fn are thrown
// into the engine.
func (r *Runtime) NewHostFunction(name string, fn HostFunction) (*goja.Object, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil host function")
	}
	if fn.Released() {
		return nil, errors.Released(errors.PhaseCall, "host function")
	}

	vm := r.vm
	obj, ok := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if fn.Released() {
			panic(vm.NewGoError(errors.Released(errors.PhaseCall, "host function "+name)))
		}
		v, err := fn.Call(call.This, call.Arguments)
		if err != nil {
			if exc, ok := err.(*goja.Exception); ok {
				panic(exc.Value())
			}
			panic(vm.NewGoError(err))
		}
		if v == nil {
			return goja.Undefined()
		}
		return v
	}).(*goja.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseCall, "*goja.Object", "Function")
	}

	if name != "" {
		if err := obj.DefineDataProperty("name", vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return nil, errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, "name host function")
		}
	}

	fn.retained().track(r.table, typeHostFunction)
	return obj, nil
}

// handleEvents logs the lifecycle of the wrappers a Runtime tracks.
type handleEvents struct{}

func (h *handleEvents) OnResourceEvent(e resource.Event) {
	kind := "unknown"
	if rel, ok := e.Value.(*releaser); ok {
		kind = rel.kind
	}
	Logger().Debug("handle "+e.Type.String(),
		zap.Uint32("handle", uint32(e.Handle)),
		zap.String("kind", kind),
	)
}

// Retain tracks p so that Close releases it if nothing else has.
func (r *Runtime) Retain(p interface{ retained() *releaser }) {
	p.retained().track(r.table, typeRetainedPointer)
}

// slotEntry is the Go value stored behind the native-state symbol. The
// property is defined once per object as non-writable and
// non-configurable, so scripts can neither delete nor replace it; the
// slot changes by mutating the entry. It has no exported fields or
// methods, so scripts see an empty object.
type slotEntry struct {
	owner   *goja.Object
	value   any
	backing *ObjectDeallocator
}

// entry returns obj's own slot entry. An entry inherited through the
// prototype chain belongs to another object and is ignored.
func (r *Runtime) entry(obj *goja.Object) *slotEntry {
	if obj == nil {
		return nil
	}
	v := obj.GetSymbol(r.stateKey)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	e, ok := v.Export().(*slotEntry)
	if !ok || e == nil || e.owner != obj {
		return nil
	}
	return e
}

// attachEntry returns obj's slot entry, defining it on first use.
func (r *Runtime) attachEntry(obj *goja.Object) (*slotEntry, error) {
	if e := r.entry(obj); e != nil {
		return e, nil
	}
	e := &slotEntry{owner: obj}
	if err := obj.DefineDataPropertySymbol(r.stateKey, r.vm.ToValue(e), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	if r.entry(obj) != e {
		return nil, errors.New(errors.PhaseAttach, errors.KindInvalidInput).
			JSType(obj.ClassName()).
			Detail("object does not keep the native state slot").
			Build()
	}
	return e, nil
}

func (r *Runtime) slot(obj *goja.Object) (any, bool) {
	e := r.entry(obj)
	if e == nil || e.value == nil {
		return nil, false
	}
	return e.value, true
}

// setSlot replaces the slot content of obj and returns what it held.
func (r *Runtime) setSlot(obj *goja.Object, value any) (any, error) {
	e, err := r.attachEntry(obj)
	if err != nil {
		return nil, err
	}
	prev := e.value
	e.value = value
	if prev != nil && prev != value {
		Logger().Debug("native state slot replaced")
	}
	return prev, nil
}

// clearSlot empties obj's slot if it still holds value.
func (r *Runtime) clearSlot(obj *goja.Object, value any) bool {
	e := r.entry(obj)
	if e == nil || e.value == nil || e.value != value {
		return false
	}
	e.value = nil
	return true
}

// hold keeps d reachable for as long as obj is, independently of the
// replaceable slot content.
func (r *Runtime) hold(obj *goja.Object, d *ObjectDeallocator) error {
	e, err := r.attachEntry(obj)
	if err != nil {
		return err
	}
	if e.backing != nil {
		return errors.InvalidInput(errors.PhaseBuffer, "object already owns a memory buffer")
	}
	e.backing = d
	return nil
}
