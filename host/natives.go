package host

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/jsibridge/errors"
	"github.com/wippyai/jsibridge/guest"
	"github.com/wippyai/jsibridge/jsi"
)

// Natives is the standard host module. Its functions let scripts
// allocate native buffers, build typed views and schedule callbacks.
type Natives struct {
	rt        *jsi.Runtime
	scheduler *jsi.Scheduler
	heap      *guest.Heap
	namespace string
	priority  jsi.SchedulerPriority
}

// NativesOption configures Natives.
type NativesOption func(*Natives)

// WithHeap makes alloc allocate from a wasm guest heap instead of Go
// memory.
func WithHeap(h *guest.Heap) NativesOption {
	return func(n *Natives) {
		n.heap = h
	}
}

// WithNamespace installs the natives under ns instead of "native".
func WithNamespace(ns string) NativesOption {
	return func(n *Natives) {
		n.namespace = ns
	}
}

// WithDefaultPriority sets the priority of schedule calls that pass only
// a callback.
func WithDefaultPriority(p jsi.SchedulerPriority) NativesOption {
	return func(n *Natives) {
		n.priority = p
	}
}

// NewNatives returns the standard natives for rt. A nil scheduler makes
// schedule run callbacks inline.
func NewNatives(rt *jsi.Runtime, scheduler *jsi.Scheduler, opts ...NativesOption) *Natives {
	n := &Natives{rt: rt, scheduler: scheduler, namespace: "native", priority: jsi.NormalPriority}
	for _, opt := range opts {
		opt(n)
	}
	if n.scheduler == nil {
		n.scheduler = jsi.NewScheduler(nil)
	}
	return n
}

func (n *Natives) Namespace() string {
	return n.namespace
}

// Alloc returns a new zero-filled ArrayBuffer of args[0] bytes.
func (n *Natives) Alloc(_ goja.Value, args []goja.Value) (goja.Value, error) {
	size, err := intArg(args, 0, "size")
	if err != nil {
		return nil, err
	}

	var buf *jsi.MemoryBuffer
	if n.heap != nil {
		buf, err = n.heap.Allocate(uint32(size), 8)
		if err != nil {
			return nil, err
		}
		clear(buf.Data())
	} else {
		buf = jsi.NewMemoryBuffer(make([]byte, size), nil)
	}

	ab, err := n.rt.NewArrayBuffer(buf)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return ab, nil
}

// View returns a typed array: view(kind, buffer, byteOffset, byteLength).
// kind is a constructor name or a numeric tag.
func (n *Natives) View(_ goja.Value, args []goja.Value) (goja.Value, error) {
	kind, err := kindArg(args, 0)
	if err != nil {
		return nil, err
	}
	buffer, ok := arg(args, 1).(*goja.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseView, "ArrayBuffer", typeOf(arg(args, 1)))
	}
	offset, err := intArg(args, 2, "byteOffset")
	if err != nil {
		return nil, err
	}
	length, err := intArg(args, 3, "byteLength")
	if err != nil {
		return nil, err
	}

	view, err := n.rt.NewTypedArray(kind, buffer, offset, length)
	if err != nil {
		return nil, err
	}
	return view.Object(), nil
}

// Slice returns the ArrayBuffer holding exactly the bytes viewed by a
// typed array; the backing buffer itself when the view covers it.
func (n *Natives) Slice(_ goja.Value, args []goja.Value) (goja.Value, error) {
	view, err := n.rt.AsTypedArray(arg(args, 0))
	if err != nil {
		return nil, err
	}
	return view.ViewedBufferSlice()
}

// KindOf returns the numeric kind tag of a typed array, or 0.
func (n *Natives) KindOf(_ goja.Value, args []goja.Value) (goja.Value, error) {
	kind, _ := n.rt.TypedArrayKindOf(arg(args, 0))
	return n.rt.VM().ToValue(int(kind)), nil
}

// IsTypedArray reports whether args[0] is a genuine typed array.
func (n *Natives) IsTypedArray(_ goja.Value, args []goja.Value) (goja.Value, error) {
	return n.rt.VM().ToValue(n.rt.IsTypedArray(arg(args, 0))), nil
}

// Schedule runs a callback through the scheduler: schedule(priority, fn)
// or schedule(fn) with the default priority. priority is a number from 1
// (immediate) to 5 (idle) or its name.
//
// A callback that throws is not caught here: the failure is rethrown
// from the scheduled job and reaches whatever runs the engine's loop, or
// the caller of schedule when the scheduler runs callbacks inline.
func (n *Natives) Schedule(_ goja.Value, args []goja.Value) (goja.Value, error) {
	priority := n.priority
	if _, ok := goja.AssertFunction(arg(args, 0)); !ok {
		p, err := priorityArg(args, 0)
		if err != nil {
			return nil, err
		}
		priority = p
		args = args[1:]
	}
	callback, ok := goja.AssertFunction(arg(args, 0))
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseSchedule, "function", typeOf(arg(args, 0)))
	}

	n.scheduler.ScheduleJob(priority, func(*goja.Runtime) {
		if _, err := callback(goja.Undefined()); err != nil {
			Logger().Debug("scheduled callback threw",
				zap.Stringer("priority", priority),
				zap.Error(err),
			)
			panic(err)
		}
	})
	return goja.Undefined(), nil
}

// Stats reports live handle, external memory and queue counters.
func (n *Natives) Stats(_ goja.Value, _ []goja.Value) (goja.Value, error) {
	vm := n.rt.VM()
	obj := vm.NewObject()
	for name, v := range map[string]int{
		"liveHandles":    n.rt.LiveHandles(),
		"externalMemory": n.rt.ExternalMemory(),
		"pendingTasks":   n.scheduler.Pending(),
	} {
		if err := obj.Set(name, v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func arg(args []goja.Value, i int) goja.Value {
	if i < len(args) {
		return args[i]
	}
	return goja.Undefined()
}

func intArg(args []goja.Value, i int, name string) (int, error) {
	v := arg(args, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(name).
			Detail("missing argument %d", i).
			Build()
	}
	n := v.ToInteger()
	if n < 0 || n > 1<<31-1 {
		return 0, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(name).
			Value(n).
			Detail("must be between 0 and 2^31-1").
			Build()
	}
	return int(n), nil
}

func priorityArg(args []goja.Value, i int) (jsi.SchedulerPriority, error) {
	v := arg(args, i)
	if s, ok := v.Export().(string); ok {
		if p, ok := jsi.ParseSchedulerPriority(s); ok {
			return p, nil
		}
		return 0, errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Path("priority").
			Detail("unknown priority %q", s).
			Build()
	}
	n, err := intArg(args, i, "priority")
	if err != nil {
		return 0, err
	}
	p := jsi.SchedulerPriority(n)
	if p < jsi.ImmediatePriority || p > jsi.IdlePriority {
		return 0, errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Path("priority").
			Value(n).
			Detail("must be between %d and %d", jsi.ImmediatePriority, jsi.IdlePriority).
			Build()
	}
	return p, nil
}

func kindArg(args []goja.Value, i int) (jsi.TypedArrayKind, error) {
	v := arg(args, i)
	if s, ok := v.Export().(string); ok {
		if kind, ok := jsi.ParseTypedArrayKind(s); ok {
			return kind, nil
		}
		return 0, errors.New(errors.PhaseView, errors.KindInvalidInput).
			Path("kind").
			Detail("unknown typed array kind %q", s).
			Build()
	}
	n, err := intArg(args, i, "kind")
	if err != nil {
		return 0, err
	}
	return jsi.TypedArrayKind(n), nil
}

func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj.ClassName()
	}
	if t := v.ExportType(); t != nil {
		return t.String()
	}
	return "unknown"
}
