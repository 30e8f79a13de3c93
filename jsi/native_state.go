package jsi

import (
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"

	"github.com/wippyai/jsibridge/errors"
)

// Attachable is implemented by native states that can live in an
// object's native-state slot.
type Attachable interface {
	Released() bool
	link() *stateLink
	retained() *releaser
}

// stateLink records the object a state is currently attached to. The
// owner is held weakly: the object holds the state, never the reverse.
type stateLink struct {
	mu    sync.Mutex
	rt    *Runtime
	owner weak.Pointer[goja.Object]
}

// NativeState is a retained context attached to one engine object at a
// time. Its deallocator runs once the state is neither attached to a live
// object nor referenced from Go, or on Release.
type NativeState[T any] struct {
	foreignPointer[T]
	state stateLink
}

// NewNativeState retains context until the returned state is released.
func NewNativeState[T any](context T, deallocator func(T)) *NativeState[T] {
	s := &NativeState[T]{
		foreignPointer: newForeignPointer("native state", context, deallocator),
	}
	s.cleanup = runtime.AddCleanup(s, (*releaser).fire, s.release)
	return s
}

func (s *NativeState[T]) link() *stateLink {
	return &s.state
}

// Owner returns the object the state is attached to, or nil.
func (s *NativeState[T]) Owner() *goja.Object {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.owner.Value()
}

// SetNativeState attaches state to obj, replacing whatever the slot held.
// A state moves rather than being shared: if it is attached to another
// live object, it is detached from that object first.
func (r *Runtime) SetNativeState(obj *goja.Object, state Attachable) error {
	if obj == nil {
		return errors.InvalidInput(errors.PhaseAttach, "nil object")
	}
	if state == nil {
		return errors.InvalidInput(errors.PhaseAttach, "nil native state")
	}
	if state.Released() {
		return errors.Released(errors.PhaseAttach, "native state")
	}

	l := state.link()
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := r.setSlot(obj, state)
	if err != nil {
		return errors.Wrap(errors.PhaseAttach, errors.KindInvalidInput, err, "attach native state")
	}

	if old := l.owner.Value(); old != nil && old != obj && l.rt != nil {
		if l.rt.clearSlot(old, state) {
			Logger().Debug("native state moved to another object")
		}
	}
	l.rt, l.owner = r, weak.Make(obj)

	if prev != nil && prev != any(state) {
		if p, ok := prev.(Attachable); ok {
			r.forgetOwner(p, obj)
		}
	}

	state.retained().track(r.table, typeNativeState)
	return nil
}

// HasNativeState reports whether obj's native-state slot holds anything,
// including an ObjectDeallocator.
func (r *Runtime) HasNativeState(obj *goja.Object) bool {
	_, ok := r.slot(obj)
	return ok
}

// UnsetNativeState empties obj's native-state slot. The removed state is
// not released; it follows its own release rule.
func (r *Runtime) UnsetNativeState(obj *goja.Object) error {
	if obj == nil {
		return errors.InvalidInput(errors.PhaseAttach, "nil object")
	}
	prev, ok := r.slot(obj)
	if !ok {
		return nil
	}
	r.clearSlot(obj, prev)
	if p, ok := prev.(Attachable); ok {
		r.forgetOwner(p, obj)
	}
	return nil
}

// GetNativeState returns the state of type *NativeState[T] attached to
// obj. It reports false if the slot is empty, holds another type or holds
// a released state.
func GetNativeState[T any](r *Runtime, obj *goja.Object) (*NativeState[T], bool) {
	v, ok := r.slot(obj)
	if !ok {
		return nil, false
	}
	s, ok := v.(*NativeState[T])
	if !ok || s.Released() {
		return nil, false
	}
	return s, true
}

func (r *Runtime) forgetOwner(state Attachable, obj *goja.Object) {
	l := state.link()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner.Value() == obj {
		l.rt, l.owner = nil, weak.Pointer[goja.Object]{}
	}
}
