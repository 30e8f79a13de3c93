package jsi

import (
	"runtime"

	"github.com/dop251/goja"

	"github.com/wippyai/jsibridge/errors"
)

// ObjectDeallocator is a holder stored in an object's native-state slot.
// When the engine reclaims the object, the holder becomes unreachable
// and its action runs once on the Go cleanup goroutine.
//
// Keeping a reference to the holder keeps the action pending, so most
// callers discard it.
type ObjectDeallocator struct {
	release *releaser
	cleanup runtime.Cleanup
}

// SetDeallocator attaches fn to obj. An object has a single slot: a
// second holder, or a NativeState, replaces the first one, and the
// replaced holder fires when it is itself reclaimed. The slot is hidden
// from scripts and cannot be deleted or overwritten by them.
//
// fn may run on any goroutine and must not call into the engine. Panics
// raised by fn are logged and swallowed.
//
// If attaching fails, fn is never called and stays the caller's
// responsibility.
func (r *Runtime) SetDeallocator(obj *goja.Object, fn func()) (*ObjectDeallocator, error) {
	if obj == nil {
		return nil, errors.InvalidInput(errors.PhaseAttach, "nil object")
	}

	d := newObjectDeallocator("object deallocator", fn)
	prev, err := r.setSlot(obj, d)
	if err != nil {
		d.discard()
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindInvalidInput, err, "attach deallocator")
	}
	if p, ok := prev.(Attachable); ok {
		r.forgetOwner(p, obj)
	}
	d.release.track(r.table, typeDeallocator)
	return d, nil
}

func newObjectDeallocator(kind string, fn func()) *ObjectDeallocator {
	d := &ObjectDeallocator{release: newReleaser(kind, fn)}
	d.cleanup = runtime.AddCleanup(d, (*releaser).fire, d.release)
	return d
}

// discard drops a holder that was never attached without running its
// action.
func (d *ObjectDeallocator) discard() {
	d.cleanup.Stop()
	d.release.disarm()
}

// Release runs the action now instead of waiting for reclamation.
func (d *ObjectDeallocator) Release() {
	d.cleanup.Stop()
	d.release.fire()
}

// Released reports whether the action has run.
func (d *ObjectDeallocator) Released() bool {
	return d.release.released()
}
