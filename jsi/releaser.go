package jsi

import (
	"sync"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"

	"github.com/wippyai/jsibridge/resource"
)

// releaser is the single release point shared by every wrapper in this
// package. Explicit Release calls, reclamation cleanups and runtime
// teardown all end up in fire, and only the first call runs fn.
//
// A releaser must never reference the wrapper that owns it: it is the
// argument of that wrapper's runtime cleanup and would keep it alive.
type releaser struct {
	fn    func()
	kind  string
	size  int
	fired atomix.Uint32

	mu      sync.Mutex
	table   *resource.Table
	handle  resource.Handle
	exposed bool
}

func newReleaser(kind string, fn func()) *releaser {
	return &releaser{kind: kind, fn: fn}
}

// fire runs the release action at most once. Panics raised by the action
// are logged and swallowed: fire runs during teardown, often on the Go
// cleanup goroutine, where nothing can recover from them.
func (r *releaser) fire() {
	if r.fired.Add(1) != 1 {
		return
	}

	r.mu.Lock()
	table, handle := r.table, r.handle
	r.table = nil
	r.mu.Unlock()

	if table != nil {
		table.Forget(handle)
	}

	fn := r.fn
	r.fn = nil
	if fn == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			Logger().Error("deallocator panicked",
				zap.String("kind", r.kind),
				zap.Any("panic", p),
			)
		}
	}()
	fn()
}

// disarm marks the releaser as fired without running its action.
// Used when an attachment fails and the action was never handed over.
func (r *releaser) disarm() {
	if r.fired.Add(1) != 1 {
		return
	}
	r.fn = nil
}

func (r *releaser) released() bool {
	return r.fired.Load() != 0
}

// Drop implements resource.Dropper so that a closing table releases
// whatever is still live.
func (r *releaser) Drop() {
	r.fire()
}

// expose claims the right to hand the releaser's resource to the engine.
// It reports false if the resource was already claimed.
func (r *releaser) expose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exposed {
		return false
	}
	r.exposed = true
	return true
}

func (r *releaser) unexpose() {
	r.mu.Lock()
	r.exposed = false
	r.mu.Unlock()
}

// track registers r in table unless it is already tracked or released.
func (r *releaser) track(table *resource.Table, typeID resource.TypeID) {
	if table == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table != nil || r.released() {
		return
	}
	if h := table.Insert(typeID, r); h != 0 {
		r.table, r.handle = table, h
	}
}
