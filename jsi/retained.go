package jsi

import (
	"runtime"

	"github.com/dop251/goja"
)

// foreignPointer holds a context that belongs to the other side of the
// bridge together with the releaser that hands it back. It is embedded
// by every retained wrapper; the embedding type registers the reclamation
// cleanup on itself so that the wrapper, not the context, decides when
// the deallocator runs.
type foreignPointer[T any] struct {
	context T
	release *releaser
	cleanup runtime.Cleanup
}

func newForeignPointer[T any](kind string, context T, deallocator func(T)) foreignPointer[T] {
	var fn func()
	if deallocator != nil {
		fn = func() { deallocator(context) }
	}
	return foreignPointer[T]{
		context: context,
		release: newReleaser(kind, fn),
	}
}

// Context returns the retained context. It must not be used after the
// wrapper has been released.
func (p *foreignPointer[T]) Context() T {
	return p.context
}

// Release runs the deallocator if it has not run yet.
func (p *foreignPointer[T]) Release() {
	p.cleanup.Stop()
	p.release.fire()
}

// Released reports whether the deallocator has already run.
func (p *foreignPointer[T]) Released() bool {
	return p.release.released()
}

func (p *foreignPointer[T]) retained() *releaser {
	return p.release
}

// RetainedPointer retains a context owned by another runtime and calls
// deallocator(context) exactly once: on Release, or when the wrapper
// itself is reclaimed.
//
// The deallocator may run on any goroutine. It must not assume exclusive
// access to anything it does not own, and the context must not reference
// the RetainedPointer.
type RetainedPointer[T any] struct {
	foreignPointer[T]
}

// NewRetainedPointer retains context until the returned wrapper is released.
func NewRetainedPointer[T any](context T, deallocator func(T)) *RetainedPointer[T] {
	p := &RetainedPointer[T]{
		foreignPointer: newForeignPointer("retained pointer", context, deallocator),
	}
	p.cleanup = runtime.AddCleanup(p, (*releaser).fire, p.release)
	return p
}

// HostClosure implements a host function. It receives the retained
// context, the JS this value and the call arguments.
type HostClosure[T any] func(context T, this goja.Value, args []goja.Value) (goja.Value, error)

// HostFunction is a retained native callable that the engine can invoke.
type HostFunction interface {
	Call(this goja.Value, args []goja.Value) (goja.Value, error)
	Released() bool
	retained() *releaser
}

// HostFunctionClosure is a retained context plus the closure that
// implements a host function on top of it. Exposed to the engine with
// Runtime.NewHostFunction, it stays alive exactly as long as the engine
// can call it; the deallocator runs once the function object is reclaimed.
type HostFunctionClosure[T any] struct {
	foreignPointer[T]
	closure HostClosure[T]
}

// NewHostFunctionClosure retains context for closure.
func NewHostFunctionClosure[T any](context T, closure HostClosure[T], deallocator func(T)) *HostFunctionClosure[T] {
	h := &HostFunctionClosure[T]{
		foreignPointer: newForeignPointer("host function", context, deallocator),
		closure:        closure,
	}
	h.cleanup = runtime.AddCleanup(h, (*releaser).fire, h.release)
	return h
}

// Call invokes the closure with the retained context.
// It is only called from the engine's execution context.
func (h *HostFunctionClosure[T]) Call(this goja.Value, args []goja.Value) (goja.Value, error) {
	return h.closure(h.context, this, args)
}

// Func adapts a plain Go function that needs no retained context.
func Func(fn func(this goja.Value, args []goja.Value) (goja.Value, error)) *HostFunctionClosure[struct{}] {
	return NewHostFunctionClosure(struct{}{}, func(_ struct{}, this goja.Value, args []goja.Value) (goja.Value, error) {
		return fn(this, args)
	}, nil)
}
