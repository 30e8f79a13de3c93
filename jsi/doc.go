// Package jsi exchanges buffers, native state and host functions between
// Go and a goja runtime without leaking or double-freeing either side.
//
// Every value handed to the engine carries a release action that runs
// exactly once: when Go code releases it explicitly, when the engine
// reclaims the object that holds it, or when the Runtime is closed.
// Reclamation is observed with runtime.AddCleanup, so release actions may
// run on the Go cleanup goroutine and must not call into the engine.
//
//	rt, err := jsi.NewRuntime(vm, jsi.WithEventLoop(loop))
//	buf := jsi.NewMemoryBuffer(data, func() { pool.Put(data) })
//	view, err := rt.NewTypedArrayOver(jsi.Uint8Array, buf, 0, len(data))
//	vm.Set("input", view.Object())
//
// Typed views never clamp: a window that does not fit its buffer, or one
// that is not aligned to the element size, is rejected before anything is
// created.
//
// # Native state
//
// Each object has one hidden native-state slot shared by ObjectDeallocator
// and NativeState. Attaching replaces the previous content; a replaced
// holder is not released immediately but once it is itself unreachable.
//
// # Scheduling
//
// Scheduler is the only supported way to run native callbacks on the
// engine's execution context from other goroutines. It is bound when the
// Runtime has an executor and unbound otherwise, in which case callbacks
// run inline.
package jsi
