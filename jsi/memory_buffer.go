package jsi

import (
	"runtime"
)

// MemoryBuffer is a byte range handed to the engine together with the
// obligation to run a cleanup action once nobody uses it anymore.
//
// The buffer does not necessarily own the bytes: data may alias memory
// that belongs to another runtime (a wasm guest, a C allocation). What it
// owns is the cleanup. The cleanup runs exactly once, on Release, when
// the MemoryBuffer is reclaimed, or when the engine reclaims the
// ArrayBuffer created from it by Runtime.NewArrayBuffer, whichever
// happens first.
type MemoryBuffer struct {
	data    []byte
	size    int
	release *releaser
	cleanup runtime.Cleanup
}

// NewMemoryBuffer wraps data. cleanup may be nil.
func NewMemoryBuffer(data []byte, cleanup func()) *MemoryBuffer {
	return NewMemoryBufferSize(data, len(data), cleanup)
}

// NewMemoryBufferSize wraps data with an explicitly advertised size.
// The size is recorded as given; it is validated only when the buffer is
// exposed to the engine.
func NewMemoryBufferSize(data []byte, size int, cleanup func()) *MemoryBuffer {
	b := &MemoryBuffer{
		data:    data,
		size:    size,
		release: newReleaser("memory buffer", cleanup),
	}
	b.release.size = size
	b.cleanup = runtime.AddCleanup(b, (*releaser).fire, b.release)
	return b
}

// Data returns the wrapped bytes unchanged.
func (b *MemoryBuffer) Data() []byte {
	return b.data
}

// Size returns the recorded size in bytes.
func (b *MemoryBuffer) Size() int {
	return b.size
}

// Release runs the cleanup if it has not run yet. Safe to call from any
// goroutine and any number of times.
func (b *MemoryBuffer) Release() {
	b.cleanup.Stop()
	b.release.fire()
}

// Released reports whether the cleanup has already run.
func (b *MemoryBuffer) Released() bool {
	return b.release.released()
}
