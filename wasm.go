package jsibridge

import "github.com/dop251/goja"

// RuntimeProvider gives collaborators access to the active engine.
// Runtime returns nil when no engine is available.
type RuntimeProvider interface {
	Runtime() *goja.Runtime
}

// Memory is a linear memory owned by a foreign runtime, typically a wasm
// guest. Offsets are guest addresses.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates from a foreign runtime's heap.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
