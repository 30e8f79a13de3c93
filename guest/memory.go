package guest

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	jsibridge "github.com/wippyai/jsibridge"
	"github.com/wippyai/jsibridge/errors"
)

var (
	_ jsibridge.Memory      = (*Wrapper)(nil)
	_ jsibridge.MemorySizer = (*Wrapper)(nil)
	_ jsibridge.Allocator   = (*AllocatorWrapper)(nil)
)

// WrapMemory adapts a wazero memory. It returns nil for a nil memory.
func WrapMemory(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// WrapAllocator adapts an exported cabi_realloc. It returns nil for a nil
// function.
func WrapAllocator(ctx context.Context, fn api.Function) *AllocatorWrapper {
	if fn == nil {
		return nil
	}
	return &AllocatorWrapper{Ctx: ctx, Fn: fn}
}

// Wrapper adapts wazero api.Memory to jsibridge.Memory.
type Wrapper struct {
	Mem api.Memory
}

// Read returns a view of guest memory. Writes to it are visible to the
// guest until the memory grows into a new backing array.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseGuest, int(offset), int(length), int(m.Mem.Size()))
	}
	return data, nil
}

// Write copies data into guest memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseGuest, int(offset), len(data), int(m.Mem.Size()))
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// AllocatorWrapper adapts wazero api.Function (cabi_realloc) to
// jsibridge.Allocator.
type AllocatorWrapper struct {
	Ctx context.Context
	Fn  api.Function
}

// Alloc allocates memory using cabi_realloc.
func (a *AllocatorWrapper) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseGuest, size, align, err)
	}
	if len(results) == 0 {
		return 0, errors.New(errors.PhaseGuest, errors.KindAllocation).
			Detail("cabi_realloc returned no result").
			Build()
	}
	return uint32(results[0]), nil
}

// Free deallocates memory using cabi_realloc.
func (a *AllocatorWrapper) Free(ptr, size, align uint32) {
	_, _ = a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0)
}
