package guest

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	jsibridge "github.com/wippyai/jsibridge"
	"github.com/wippyai/jsibridge/errors"
	"github.com/wippyai/jsibridge/jsi"
)

type pendingFree struct {
	ptr, size, align uint32
}

// Heap exposes guest memory ranges as jsi wrappers.
type Heap struct {
	mem   *Wrapper
	alloc jsibridge.Allocator

	mu      sync.Mutex
	pending []pendingFree
}

// NewHeap returns a heap over mem. alloc may be nil, in which case only
// Lend and Retain are available.
func NewHeap(mem api.Memory, alloc jsibridge.Allocator) (*Heap, error) {
	if mem == nil {
		return nil, errors.NotInitialized(errors.PhaseGuest, "guest memory")
	}
	return &Heap{mem: WrapMemory(mem), alloc: alloc}, nil
}

// FromModule builds a heap from a module exporting "memory" and,
// optionally, "cabi_realloc".
func FromModule(ctx context.Context, mod api.Module) (*Heap, error) {
	return FromModuleExports(ctx, mod, "memory", "cabi_realloc")
}

// FromModuleExports is FromModule with explicit export names. The
// allocator is optional; an empty name skips it.
func FromModuleExports(ctx context.Context, mod api.Module, memory, allocator string) (*Heap, error) {
	if mod == nil {
		return nil, errors.NotInitialized(errors.PhaseGuest, "guest module")
	}
	var alloc jsibridge.Allocator
	if allocator != "" {
		if fn := mod.ExportedFunction(allocator); fn != nil {
			alloc = WrapAllocator(ctx, fn)
		}
	}
	return NewHeap(mod.ExportedMemory(memory), alloc)
}

// Memory returns the wrapped guest memory.
func (h *Heap) Memory() *Wrapper {
	return h.mem
}

// Lend exposes [ptr, ptr+size) of guest memory without copying. The
// guest keeps ownership; releasing the buffer does not free anything.
//
// The buffer aliases the memory's current backing array. When the guest
// grows its memory past the reserved capacity, wazero moves it and the
// buffer keeps pointing at the old bytes; use Aliases to detect this, or
// instantiate the guest with wazero.RuntimeConfig.WithMemoryCapacityFromMax
// so that growing never moves it.
func (h *Heap) Lend(ptr, size uint32) (*jsi.MemoryBuffer, error) {
	data, err := h.mem.Read(ptr, size)
	if err != nil {
		return nil, err
	}
	return jsi.NewMemoryBuffer(data, nil), nil
}

// Allocate reserves size bytes in the guest heap. The allocation is
// queued for freeing when the returned buffer is released. The buffer
// aliases guest memory with the same limits as Lend.
func (h *Heap) Allocate(size, align uint32) (*jsi.MemoryBuffer, error) {
	if h.alloc == nil {
		return nil, errors.NotInitialized(errors.PhaseGuest, "guest allocator")
	}
	ptr, err := h.alloc.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	if ptr == 0 && size > 0 {
		return nil, errors.AllocationFailed(errors.PhaseGuest, size, align, nil)
	}

	data, err := h.mem.Read(ptr, size)
	if err != nil {
		h.alloc.Free(ptr, size, align)
		return nil, err
	}
	return jsi.NewMemoryBuffer(data, func() {
		h.deferFree(ptr, size, align)
	}), nil
}

// Aliases reports whether buf still shares its bytes with guest memory
// at ptr. It turns false once the memory has moved to a new backing
// array. Empty buffers always alias.
func (h *Heap) Aliases(ptr uint32, buf *jsi.MemoryBuffer) bool {
	data := buf.Data()
	if len(data) == 0 {
		return true
	}
	cur, err := h.mem.Read(ptr, uint32(len(data)))
	if err != nil {
		return false
	}
	return &cur[0] == &data[0]
}

// Retain keeps a guest allocation alive until the returned pointer is
// released, then queues it for freeing.
func (h *Heap) Retain(ptr, size, align uint32) *jsi.RetainedPointer[uint32] {
	return jsi.NewRetainedPointer(ptr, func(p uint32) {
		h.deferFree(p, size, align)
	})
}

func (h *Heap) deferFree(ptr, size, align uint32) {
	h.mu.Lock()
	h.pending = append(h.pending, pendingFree{ptr: ptr, size: size, align: align})
	h.mu.Unlock()
}

// Pending returns the number of queued frees.
func (h *Heap) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Collect applies queued frees and returns how many were applied. It
// must be called on the goroutine that owns the module.
func (h *Heap) Collect() int {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if h.alloc == nil {
		return 0
	}
	for _, f := range pending {
		h.alloc.Free(f.ptr, f.size, f.align)
	}
	if len(pending) > 0 {
		Logger().Debug("guest frees applied", zap.Int("count", len(pending)))
	}
	return len(pending)
}
