package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/jsibridge/guest"
)

// memoryWASM is a minimal module with 1 page of memory exported as "memory".
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79,
	0x02, 0x00,
}

type stackAllocator struct {
	top   uint32
	freed int
}

func (a *stackAllocator) Alloc(size, align uint32) (uint32, error) {
	ptr := (a.top + align - 1) &^ (align - 1)
	a.top = ptr + size
	return ptr, nil
}

func (a *stackAllocator) Free(uint32, uint32, uint32) {
	a.freed++
}

func TestNatives_AllocFromGuestHeap(t *testing.T) {
	ctx := context.Background()
	wrt := wazero.NewRuntime(ctx)
	defer wrt.Close(ctx)

	mod, err := wrt.Instantiate(ctx, memoryWASM)
	require.NoError(t, err)

	alloc := &stackAllocator{top: 256}
	heap, err := guest.NewHeap(mod.ExportedMemory("memory"), alloc)
	require.NoError(t, err)
	require.NoError(t, heap.Memory().Write(256, []byte{0xFF, 0xFF}))

	rt := newRuntime(t)
	vm := rt.VM()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterHost(NewNatives(rt, nil, WithHeap(heap), WithNamespace("sys"))))
	require.NoError(t, reg.Install(rt))

	eval(t, vm, `
		var bytes = new Uint8Array(sys.alloc(8));
		var wasZero = bytes[0] === 0 && bytes[1] === 0;
		bytes[2] = 9;
	`)
	assert.True(t, eval(t, vm, "wasZero").ToBoolean(), "alloc clears guest memory")

	got, err := heap.Memory().Read(258, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(9), got[0])

	require.NoError(t, rt.Close())
	assert.Equal(t, 1, heap.Collect())
	assert.Equal(t, 1, alloc.freed)
}
