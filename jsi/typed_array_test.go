package jsi

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/jsibridge/errors"
)

func TestTypedArrayKind_Tags(t *testing.T) {
	tests := []struct {
		kind TypedArrayKind
		tag  uint8
		name string
		size int
	}{
		{Int8Array, 1, "Int8Array", 1},
		{Int16Array, 2, "Int16Array", 2},
		{Int32Array, 3, "Int32Array", 4},
		{Uint8Array, 4, "Uint8Array", 1},
		{Uint8ClampedArray, 5, "Uint8ClampedArray", 1},
		{Uint16Array, 6, "Uint16Array", 2},
		{Uint32Array, 7, "Uint32Array", 4},
		{Float32Array, 8, "Float32Array", 4},
		{Float64Array, 9, "Float64Array", 8},
		{BigInt64Array, 10, "BigInt64Array", 8},
		{BigUint64Array, 11, "BigUint64Array", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tag, uint8(tt.kind))
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.size, tt.kind.BytesPerElement())

			parsed, ok := ParseTypedArrayKind(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	assert.False(t, TypedArrayKind(0).Valid())
	assert.False(t, TypedArrayKind(12).Valid())
	assert.Equal(t, "unknown", TypedArrayKind(12).String())
	assert.Equal(t, 0, TypedArrayKind(0).BytesPerElement())
	_, ok := ParseTypedArrayKind("DataView")
	assert.False(t, ok)
}

func newBuffer(t *testing.T, rt *Runtime, data []byte) *goja.Object {
	t.Helper()
	ab, err := rt.NewArrayBuffer(NewMemoryBuffer(data, nil))
	require.NoError(t, err)
	return ab
}

func TestRuntime_NewTypedArray(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	ab := newBuffer(t, rt, data)

	view, err := rt.NewTypedArray(Uint16Array, ab, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, Uint16Array, view.Kind())
	assert.Equal(t, 4, view.ByteOffset())
	assert.Equal(t, 8, view.ByteLength())
	assert.Equal(t, 4, view.Length())
	assert.Same(t, ab, view.Buffer(), "Buffer returns the whole backing buffer")

	require.NoError(t, vm.Set("view", view.Object()))
	assert.Equal(t, "Uint16Array", run(t, vm, "view.constructor.name").String())
	assert.Equal(t, int64(4), run(t, vm, "view.length").ToInteger())
	assert.Equal(t, int64(4), run(t, vm, "view.byteOffset").ToInteger())
	assert.Equal(t, int64(16), run(t, vm, "view.buffer.byteLength").ToInteger())
	assert.True(t, run(t, vm, "view[0] === (4 | (5 << 8))").ToBoolean(), "little-endian elements over the Go bytes")
}

func TestRuntime_NewTypedArray_RangeErrors(t *testing.T) {
	rt := newTestRuntime(t)
	ab := newBuffer(t, rt, make([]byte, 16))

	tests := []struct {
		name   string
		kind   TypedArrayKind
		offset int
		length int
		want   errors.Kind
	}{
		{"window past end", Uint8Array, 8, 16, errors.KindOutOfBounds},
		{"offset past end", Uint8Array, 17, 0, errors.KindOutOfBounds},
		{"negative offset", Uint8Array, -1, 4, errors.KindOutOfBounds},
		{"negative length", Uint8Array, 0, -4, errors.KindOutOfBounds},
		{"range checked before alignment", Int32Array, 3, 100, errors.KindOutOfBounds},
		{"misaligned offset", Int32Array, 2, 4, errors.KindMisaligned},
		{"misaligned length", Float64Array, 0, 12, errors.KindMisaligned},
		{"unknown kind", TypedArrayKind(0), 0, 4, errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := rt.NewTypedArray(tt.kind, ab, tt.offset, tt.length)
			require.Error(t, err)
			assert.Nil(t, view)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: tt.want})
		})
	}

	t.Run("not an array buffer", func(t *testing.T) {
		_, err := rt.NewTypedArray(Uint8Array, rt.VM().NewObject(), 0, 0)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindTypeMismatch})
	})
}

func TestTypedArray_ViewedBufferSlice_FullWindowIsZeroCopy(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()
	ab := newBuffer(t, rt, make([]byte, 16))

	view, err := rt.NewTypedArray(Float32Array, ab, 0, 16)
	require.NoError(t, err)

	slice, err := view.ViewedBufferSlice()
	require.NoError(t, err)
	assert.Same(t, ab, slice)

	require.NoError(t, vm.Set("a", ab))
	require.NoError(t, vm.Set("b", slice))
	assert.True(t, run(t, vm, "a === b").ToBoolean())
}

func TestTypedArray_ViewedBufferSlice_SubRangeCopies(t *testing.T) {
	rt := newTestRuntime(t)
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	ab := newBuffer(t, rt, data)

	view, err := rt.NewTypedArray(Uint8Array, ab, 4, 8)
	require.NoError(t, err)

	slice, err := view.ViewedBufferSlice()
	require.NoError(t, err)
	assert.NotSame(t, ab, slice)

	copied, ok := slice.Export().(goja.ArrayBuffer)
	require.True(t, ok)
	assert.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10, 11}, copied.Bytes())

	data[4] = 99
	assert.Equal(t, byte(4), copied.Bytes()[0], "the slice is a copy, not a view")
}

func TestTypedArray_ViewedBufferSlice_ZeroLength(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("over non-empty buffer", func(t *testing.T) {
		ab := newBuffer(t, rt, make([]byte, 8))
		view, err := rt.NewTypedArray(Uint8Array, ab, 8, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, view.Length())

		slice, err := view.ViewedBufferSlice()
		require.NoError(t, err)
		assert.NotSame(t, ab, slice)
		copied := slice.Export().(goja.ArrayBuffer)
		assert.Empty(t, copied.Bytes())
	})

	t.Run("over empty buffer", func(t *testing.T) {
		ab := newBuffer(t, rt, []byte{})
		view, err := rt.NewTypedArray(Int32Array, ab, 0, 0)
		require.NoError(t, err)

		slice, err := view.ViewedBufferSlice()
		require.NoError(t, err)
		assert.Same(t, ab, slice)
	})
}

func TestTypedArray_Bytes_Aliases(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	data := make([]byte, 8)
	ab := newBuffer(t, rt, data)
	view, err := rt.NewTypedArray(Uint8Array, ab, 2, 4)
	require.NoError(t, err)

	b, err := view.Bytes()
	require.NoError(t, err)
	require.Len(t, b, 4)
	b[0] = 0xAA
	assert.Equal(t, byte(0xAA), data[2])

	require.NoError(t, vm.Set("view", view.Object()))
	assert.Equal(t, int64(0xAA), run(t, vm, "view[0]").ToInteger())
}

func TestTypedArray_DetachedBuffer(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	raw := vm.NewArrayBuffer(make([]byte, 8))
	ab := vm.ToValue(raw).(*goja.Object)
	view, err := rt.NewTypedArray(Uint8Array, ab, 0, 4)
	require.NoError(t, err)

	require.True(t, raw.Detach())

	_, err = view.ViewedBufferSlice()
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindReleased})
	_, err = view.Bytes()
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindReleased})
	_, err = rt.NewTypedArray(Uint8Array, ab, 0, 0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindReleased})
}

func TestRuntime_NewTypedArrayOver(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	var fired int
	buf := NewMemoryBuffer([]byte{1, 2, 3, 4, 5, 6, 7, 8}, func() { fired++ })

	t.Run("rejects before exposing", func(t *testing.T) {
		_, err := rt.NewTypedArrayOver(Uint8Array, buf, 4, 8)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindOutOfBounds})
		_, err = rt.NewTypedArrayOver(Int32Array, buf, 2, 4)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindMisaligned})
		_, err = rt.NewTypedArrayOver(TypedArrayKind(0), buf, 0, 8)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindInvalidInput})
		assert.Equal(t, 0, rt.ExternalMemory())
	})

	view, err := rt.NewTypedArrayOver(Uint8Array, buf, 2, 4)
	require.NoError(t, err)
	require.NoError(t, vm.Set("view", view.Object()))
	assert.Equal(t, "3,4,5,6", run(t, vm, "Array.prototype.join.call(view, ',')").String())
	assert.Equal(t, 8, rt.ExternalMemory())

	_, err = rt.NewTypedArrayOver(Uint8Array, buf, 0, 8)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseBuffer, Kind: errors.KindInvalidInput}, "a buffer is exposed once")

	require.NoError(t, rt.Close())
	assert.Equal(t, 1, fired)
}

func TestRuntime_IsTypedArray(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	tests := []struct {
		name string
		src  string
		want bool
		kind TypedArrayKind
	}{
		{"Uint8Array", "new Uint8Array(4)", true, Uint8Array},
		{"Uint8ClampedArray", "new Uint8ClampedArray(2)", true, Uint8ClampedArray},
		{"Int16Array over buffer", "new Int16Array(new ArrayBuffer(8), 2, 2)", true, Int16Array},
		{"Float64Array", "new Float64Array([1.5])", true, Float64Array},
		{"subclass", "class Bytes extends Uint8Array {}; new Bytes(1)", true, Uint8Array},
		{"DataView", "new DataView(new ArrayBuffer(4))", false, 0},
		{"ArrayBuffer", "new ArrayBuffer(4)", false, 0},
		{"plain array", "[1, 2, 3]", false, 0},
		{"Object.create of prototype", "Object.create(Uint8Array.prototype)", false, 0},
		{"setPrototypeOf spoof", "var o = {}; Object.setPrototypeOf(o, Int16Array.prototype); o", false, 0},
		{"toStringTag spoof", "({ [Symbol.toStringTag]: 'Uint8Array', buffer: new ArrayBuffer(1) })", false, 0},
		{"number", "42", false, 0},
		{"string", "'Uint8Array'", false, 0},
		{"undefined", "undefined", false, 0},
		{"null", "null", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := run(t, vm, tt.src)
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, rt.IsTypedArray(v))
			})
			kind, ok := rt.TypedArrayKindOf(v)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}

	assert.False(t, rt.IsTypedArray(nil))
}

func TestRuntime_AsTypedArray(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	v := run(t, vm, "var buf = new ArrayBuffer(16); new Int16Array(buf, 4, 2)")
	view, err := rt.AsTypedArray(v)
	require.NoError(t, err)

	assert.Equal(t, Int16Array, view.Kind())
	assert.Equal(t, 4, view.ByteOffset())
	assert.Equal(t, 4, view.ByteLength())
	assert.Equal(t, 2, view.Length())
	assert.True(t, view.Object().SameAs(v))
	assert.True(t, view.Buffer().SameAs(run(t, vm, "buf")))

	slice, err := view.ViewedBufferSlice()
	require.NoError(t, err)
	assert.Len(t, slice.Export().(goja.ArrayBuffer).Bytes(), 4)

	_, err = rt.AsTypedArray(run(t, vm, "new DataView(buf)"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindTypeMismatch})

	_, err = rt.AsTypedArray(vm.ToValue(1))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindTypeMismatch})
}
