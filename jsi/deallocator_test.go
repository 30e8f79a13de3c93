package jsi

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/jsibridge/errors"
)

func TestSetDeallocator_FiresOnReclaim(t *testing.T) {
	rt := newTestRuntime(t)

	var fired atomic.Int32
	func() {
		obj := rt.VM().NewObject()
		_, err := rt.SetDeallocator(obj, func() { fired.Add(1) })
		require.NoError(t, err)
		assert.True(t, rt.HasNativeState(obj))
	}()

	eventually(t, func() bool { return fired.Load() == 1 }, "deallocator after object reclamation")
	assert.Equal(t, 0, rt.LiveHandles())
}

func TestSetDeallocator_SecondHookOrphansFirst(t *testing.T) {
	rt := newTestRuntime(t)

	var first, second atomic.Int32
	func() {
		obj := rt.VM().NewObject()
		_, err := rt.SetDeallocator(obj, func() { first.Add(1) })
		require.NoError(t, err)
		_, err = rt.SetDeallocator(obj, func() { second.Add(1) })
		require.NoError(t, err)
	}()

	eventually(t, func() bool {
		return first.Load() == 1 && second.Load() == 1
	}, "both hooks fire")
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestObjectDeallocator_Release(t *testing.T) {
	rt := newTestRuntime(t)
	obj := rt.VM().NewObject()

	var fired atomic.Int32
	d, err := rt.SetDeallocator(obj, func() { fired.Add(1) })
	require.NoError(t, err)

	d.Release()
	d.Release()
	assert.True(t, d.Released())
	assert.Equal(t, int32(1), fired.Load())

	require.NoError(t, rt.Close())
	assert.Equal(t, int32(1), fired.Load())
}

func TestSetDeallocator_PanicIsSwallowed(t *testing.T) {
	rt := newTestRuntime(t)
	d, err := rt.SetDeallocator(rt.VM().NewObject(), func() { panic("boom") })
	require.NoError(t, err)
	assert.NotPanics(t, d.Release)
}

func TestSetDeallocator_Errors(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("nil object", func(t *testing.T) {
		_, err := rt.SetDeallocator(nil, func() {})
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseAttach, Kind: errors.KindInvalidInput})
	})

	t.Run("frozen object", func(t *testing.T) {
		frozen := run(t, rt.VM(), "Object.freeze({})").ToObject(rt.VM())

		var fired atomic.Int32
		_, err := rt.SetDeallocator(frozen, func() { fired.Add(1) })
		require.Error(t, err)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseAttach, Kind: errors.KindInvalidInput})
		assert.False(t, rt.HasNativeState(frozen))
		assert.Equal(t, 0, rt.LiveHandles())

		require.NoError(t, rt.Close())
		assert.Equal(t, int32(0), fired.Load(), "a rejected action is never run")
	})
}

func TestSetDeallocator_HiddenFromScripts(t *testing.T) {
	rt := newTestRuntime(t)
	vm := rt.VM()

	obj := vm.NewObject()
	require.NoError(t, obj.Set("a", 1))
	_, err := rt.SetDeallocator(obj, func() {})
	require.NoError(t, err)
	require.NoError(t, vm.Set("obj", obj))

	assert.Equal(t, `["a"]`, run(t, vm, "JSON.stringify(Object.keys(obj))").String())
	assert.Equal(t, `{"a":1}`, run(t, vm, "JSON.stringify(obj)").String())
}
