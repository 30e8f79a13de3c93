package jsi

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/wippyai/jsibridge/errors"
)

// TypedArrayKind identifies a typed array element type. The numeric tags
// are part of the bridge's native interface and never change.
type TypedArrayKind uint8

const (
	Int8Array         TypedArrayKind = 1
	Int16Array        TypedArrayKind = 2
	Int32Array        TypedArrayKind = 3
	Uint8Array        TypedArrayKind = 4
	Uint8ClampedArray TypedArrayKind = 5
	Uint16Array       TypedArrayKind = 6
	Uint32Array       TypedArrayKind = 7
	Float32Array      TypedArrayKind = 8
	Float64Array      TypedArrayKind = 9
	BigInt64Array     TypedArrayKind = 10
	BigUint64Array    TypedArrayKind = 11
)

var kindNames = [...]string{
	Int8Array:         "Int8Array",
	Int16Array:        "Int16Array",
	Int32Array:        "Int32Array",
	Uint8Array:        "Uint8Array",
	Uint8ClampedArray: "Uint8ClampedArray",
	Uint16Array:       "Uint16Array",
	Uint32Array:       "Uint32Array",
	Float32Array:      "Float32Array",
	Float64Array:      "Float64Array",
	BigInt64Array:     "BigInt64Array",
	BigUint64Array:    "BigUint64Array",
}

var kindSizes = [...]int{
	Int8Array:         1,
	Int16Array:        2,
	Int32Array:        4,
	Uint8Array:        1,
	Uint8ClampedArray: 1,
	Uint16Array:       2,
	Uint32Array:       4,
	Float32Array:      4,
	Float64Array:      8,
	BigInt64Array:     8,
	BigUint64Array:    8,
}

// Valid reports whether k is one of the defined kinds.
func (k TypedArrayKind) Valid() bool {
	return k >= Int8Array && k <= BigUint64Array
}

// String returns the JS constructor name of the kind.
func (k TypedArrayKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindNames[k]
}

// BytesPerElement returns the element size, or 0 for an invalid kind.
func (k TypedArrayKind) BytesPerElement() int {
	if !k.Valid() {
		return 0
	}
	return kindSizes[k]
}

// ParseTypedArrayKind maps a constructor name to its kind.
func ParseTypedArrayKind(name string) (TypedArrayKind, bool) {
	for k := Int8Array; k <= BigUint64Array; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// typedArrayIntrinsics are the %TypedArray%.prototype getters captured
// when the runtime is created. Calling them directly, instead of reading
// properties, cannot be fooled by user-defined prototypes.
type typedArrayIntrinsics struct {
	tag        goja.Callable
	buffer     goja.Callable
	byteOffset goja.Callable
	byteLength goja.Callable
	ctors      map[TypedArrayKind]*goja.Object
}

const intrinsicsScript = `(function () {
	var proto = Object.getPrototypeOf(Int8Array.prototype);
	function getter(name) { return Object.getOwnPropertyDescriptor(proto, name).get; }
	return [getter(Symbol.toStringTag), getter("buffer"), getter("byteOffset"), getter("byteLength")];
})()`

func loadTypedArrayIntrinsics(vm *goja.Runtime) (*typedArrayIntrinsics, error) {
	v, err := vm.RunString(intrinsicsScript)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseView, errors.KindNotInitialized, err, "load typed array intrinsics")
	}
	arr := v.ToObject(vm)

	getters := make([]goja.Callable, 4)
	for i := range getters {
		fn, ok := goja.AssertFunction(arr.Get(strconv.Itoa(i)))
		if !ok {
			return nil, errors.NotInitialized(errors.PhaseView, "typed array intrinsics")
		}
		getters[i] = fn
	}

	in := &typedArrayIntrinsics{
		tag:        getters[0],
		buffer:     getters[1],
		byteOffset: getters[2],
		byteLength: getters[3],
		ctors:      make(map[TypedArrayKind]*goja.Object),
	}
	global := vm.GlobalObject()
	for k := Int8Array; k <= BigUint64Array; k++ {
		if ctor, ok := global.Get(k.String()).(*goja.Object); ok {
			in.ctors[k] = ctor
		}
	}
	return in, nil
}

// kindOf returns the kind of a genuine typed array. The tag getter
// returns undefined for every other receiver and never throws.
func (in *typedArrayIntrinsics) kindOf(v goja.Value) (TypedArrayKind, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return 0, false
	}
	tag, err := in.tag(obj)
	if err != nil || tag == nil || goja.IsUndefined(tag) {
		return 0, false
	}
	return ParseTypedArrayKind(tag.String())
}

// TypedArray is a view over a window of an ArrayBuffer. It never owns the
// buffer it views.
type TypedArray struct {
	rt         *Runtime
	obj        *goja.Object
	kind       TypedArrayKind
	buffer     *goja.Object
	byteOffset int
	byteLength int
}

// IsTypedArray reports whether v is a typed array of any kind. It is
// false for DataView, for plain objects whose prototype was set to a
// typed array prototype and for non-objects.
func (r *Runtime) IsTypedArray(v goja.Value) bool {
	_, ok := r.views.kindOf(v)
	return ok
}

// TypedArrayKindOf returns the kind of v if it is a typed array.
func (r *Runtime) TypedArrayKindOf(v goja.Value) (TypedArrayKind, bool) {
	return r.views.kindOf(v)
}

// NewTypedArray creates a kind view over byteLength bytes of buffer
// starting at byteOffset. Ranges that do not fit the buffer and offsets
// or lengths that are not multiples of the element size fail before any
// engine object is created.
func (r *Runtime) NewTypedArray(kind TypedArrayKind, buffer *goja.Object, byteOffset, byteLength int) (*TypedArray, error) {
	if !kind.Valid() {
		return nil, invalidKind(kind)
	}
	ab, err := arrayBufferOf(buffer)
	if err != nil {
		return nil, err
	}
	if ab.Detached() {
		return nil, errors.Released(errors.PhaseView, "array buffer")
	}
	if err := checkWindow(kind, byteOffset, byteLength, len(ab.Bytes())); err != nil {
		return nil, err
	}

	ctor, ok := r.views.ctors[kind]
	if !ok {
		return nil, errors.Unsupported(errors.PhaseView, kind.String())
	}
	elem := kind.BytesPerElement()
	obj, err := r.vm.New(ctor, buffer, r.vm.ToValue(byteOffset), r.vm.ToValue(byteLength/elem))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseView, errors.KindInvalidInput, err, "construct "+kind.String())
	}

	return &TypedArray{
		rt:         r,
		obj:        obj,
		kind:       kind,
		buffer:     buffer,
		byteOffset: byteOffset,
		byteLength: byteLength,
	}, nil
}

func invalidKind(kind TypedArrayKind) error {
	return errors.New(errors.PhaseView, errors.KindInvalidInput).
		Value(int(kind)).
		Detail("unknown typed array kind %d", kind).
		Build()
}

// checkWindow validates a view window over size bytes.
func checkWindow(kind TypedArrayKind, byteOffset, byteLength, size int) error {
	if byteOffset < 0 || byteLength < 0 || byteOffset > size || byteLength > size-byteOffset {
		return errors.OutOfBounds(errors.PhaseView, byteOffset, byteLength, size)
	}
	elem := kind.BytesPerElement()
	if byteOffset%elem != 0 {
		return errors.Misaligned(errors.PhaseView, "byte offset", byteOffset, elem)
	}
	if byteLength%elem != 0 {
		return errors.Misaligned(errors.PhaseView, "byte length", byteLength, elem)
	}
	return nil
}

// NewTypedArrayOver exposes buf with NewArrayBuffer and views a window of
// it. If the kind or the window is invalid nothing is exposed and buf is
// left to the caller.
func (r *Runtime) NewTypedArrayOver(kind TypedArrayKind, buf *MemoryBuffer, byteOffset, byteLength int) (*TypedArray, error) {
	if buf == nil {
		return nil, errors.InvalidInput(errors.PhaseView, "nil memory buffer")
	}
	if !kind.Valid() {
		return nil, invalidKind(kind)
	}
	if _, ok := r.views.ctors[kind]; !ok {
		return nil, errors.Unsupported(errors.PhaseView, kind.String())
	}
	if err := checkWindow(kind, byteOffset, byteLength, buf.size); err != nil {
		return nil, err
	}
	ab, err := r.NewArrayBuffer(buf)
	if err != nil {
		return nil, err
	}
	return r.NewTypedArray(kind, ab, byteOffset, byteLength)
}

// AsTypedArray wraps an existing engine typed array.
func (r *Runtime) AsTypedArray(v goja.Value) (*TypedArray, error) {
	kind, ok := r.views.kindOf(v)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseView, "jsi.TypedArray", typeName(v))
	}
	obj := v.(*goja.Object)

	buffer, err := r.views.buffer(obj)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseView, errors.KindTypeMismatch, err, "read typed array buffer")
	}
	bufObj, ok := buffer.(*goja.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseView, "*goja.Object", typeName(buffer))
	}
	offset, err := r.views.byteOffset(obj)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseView, errors.KindTypeMismatch, err, "read typed array byteOffset")
	}
	length, err := r.views.byteLength(obj)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseView, errors.KindTypeMismatch, err, "read typed array byteLength")
	}

	return &TypedArray{
		rt:         r,
		obj:        obj,
		kind:       kind,
		buffer:     bufObj,
		byteOffset: int(offset.ToInteger()),
		byteLength: int(length.ToInteger()),
	}, nil
}

// Kind returns the element type.
func (t *TypedArray) Kind() TypedArrayKind { return t.kind }

// ByteOffset returns the window start in the backing buffer.
func (t *TypedArray) ByteOffset() int { return t.byteOffset }

// ByteLength returns the window size in bytes.
func (t *TypedArray) ByteLength() int { return t.byteLength }

// Length returns the number of elements.
func (t *TypedArray) Length() int { return t.byteLength / t.kind.BytesPerElement() }

// Object returns the engine object of the view.
func (t *TypedArray) Object() *goja.Object { return t.obj }

// Buffer returns the whole backing ArrayBuffer, not just the viewed window.
func (t *TypedArray) Buffer() *goja.Object { return t.buffer }

// ViewedBufferSlice returns an ArrayBuffer holding exactly the viewed
// window. If the window covers the whole backing buffer, the backing
// buffer itself is returned and nothing is copied. Otherwise the window
// is copied once into a new ArrayBuffer.
func (t *TypedArray) ViewedBufferSlice() (*goja.Object, error) {
	ab, err := arrayBufferOf(t.buffer)
	if err != nil {
		return nil, err
	}
	if ab.Detached() {
		return nil, errors.Released(errors.PhaseView, "array buffer")
	}

	data := ab.Bytes()
	if t.byteOffset == 0 && t.byteLength == len(data) {
		return t.buffer, nil
	}
	if t.byteOffset+t.byteLength > len(data) {
		return nil, errors.OutOfBounds(errors.PhaseView, t.byteOffset, t.byteLength, len(data))
	}

	window := make([]byte, t.byteLength)
	copy(window, data[t.byteOffset:t.byteOffset+t.byteLength])
	obj, ok := t.rt.vm.ToValue(t.rt.vm.NewArrayBuffer(window)).(*goja.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseView, "*goja.Object", "ArrayBuffer")
	}
	return obj, nil
}

// Bytes returns the viewed window, aliasing the backing store. The slice
// is only valid while the buffer is neither detached nor reclaimed.
func (t *TypedArray) Bytes() ([]byte, error) {
	ab, err := arrayBufferOf(t.buffer)
	if err != nil {
		return nil, err
	}
	if ab.Detached() {
		return nil, errors.Released(errors.PhaseView, "array buffer")
	}
	data := ab.Bytes()
	if t.byteOffset+t.byteLength > len(data) {
		return nil, errors.OutOfBounds(errors.PhaseView, t.byteOffset, t.byteLength, len(data))
	}
	return data[t.byteOffset : t.byteOffset+t.byteLength : t.byteOffset+t.byteLength], nil
}

func arrayBufferOf(obj *goja.Object) (goja.ArrayBuffer, error) {
	if obj == nil {
		return goja.ArrayBuffer{}, errors.InvalidInput(errors.PhaseView, "nil array buffer")
	}
	ab, ok := obj.Export().(goja.ArrayBuffer)
	if !ok {
		return goja.ArrayBuffer{}, errors.TypeMismatch(errors.PhaseView, "goja.ArrayBuffer", obj.ClassName())
	}
	return ab, nil
}

func typeName(v goja.Value) string {
	switch {
	case v == nil:
		return "nil"
	case goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj.ClassName()
	}
	if t := v.ExportType(); t != nil {
		return t.String()
	}
	return "unknown"
}
