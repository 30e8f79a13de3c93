// Package guest lends the linear memory of a wazero module to the engine.
//
// A Heap turns guest addresses into jsi.MemoryBuffers that alias guest
// memory without copying, and retains guest pointers as
// jsi.RetainedPointers. Guest frees requested by release actions are
// queued and applied by Collect on the goroutine that owns the module,
// since release actions may run on the Go cleanup goroutine where calling
// into the module is not allowed.
//
// Slices returned by wazero stay valid only until the guest memory grows.
// Lend and Allocate ranges for short-lived exchanges and re-lend after
// calls that may grow memory.
package guest
