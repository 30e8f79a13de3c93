// Package host installs Go functions into a goja runtime as host
// functions.
//
// A Registry groups functions by dotted namespace and installs them on
// the global object:
//
//	reg := host.NewRegistry()
//	reg.RegisterHost(host.NewNatives(rt, scheduler))
//	reg.RegisterFunc("app", "now", func(goja.Value, []goja.Value) (goja.Value, error) {
//	    return vm.ToValue(time.Now().UnixMilli()), nil
//	})
//	if err := reg.Install(rt); err != nil {
//	    return err
//	}
//
// Natives provides alloc, view, slice, kindOf, isTypedArray, schedule
// and stats under the "native" namespace.
package host
