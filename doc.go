// Package jsibridge connects Go code to a goja scripting engine: owned
// byte buffers, typed views, host functions and native state cross the
// boundary with exactly-once release, and native callbacks are scheduled
// onto the engine's execution context.
//
// # Architecture Overview
//
//	jsibridge/           Root package with the RuntimeProvider, Memory and Allocator interfaces
//	├── jsi/             Buffers, typed views, retained pointers, native state, scheduler
//	├── resource/        Table of live wrappers released when a runtime closes
//	├── host/            Namespaced host function registry and the standard natives
//	├── guest/           Wasm guest heap lent to the engine without copying
//	├── config/          YAML configuration
//	├── errors/          Structured error types
//	└── cmd/jsirun/      Script runner and interactive console
//
// # Quick Start
//
//	loop := eventloop.NewEventLoop()
//	loop.Run(func(vm *goja.Runtime) {
//	    rt, err := jsi.NewRuntime(vm, jsi.WithEventLoop(loop))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer rt.Close()
//
//	    buf := jsi.NewMemoryBuffer(make([]byte, 64), nil)
//	    view, err := rt.NewTypedArrayOver(jsi.Float32Array, buf, 0, 64)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    vm.Set("samples", view.Object())
//	})
//
// # Thread Safety
//
// The engine is single-threaded. Runtime methods that touch the VM must
// run on its execution context. Release actions may run on any goroutine.
// Scheduler.ScheduleTask may be called from any goroutine.
package jsibridge
