package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/jsibridge/config"
	"github.com/wippyai/jsibridge/guest"
	"github.com/wippyai/jsibridge/host"
	"github.com/wippyai/jsibridge/jsi"
)

// session owns everything one jsirun invocation creates: the event loop,
// the bridge runtime and the optional wasm guest backing native.alloc.
type session struct {
	cfg       config.Config
	logger    *zap.Logger
	loop      *eventloop.EventLoop
	wasm      wazero.Runtime
	heap      *guest.Heap
	rt        *jsi.Runtime
	scheduler *jsi.Scheduler

	mu      sync.Mutex
	failure error
}

func newSession(cfg config.Config) (*session, error) {
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}
	jsi.SetLogger(logger.Named("jsi"))
	host.SetLogger(logger.Named("host"))
	guest.SetLogger(logger.Named("guest"))

	s := &session{
		cfg:    cfg,
		logger: logger,
		loop:   eventloop.NewEventLoop(),
	}

	if cfg.Guest.Module != "" {
		if err := s.loadGuest(cfg.Guest); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) loadGuest(gc config.GuestConfig) error {
	ctx := context.Background()

	data, err := os.ReadFile(gc.Module)
	if err != nil {
		return fmt.Errorf("read guest module: %w", err)
	}

	// Reserving the declared maximum keeps buffers lent to scripts valid
	// when the guest grows its memory.
	s.wasm = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryCapacityFromMax(true))
	mod, err := s.wasm.Instantiate(ctx, data)
	if err != nil {
		return fmt.Errorf("instantiate guest module: %w", err)
	}

	heap, err := guest.FromModuleExports(ctx, mod, gc.Memory, gc.Allocator)
	if err != nil {
		return fmt.Errorf("guest heap: %w", err)
	}
	s.heap = heap

	s.logger.Info("guest heap loaded",
		zap.String("module", gc.Module),
		zap.Uint32("memory_bytes", heap.Memory().Size()),
	)
	return nil
}

// setup prepares vm. It runs on the event loop.
func (s *session) setup(vm *goja.Runtime) error {
	var opts []jsi.Option
	if s.cfg.Scheduler.Bind {
		opts = append(opts, jsi.WithExecutor(s.executor()))
	}

	rt, err := jsi.NewRuntime(vm, opts...)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	s.rt = rt
	s.scheduler = jsi.NewScheduler(rt)

	if !s.cfg.Natives.Enabled {
		return nil
	}

	nativesOpts := []host.NativesOption{
		host.WithNamespace(s.cfg.Natives.Namespace),
		host.WithDefaultPriority(jsi.SchedulerPriority(s.cfg.Scheduler.DefaultPriority)),
	}
	if s.heap != nil {
		nativesOpts = append(nativesOpts, host.WithHeap(s.heap))
	}

	reg := host.NewRegistry()
	if err := reg.RegisterHost(host.NewNatives(rt, s.scheduler, nativesOpts...)); err != nil {
		return fmt.Errorf("register natives: %w", err)
	}
	if err := reg.Install(rt); err != nil {
		return fmt.Errorf("install natives: %w", err)
	}
	return nil
}

// executor posts scheduler steps to the event loop. A step whose task
// throws ends up here: it is logged and kept as the session's failure.
func (s *session) executor() jsi.RuntimeExecutor {
	post := jsi.LoopExecutor(s.loop)
	return func(job func(*goja.Runtime)) {
		post(func(vm *goja.Runtime) {
			defer func() {
				if p := recover(); p != nil {
					s.taskFailed(p)
				}
			}()
			job(vm)
		})
	}
}

func (s *session) taskFailed(p any) {
	err, ok := p.(error)
	if !ok {
		err = fmt.Errorf("%v", p)
	}
	s.logger.Error("scheduled task failed", zap.Error(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = fmt.Errorf("scheduled task: %w", err)
	}
}

// taskFailure returns the first scheduled task failure, if any.
func (s *session) taskFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// format renders a script result for display.
func (s *session) format(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if s.rt != nil {
		if view, err := s.rt.AsTypedArray(v); err == nil {
			return fmt.Sprintf("%s(%d) [%s]", view.Kind(), view.Length(), v.String())
		}
	}
	if obj, ok := v.(*goja.Object); ok {
		if ab, ok := obj.Export().(goja.ArrayBuffer); ok {
			return fmt.Sprintf("ArrayBuffer { byteLength: %d }", len(ab.Bytes()))
		}
	}
	return v.String()
}

// collect applies queued guest frees. It must run on the goroutine that
// uses the guest module.
func (s *session) collect() int {
	if s.heap == nil {
		return 0
	}
	return s.heap.Collect()
}

func (s *session) Close() {
	if s.rt != nil {
		if err := s.rt.Close(); err != nil {
			s.logger.Warn("close runtime", zap.Error(err))
		}
	}
	s.collect()
	if s.wasm != nil {
		_ = s.wasm.Close(context.Background())
	}
	_ = s.logger.Sync()
}
