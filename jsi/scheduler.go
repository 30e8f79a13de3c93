package jsi

import (
	"container/heap"
	"sync"

	"code.hybscloud.com/atomix"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// SchedulerPriority orders scheduled tasks. A smaller value runs first.
type SchedulerPriority int

const (
	ImmediatePriority    SchedulerPriority = 1
	UserBlockingPriority SchedulerPriority = 2
	NormalPriority       SchedulerPriority = 3
	LowPriority          SchedulerPriority = 4
	IdlePriority         SchedulerPriority = 5
)

func (p SchedulerPriority) String() string {
	switch p {
	case ImmediatePriority:
		return "immediate"
	case UserBlockingPriority:
		return "user-blocking"
	case NormalPriority:
		return "normal"
	case LowPriority:
		return "low"
	case IdlePriority:
		return "idle"
	default:
		return "unknown"
	}
}

// ParseSchedulerPriority maps a priority name as returned by String.
func ParseSchedulerPriority(name string) (SchedulerPriority, bool) {
	for p := ImmediatePriority; p <= IdlePriority; p++ {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

// RuntimeExecutor runs job later on the engine's execution context. It
// may be called from any goroutine.
type RuntimeExecutor func(job func(*goja.Runtime))

// LoopExecutor returns an executor that posts jobs to loop.
func LoopExecutor(loop *eventloop.EventLoop) RuntimeExecutor {
	return func(job func(*goja.Runtime)) {
		loop.RunOnLoop(job)
	}
}

// SchedulerMode tells whether a scheduler found an executor.
type SchedulerMode uint8

const (
	SchedulerUnbound SchedulerMode = iota
	SchedulerBound
)

func (m SchedulerMode) String() string {
	if m == SchedulerBound {
		return "bound"
	}
	return "unbound"
}

// Scheduler posts native callbacks onto the engine's execution context.
//
// The mode is fixed when the scheduler is created. A bound scheduler
// queues tasks by priority, then by submission order, and runs one queued
// task per executor step, always the best one available. An unbound
// scheduler runs each callback immediately in the calling goroutine,
// without ordering guarantees.
type Scheduler struct {
	vm   *goja.Runtime
	exec RuntimeExecutor

	mu    sync.Mutex
	queue taskQueue
	seq   atomix.Uint64
}

// NewScheduler asks rt once for an executor. A nil rt gives an unbound
// scheduler.
func NewScheduler(rt *Runtime) *Scheduler {
	s := &Scheduler{}
	if rt != nil {
		s.vm = rt.vm
		s.exec = rt.executor
	}
	Logger().Debug("scheduler created", zap.Stringer("mode", s.Mode()))
	return s
}

// Mode returns the mode chosen at creation.
func (s *Scheduler) Mode() SchedulerMode {
	if s.exec != nil {
		return SchedulerBound
	}
	return SchedulerUnbound
}

// ScheduleTask schedules callback with priority. Panics raised by the
// callback are not recovered.
func (s *Scheduler) ScheduleTask(priority SchedulerPriority, callback func()) {
	if callback == nil {
		return
	}
	s.ScheduleJob(priority, func(*goja.Runtime) { callback() })
}

// ScheduleJob is ScheduleTask for callbacks that use the VM.
func (s *Scheduler) ScheduleJob(priority SchedulerPriority, job func(*goja.Runtime)) {
	if job == nil {
		return
	}
	if s.exec == nil {
		job(s.vm)
		return
	}
	if priority == 0 {
		priority = NormalPriority
	}

	s.mu.Lock()
	heap.Push(&s.queue, &task{
		priority: priority,
		seq:      s.seq.Add(1),
		job:      job,
	})
	s.mu.Unlock()

	s.exec(s.runNext)
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) runNext(vm *goja.Runtime) {
	s.mu.Lock()
	if s.queue.Len() == 0 {
		s.mu.Unlock()
		return
	}
	t := heap.Pop(&s.queue).(*task)
	s.mu.Unlock()

	t.job(vm)
}

type task struct {
	job      func(*goja.Runtime)
	seq      uint64
	priority SchedulerPriority
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
