package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/telemetry"
)

// sentinel is pushed into a stage's queue, one per worker, to wake blocked
// workers once the task counter has reached zero (or never had any work).
// Task indices are always >= 0, so -1 is unambiguous.
const sentinel = -1

// TaskFunc runs the work for one task index. The task array it mutates is
// owned by the caller (typically a driver-level slice of task structs);
// the pipeline core never allocates task payloads itself.
type TaskFunc func(ctx context.Context, index int) error

// core holds the queue, barrier, and completion-hook state shared by Stage
// and PinnedStage, mirroring the shared bookkeeping TaskQueueThreadPoolEx
// and TaskQueueCurrentThreadEx both reuse from TaskQueue/BoundedTaskQueue.
type core struct {
	name    string
	queue   *Queue
	barrier *Barrier
	hook    telemetry.StageHook
	onDone  func(index int)
	workers int

	stopOnce sync.Once
}

func newCore(name string, queueCap, workers int, hook telemetry.StageHook) *core {
	return &core{
		name:    name,
		queue:   NewQueue(queueCap),
		barrier: NewBarrier(),
		hook:    hook,
		workers: workers,
	}
}

// Push enqueues one task index, blocking if the queue is at capacity.
func (c *core) Push(index int) { c.queue.Push(index) }

// SetTaskCount arms the completion barrier for n upcoming tasks.
func (c *core) SetTaskCount(n int) {
	c.barrier.SetTaskCount(n)
	if n <= 0 {
		c.stopAll()
	}
}

// Wait blocks until every armed task has finished.
func (c *core) Wait() { c.barrier.Wait() }

// SetOnDone registers the stage's per-task completion hook, used by Chain
// to forward a finished index into the next stage's queue.
func (c *core) SetOnDone(fn func(index int)) { c.onDone = fn }

func (c *core) stopAll() {
	c.stopOnce.Do(func() {
		for i := 0; i < c.workers; i++ {
			c.queue.Push(sentinel)
		}
	})
}

func (c *core) taskFinished() {
	c.barrier.TaskFinished()
	if c.barrier.Remaining() <= 0 {
		c.stopAll()
	}
}

// runOne pops and executes one task, returning false when it popped a
// sentinel and the caller should stop looping.
func (c *core) runOne(ctx context.Context, fn TaskFunc) bool {
	idx := c.queue.Pop()
	if idx == sentinel {
		return false
	}

	start := time.Now()
	if c.hook != nil {
		c.hook.BeforeTask(c.name, idx)
	}
	err := fn(ctx, idx)
	if c.hook != nil {
		c.hook.AfterTask(c.name, idx, time.Since(start), err)
	}

	// A non-fatal failure is still forwarded: downstream stages check the
	// task's own error and skip it, and their barriers count every index.
	fatal := false
	if err != nil {
		var ae *apperrors.Error
		if errors.As(err, &ae) && ae.Fatal {
			fatal = true
			c.stopAll()
		}
	}
	if !fatal && c.onDone != nil {
		c.onDone(idx)
	}
	c.taskFinished()
	return true
}

// Stage is a worker-pool stage: N goroutines loop pop -> run -> mark done.
// Used for disk I/O, descriptor post-processing, and writing.
type Stage struct {
	*core
	wg sync.WaitGroup
}

// NewStage creates a worker-pool stage with the given queue capacity and
// worker count.
func NewStage(name string, queueCap, workers int, hook telemetry.StageHook) *Stage {
	return &Stage{core: newCore(name, queueCap, workers, hook)}
}

// Start launches the stage's worker goroutines. fn is invoked once per
// popped task index; Start returns immediately.
func (s *Stage) Start(ctx context.Context, fn TaskFunc) {
	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer s.wg.Done()
			for s.runOne(ctx, fn) {
			}
		}()
	}
}

// Join blocks until every worker goroutine has returned (i.e. has observed
// its sentinel). Callers normally call Wait() first; Join additionally
// guarantees no goroutine is still mid-shutdown.
func (s *Stage) Join() { s.wg.Wait() }

// PinnedStage runs on whatever goroutine calls Run, because it holds a
// thread-affine resource (the GPU/OpenGL context). It processes one item
// at a time.
type PinnedStage struct {
	*core
}

// NewPinnedStage creates a pinned stage with the given queue capacity.
func NewPinnedStage(name string, queueCap int, hook telemetry.StageHook) *PinnedStage {
	return &PinnedStage{core: newCore(name, queueCap, 1, hook)}
}

// Run drives the pinned stage's loop on the calling goroutine until it
// observes its sentinel. Callers should invoke SetTaskCount before or
// concurrently with Run on a designated goroutine, then call Wait from
// the orchestrating goroutine after Run has returned, or arrange for Run
// itself to be the blocking call (Run only returns once the stop flag
// fires, which happens exactly when the barrier reaches zero or a fatal
// error occurs).
func (p *PinnedStage) Run(ctx context.Context, fn TaskFunc) {
	for p.runOne(ctx, fn) {
	}
}

// sink is satisfied by both Stage and PinnedStage; Chain uses it to push
// a completed index downstream regardless of stage kind.
type sink interface {
	Push(index int)
}

// source is satisfied by both Stage and PinnedStage; Chain registers its
// completion hook on it.
type source interface {
	SetOnDone(fn func(index int))
}

// Chain wires a's per-task completion hook to push the finished index into
// b's queue. b.SetTaskCount must be armed with the same N that a will
// produce, or the barrier will deadlock or release prematurely.
func Chain(a source, b sink) {
	a.SetOnDone(func(index int) {
		b.Push(index)
	})
}
