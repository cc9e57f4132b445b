// Package task implements the cross-thread command handoff used by the
// transceiver: a foreign goroutine builds a Task, submits it to the loop's
// Queue, and blocks until the loop goroutine has run it and replied. This is
// the channel-plus-reply-oneshot substitution for the original mutex,
// condition variable, and async wake handle explicitly sanctioned as
// equivalent: "Implementations may substitute a channel with a
// reply-oneshot, provided the ordering and cancellation semantics hold."
package task

import "context"

// Func is the work a Task performs once it reaches the loop goroutine. It
// must only be called from that goroutine; it may freely mutate loop-owned
// state.
type Func func() (any, error)

// Task is a single unit of loop work plus its one-shot reply channel. A Task
// is submitted once and must not be reused.
type Task struct {
	fn   Func
	done chan struct{}
	res  any
	err  error
}

// New builds a Task wrapping fn. It is not yet submitted to any Queue.
func New(fn Func) *Task {
	return &Task{fn: fn, done: make(chan struct{})}
}

// run executes the task's function and signals completion. Must only be
// called from the loop goroutine that drained this task from its Queue.
func (t *Task) run() {
	t.res, t.err = t.fn()
	close(t.done)
}

// Wait blocks until the loop goroutine has run this task, or ctx is done
// first. On context cancellation it returns ctx.Err() without affecting the
// task's eventual execution: the loop still runs it (no cancellation-in-
// flight support, matching the "explicit cancellation of a task in flight is
// not supported" rule) but the result is discarded by the abandoned caller.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Queue is the mailbox a loop goroutine drains. Foreign goroutines Submit
// tasks; the loop goroutine ranges over Tasks() and calls run on each,
// preserving submission order for that single channel (tasks submitted by
// different goroutines race only at the channel-send step, the same
// linearisation point the original gives the enqueue mutex).
type Queue struct {
	ch chan *Task
}

// NewQueue creates a task queue with the given buffering. A depth of 0
// makes Submit synchronous with the loop picking the task up; any positive
// depth lets foreign goroutines enqueue ahead of the loop without blocking,
// at the cost of queueing latency for the close-waits described in the
// suspension-point rules.
func NewQueue(depth int) *Queue {
	if depth < 0 {
		depth = 0
	}
	return &Queue{ch: make(chan *Task, depth)}
}

// Submit builds a task from fn, enqueues it, and blocks until the loop has
// run it or ctx is cancelled first. It is the direct analogue of "acquire
// mutex, push task, signal wake, wait on condition until done."
func (q *Queue) Submit(ctx context.Context, fn Func) (any, error) {
	t := New(fn)
	select {
	case q.ch <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.Wait(ctx)
}

// TrySubmit enqueues fn without blocking the caller on the loop's response;
// the returned Task can be waited on later. The send itself still blocks
// while the queue's buffer is full. Used by call sites that must not wait
// for the loop, such as the transceiver's HandleClosed reporting a port's
// close from that port's own goroutine.
func (q *Queue) TrySubmit(fn Func) *Task {
	t := New(fn)
	q.ch <- t
	return t
}

// Tasks exposes the receiving side of the queue for the loop goroutine's
// select statement.
func (q *Queue) Tasks() <-chan *Task {
	return q.ch
}

// Depth reports the number of tasks currently buffered and not yet drained
// by the loop goroutine, used for the admin surface's task-queue-depth stat.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Run executes t. Exported so the loop goroutine (which owns the receiving
// end of Tasks()) can run a drained task.
func Run(t *Task) {
	t.run()
}
