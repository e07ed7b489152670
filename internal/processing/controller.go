package processing

import (
	"context"
	"sync"
)

// Task is one unit of work run by the TaskController.
type Task func(ctx context.Context)

// TaskController runs tasks one at a time, in submission order, on a single
// worker goroutine.
//
// The queue is bounded: Enqueue rejects with ErrQueueFull instead of
// blocking the caller. Quit stops accepting work, discards queued tasks and
// waits for the active one.
type TaskController struct {
	capacity int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	closed  bool
	running bool

	wg sync.WaitGroup
}

// NewTaskController creates a controller holding at most capacity queued
// tasks (the active task is not counted).
func NewTaskController(capacity int) *TaskController {
	if capacity <= 0 {
		capacity = 1
	}
	c := &TaskController{capacity: capacity}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start spawns the worker goroutine. Tasks receive ctx.
func (c *TaskController) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.worker(ctx)
}

// Enqueue appends a task to the queue.
func (c *TaskController) Enqueue(t Task) error {
	return c.enqueue(t, false)
}

// enqueueForce appends ignoring capacity (redelivery after restart).
func (c *TaskController) enqueueForce(t Task) error {
	return c.enqueue(t, true)
}

func (c *TaskController) enqueue(t Task, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if !force && len(c.queue) >= c.capacity {
		return ErrQueueFull
	}
	c.queue = append(c.queue, t)
	c.cond.Signal()
	return nil
}

// Len returns the number of queued (not yet started) tasks.
func (c *TaskController) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Busy reports whether a task is executing.
func (c *TaskController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Quit stops accepting tasks, drops the queue and waits for the active task.
// Returns the number of discarded tasks. Idempotent.
func (c *TaskController) Quit() int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return 0
	}
	c.closed = true
	dropped := len(c.queue)
	c.queue = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	c.wg.Wait()
	return dropped
}

func (c *TaskController) worker(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		t := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.running = true
		c.mu.Unlock()

		t(ctx)

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}
}
