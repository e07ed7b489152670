package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestControllerRunsTasksInOrder(t *testing.T) {
	c := NewTaskController(16)
	c.Start(context.Background())
	defer c.Quit()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		if err := c.Enqueue(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..9", order)
		}
	}
}

func TestControllerRunsOneTaskAtATime(t *testing.T) {
	c := NewTaskController(64)
	c.Start(context.Background())
	defer c.Quit()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		c.Enqueue(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(100 * time.Microsecond)

			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxSeen)
	}
}

func TestControllerRejectsWhenFull(t *testing.T) {
	c := NewTaskController(2)
	c.Start(context.Background())

	release := make(chan struct{})
	running := make(chan struct{})
	c.Enqueue(func(context.Context) {
		close(running)
		<-release
	})
	<-running

	// Active task does not count against capacity.
	for i := 0; i < 2; i++ {
		if err := c.Enqueue(func(context.Context) {}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if err := c.Enqueue(func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := c.enqueueForce(func(context.Context) {}); err != nil {
		t.Fatalf("enqueueForce: %v", err)
	}
	if !c.Busy() {
		t.Error("Busy() = false with a running task")
	}

	close(release)
	c.Quit()
}

func TestControllerQuitWaitsForActiveTask(t *testing.T) {
	c := NewTaskController(4)
	c.Start(context.Background())

	running := make(chan struct{})
	var finished bool
	c.Enqueue(func(context.Context) {
		close(running)
		time.Sleep(50 * time.Millisecond)
		finished = true
	})
	ran := false
	c.Enqueue(func(context.Context) { ran = true })

	<-running
	dropped := c.Quit()

	if !finished {
		t.Error("Quit returned before the active task finished")
	}
	if ran {
		t.Error("queued task ran after Quit")
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if err := c.Enqueue(func(context.Context) {}); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("expected ErrControllerClosed, got %v", err)
	}
	// Idempotent
	if n := c.Quit(); n != 0 {
		t.Errorf("second Quit dropped %d", n)
	}
}
