// Package internal implements the preview supplier.
//
// This package is INTERNAL - clients MUST use public API in parent package.
package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// supplier is the concrete implementation of previewsupplier.Supplier.
//
// Goroutine topology:
//   - 1 fixed: distributionLoop (Start → Stop)
//   - 0-N/8 transient: batch goroutines when more than 8 viewers
//   - N external: viewer goroutines, owned by callers
type supplier struct {
	// --- Inbox mailbox (display → supplier) ---

	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame *Frame
	inboxDrops uint64 // atomic
	published  uint64 // atomic

	// --- Viewer slots (supplier → viewers) ---

	slots sync.Map // viewerID → *viewerSlot

	distributeSeq uint64 // atomic
	latest        atomic.Pointer[Frame]

	// --- Lifecycle ---

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	stopping  atomic.Bool
}

// NewSupplier creates a supplier (called by public New()).
func NewSupplier() *supplier {
	s := &supplier{}
	s.inboxCond = sync.NewCond(&s.inboxMu)
	return s
}

// Start implements Supplier.Start.
func (s *supplier) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("preview supplier already started")
	}
	if s.stopping.Load() {
		return fmt.Errorf("preview supplier stopped")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.distributionLoop()

	return nil
}

// Stop implements Supplier.Stop.
//
// Behavior:
//  1. Mark stopping (new Subscribe calls get a nil read func)
//  2. Cancel ctx and wake the distribution loop
//  3. Wait for the loop to exit
//  4. Close every viewer slot (blocked read funcs return nil)
func (s *supplier) Stop() error {
	s.startedMu.Lock()
	if !s.started || s.stopping.Load() {
		s.stopping.Store(true)
		s.startedMu.Unlock()
		return nil
	}
	s.stopping.Store(true)
	s.startedMu.Unlock()

	s.cancel()

	s.inboxMu.Lock()
	s.inboxCond.Broadcast()
	s.inboxMu.Unlock()

	s.wg.Wait()

	s.slots.Range(func(key, value interface{}) bool {
		value.(*viewerSlot).close()
		s.slots.Delete(key)
		return true
	})

	return nil
}

// distributionLoop waits for the inbox frame and fans it out.
func (s *supplier) distributionLoop() {
	defer s.wg.Done()

	for {
		s.inboxMu.Lock()
		for s.inboxFrame == nil {
			if s.ctx.Err() != nil {
				s.inboxMu.Unlock()
				return
			}
			s.inboxCond.Wait()
		}
		if s.ctx.Err() != nil {
			s.inboxMu.Unlock()
			return
		}

		frame := s.inboxFrame
		s.inboxFrame = nil
		s.inboxMu.Unlock()

		s.distributeToViewers(frame)
	}
}
