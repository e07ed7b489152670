package internal

import (
	"image"
	"sync"
	"time"
)

// Buffer is one rendered image surface plus a synchronization token.
//
// A Buffer is owned by exactly one slot at a time. The goroutine that owns the
// slot may read or write the image; Sync marks the point where all writes are
// complete and visible to the next owner.
type Buffer struct {
	id int // arena index, stable for the life of the SharedBuffer

	mu       sync.Mutex
	img      *image.RGBA
	seq      uint64    // producer sequence of the frame held (0 = none)
	gen      uint64    // incremented by every Sync
	syncedAt time.Time // time of last Sync
}

func newBuffer(id int) *Buffer {
	return &Buffer{id: id}
}

// ID returns the buffer's arena index (0, 1 or 2).
func (b *Buffer) ID() int {
	return b.id
}

// Image returns the image held by the buffer (nil if empty).
func (b *Buffer) Image() *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.img
}

// Seq returns the producer sequence number of the frame held.
// Zero means the buffer never carried a completed frame.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Generation returns how many times Sync has been called on this buffer.
func (b *Buffer) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// SyncedAt returns the time of the last Sync.
func (b *Buffer) SyncedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncedAt
}

// Sync publishes all writes made to the image so far.
//
// The lock release is the happens-before edge: any goroutine that later reads
// the buffer through its accessors observes the completed frame.
func (b *Buffer) Sync() {
	b.mu.Lock()
	b.gen++
	b.syncedAt = time.Now()
	b.mu.Unlock()
}

func (b *Buffer) set(img *image.RGBA) *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.img
	b.img = img
	b.seq = 0
	return old
}

func (b *Buffer) stamp(seq uint64) {
	b.mu.Lock()
	b.seq = seq
	b.mu.Unlock()
}

func (b *Buffer) clear() {
	b.mu.Lock()
	b.img = nil
	b.seq = 0
	b.mu.Unlock()
}
