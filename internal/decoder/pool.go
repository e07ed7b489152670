package decoder

import (
	"image"
	"sync"
	"sync/atomic"
)

// DefaultPoolSize is the number of reusable images kept per dimension.
const DefaultPoolSize = 4

// Pool recycles RGBA images by dimension.
//
// Images handed out by Get belong to the caller until Put. Put of an image the
// pool does not want (full bucket, nil) is a silent no-op.
type Pool struct {
	mu      sync.Mutex
	buckets map[image.Point][]*image.RGBA
	perSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// PoolStats is a snapshot of pool effectiveness.
type PoolStats struct {
	Hits   uint64
	Misses uint64
	Held   int
}

// NewPool creates a pool holding at most perSize images per dimension.
func NewPool(perSize int) *Pool {
	if perSize <= 0 {
		perSize = DefaultPoolSize
	}
	return &Pool{
		buckets: make(map[image.Point][]*image.RGBA),
		perSize: perSize,
	}
}

// Get returns a w×h image, reused when one is available.
// Reused images keep their previous pixels; callers overwrite them.
func (p *Pool) Get(w, h int) *image.RGBA {
	key := image.Pt(w, h)

	p.mu.Lock()
	bucket := p.buckets[key]
	if n := len(bucket); n > 0 {
		img := bucket[n-1]
		p.buckets[key] = bucket[:n-1]
		p.mu.Unlock()
		p.hits.Add(1)
		return img
	}
	p.mu.Unlock()

	p.misses.Add(1)
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Put returns an image to the pool.
func (p *Pool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	key := img.Rect.Size()
	if img.Rect.Min != (image.Point{}) {
		// Sub-images share pixels with their parent; never recycle them.
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buckets[key]) >= p.perSize {
		return
	}
	p.buckets[key] = append(p.buckets[key], img)
}

// Stats returns pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	held := 0
	for _, b := range p.buckets {
		held += len(b)
	}
	p.mu.Unlock()

	return PoolStats{Hits: p.hits.Load(), Misses: p.misses.Load(), Held: held}
}

// Clear drops every pooled image.
func (p *Pool) Clear() {
	p.mu.Lock()
	p.buckets = make(map[image.Point][]*image.RGBA)
	p.mu.Unlock()
}
