// Package pipeline owns the filter pipeline context: the filter registry, the
// preview render loop and the triple buffer between render and display.
//
// A Pipeline is explicitly constructed and torn down:
//
//	p := pipeline.New(cfg, dec, preview, logger)
//	p.Init()        // register filters, allocate buffers
//	p.Start(ctx)    // render + display goroutines
//	...
//	p.Shutdown()    // stop goroutines, free buffers, empty registry
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/disintegration/gift"

	"github.com/e7canasta/filtershow/internal/decoder"
	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/modules/previewsupplier"
	"github.com/e7canasta/filtershow/modules/sharedbuffer"
)

var (
	// ErrPipelineShutdown is returned by operations after Shutdown.
	ErrPipelineShutdown = errors.New("pipeline: shut down")
	// ErrNotInitialized is returned by operations before Init.
	ErrNotInitialized = errors.New("pipeline: not initialized")
)

// Config contains preview render settings.
type Config struct {
	PreviewWidth  int
	PreviewHeight int
	DisplayFPS    float64
	JPEGQuality   int
}

type state int

const (
	stateNew state = iota
	stateReady
	stateRunning
	stateShutdown
)

// Pipeline is the filter pipeline context.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	decoder *decoder.Decoder
	preview previewsupplier.Supplier

	registry *Registry
	buffer   sharedbuffer.SharedBuffer

	mu    sync.RWMutex // protects state
	state state

	// --- Render request mailbox (SetPreview → render goroutine) ---

	reqMu    sync.Mutex
	reqCond  *sync.Cond
	pending  *renderRequest
	reqDrops uint64 // atomic

	renders      uint64 // atomic
	renderErrors uint64 // atomic
	displayed    uint64 // atomic

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Renders      uint64
	RenderErrors uint64
	RequestDrops uint64
	Displayed    uint64
	Buffer       sharedbuffer.Stats
	Pool         decoder.PoolStats
}

// New creates a pipeline context. Nothing is allocated until Init.
func New(cfg Config, dec *decoder.Decoder, preview previewsupplier.Supplier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if dec == nil {
		dec = decoder.New(nil, logger)
	}
	if preview == nil {
		preview = previewsupplier.New()
	}
	if cfg.PreviewWidth <= 0 || cfg.PreviewHeight <= 0 {
		cfg.PreviewWidth, cfg.PreviewHeight = 640, 480
	}
	if cfg.DisplayFPS <= 0 {
		cfg.DisplayFPS = 30
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	p := &Pipeline{
		cfg:      cfg,
		logger:   logger.With("component", "pipeline"),
		decoder:  dec,
		preview:  preview,
		registry: NewRegistry(),
	}
	p.reqCond = sync.NewCond(&p.reqMu)
	return p
}

// Init registers the filter groups and allocates the triple buffer.
func (p *Pipeline) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateShutdown:
		return ErrPipelineShutdown
	case stateReady, stateRunning:
		return nil
	}

	addLooks(p.registry)
	addBorders(p.registry)
	addTools(p.registry)
	addEffects(p.registry)

	p.buffer = sharedbuffer.New()
	p.state = stateReady

	p.logger.Info("pipeline initialized", "filters", p.registry.Len())
	return nil
}

// Start turns the preview pipeline on: the preview supplier, the render
// goroutine (producer) and the display goroutine (consumer).
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateNew:
		return ErrNotInitialized
	case stateShutdown:
		return ErrPipelineShutdown
	case stateRunning:
		return fmt.Errorf("pipeline already started")
	}

	if err := p.preview.Start(ctx); err != nil {
		return fmt.Errorf("failed to start preview supplier: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = stateRunning

	p.wg.Add(2)
	go p.renderLoop()
	go p.displayLoop()

	p.logger.Info("pipeline started",
		"preview", fmt.Sprintf("%dx%d", p.cfg.PreviewWidth, p.cfg.PreviewHeight),
		"display_fps", p.cfg.DisplayFPS)
	return nil
}

// Shutdown stops the render and display goroutines, then frees the buffers,
// the image pool and the registry. Idempotent.
func (p *Pipeline) Shutdown() error {
	p.mu.Lock()
	if p.state == stateShutdown {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.state == stateRunning
	p.state = stateShutdown
	p.mu.Unlock()

	if wasRunning {
		p.cancel()

		p.reqMu.Lock()
		p.reqCond.Broadcast()
		p.reqMu.Unlock()

		p.wg.Wait()
	}

	// Goroutines are gone: no swap can race with the reset.
	if err := p.preview.Stop(); err != nil {
		p.logger.Warn("preview supplier stop failed", "error", err)
	}
	if p.buffer != nil {
		p.buffer.Reset()
	}
	p.registry.Reset()
	p.decoder.Pool().Clear()

	p.logger.Info("pipeline shut down")
	return nil
}

func (p *Pipeline) checkUsable() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch p.state {
	case stateNew:
		return ErrNotInitialized
	case stateShutdown:
		return ErrPipelineShutdown
	}
	return nil
}

// Apply runs the active filters of pr on img in order and returns the result.
//
// img is never modified. When pr changes nothing, img itself is returned.
// Intermediate images go back to the pool; the result belongs to the caller.
func (p *Pipeline) Apply(ctx context.Context, img *image.RGBA, pr *preset.Preset) (*image.RGBA, error) {
	if err := p.checkUsable(); err != nil {
		return nil, err
	}
	if pr == nil {
		return img, nil
	}

	cur := img
	for _, rep := range pr.Active() {
		if err := ctx.Err(); err != nil {
			p.release(img, cur)
			return nil, err
		}

		f, err := p.registry.Build(rep, cur.Bounds())
		if err != nil {
			p.release(img, cur)
			return nil, err
		}

		g := gift.New(f)
		size := g.Bounds(cur.Bounds()).Size()
		dst := p.decoder.Pool().Get(size.X, size.Y)
		g.Draw(dst, cur)

		p.release(img, cur)
		cur = dst
	}
	return cur, nil
}

// release returns an intermediate to the pool (never the caller's input).
func (p *Pipeline) release(input, img *image.RGBA) {
	if img != input {
		p.decoder.Pool().Put(img)
	}
}

// Decoder returns the pipeline's decoder (shared image pool).
func (p *Pipeline) Decoder() *decoder.Decoder {
	return p.decoder
}

// Registry returns the filter registry.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Buffer returns the triple buffer (nil before Init).
func (p *Pipeline) Buffer() sharedbuffer.SharedBuffer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buffer
}

// Preview returns the preview supplier.
func (p *Pipeline) Preview() previewsupplier.Supplier {
	return p.preview
}

// Invalidate forces the display goroutine to redraw the current frame.
func (p *Pipeline) Invalidate() {
	if b := p.Buffer(); b != nil {
		b.Invalidate()
	}
}

// Running reports whether the render loop is active.
func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == stateRunning
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Renders:      atomic.LoadUint64(&p.renders),
		RenderErrors: atomic.LoadUint64(&p.renderErrors),
		RequestDrops: atomic.LoadUint64(&p.reqDrops),
		Displayed:    atomic.LoadUint64(&p.displayed),
		Pool:         p.decoder.Pool().Stats(),
	}
	if b := p.Buffer(); b != nil {
		s.Buffer = b.Stats()
	}
	return s
}
