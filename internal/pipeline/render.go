package pipeline

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/modules/previewsupplier"
)

type renderRequest struct {
	source string
	preset *preset.Preset
}

// SetPreview asks the render goroutine to show source with pr applied.
//
// Non-blocking: an unrendered previous request is overwritten (counted in
// RequestDrops). pr is copied, so the caller may keep editing it.
func (p *Pipeline) SetPreview(source string, pr *preset.Preset) error {
	if err := p.checkUsable(); err != nil {
		return err
	}

	req := &renderRequest{source: source}
	if pr != nil {
		req.preset = pr.Copy()
	}

	p.reqMu.Lock()
	if p.pending != nil {
		atomic.AddUint64(&p.reqDrops, 1)
	}
	p.pending = req
	p.reqCond.Signal()
	p.reqMu.Unlock()

	return nil
}

// nextRequest blocks until a request is pending or the pipeline stops.
func (p *Pipeline) nextRequest() *renderRequest {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()

	for p.pending == nil {
		if p.ctx.Err() != nil {
			return nil
		}
		p.reqCond.Wait()
	}
	if p.ctx.Err() != nil {
		return nil
	}

	req := p.pending
	p.pending = nil
	return req
}

// renderLoop is the producer: render, SetProducer, SwapProducer. It never
// waits for the display.
func (p *Pipeline) renderLoop() {
	defer p.wg.Done()

	var (
		cachedSource string
		source       *image.RGBA
	)
	defer func() {
		p.decoder.Put(source)
	}()

	for {
		req := p.nextRequest()
		if req == nil {
			return
		}

		start := time.Now()

		if source == nil || req.source != cachedSource {
			img, err := p.decoder.DecodeFileSized(req.source, p.cfg.PreviewWidth, p.cfg.PreviewHeight)
			if err != nil {
				atomic.AddUint64(&p.renderErrors, 1)
				p.logger.Warn("preview decode failed", "source", req.source, "error", err)
				continue
			}
			p.decoder.Put(source)
			source, cachedSource = img, req.source
		}

		out, err := p.Apply(p.ctx, source, req.preset)
		if err != nil {
			atomic.AddUint64(&p.renderErrors, 1)
			p.logger.Warn("preview render failed", "source", req.source, "error", err)
			continue
		}
		if out == source {
			// The cached source stays with the render goroutine.
			out = p.copyImage(source)
		}

		recycled := p.buffer.SetProducer(out)
		p.decoder.Put(recycled)
		p.buffer.SwapProducer()

		atomic.AddUint64(&p.renders, 1)
		p.logger.Debug("preview rendered",
			"source", req.source,
			"size", out.Bounds().Size().String(),
			"elapsed", time.Since(start))
	}
}

func (p *Pipeline) copyImage(src *image.RGBA) *image.RGBA {
	size := src.Bounds().Size()
	dst := p.decoder.Pool().Get(size.X, size.Y)
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// displayLoop is the consumer: on each tick pick up the newest frame (or
// honor a repaint request) and publish it to preview viewers.
func (p *Pipeline) displayLoop() {
	defer p.wg.Done()

	interval := time.Duration(float64(time.Second) / p.cfg.DisplayFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var buf bytes.Buffer

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		fresh := p.buffer.SwapConsumer()
		repaint := p.buffer.CheckRepaintNeeded()
		if !fresh && !repaint {
			continue
		}

		consumer := p.buffer.Consumer()
		img := consumer.Image()
		if img == nil {
			continue
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
			p.logger.Warn("preview encode failed", "error", err)
			continue
		}

		encoded := make([]byte, buf.Len())
		copy(encoded, buf.Bytes())

		p.preview.Publish(&previewsupplier.Frame{
			JPEG:       encoded,
			Width:      img.Bounds().Dx(),
			Height:     img.Bounds().Dy(),
			RenderedAt: time.Now(),
			SourceSeq:  consumer.Seq(),
		})
		atomic.AddUint64(&p.displayed, 1)
	}
}
