package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e7canasta/filtershow/internal/decoder"
	"github.com/e7canasta/filtershow/internal/preset"
)

func testConfig() Config {
	return Config{PreviewWidth: 32, PreviewHeight: 32, DisplayFPS: 200, JPEGQuality: 80}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New(testConfig(), decoder.New(nil, nil), nil, nil)
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func TestInitRegistersAllGroups(t *testing.T) {
	p := newPipeline(t)
	defer p.Shutdown()

	groups := p.Registry().Groups()
	for _, g := range []preset.Group{preset.GroupLook, preset.GroupBorder, preset.GroupTool, preset.GroupEffect} {
		if len(groups[g]) == 0 {
			t.Errorf("group %s has no filters", g)
		}
	}
	for _, name := range preset.Names() {
		rep, _ := preset.New(name)
		if _, err := p.Registry().Build(rep, image.Rect(0, 0, 10, 10)); err != nil {
			t.Errorf("no filter for %s: %v", name, err)
		}
	}
}

func TestApplyBeforeInit(t *testing.T) {
	p := New(testConfig(), nil, nil, nil)
	_, err := p.Apply(context.Background(), solid(4, 4, color.RGBA{A: 255}), &preset.Preset{})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestApplyAfterShutdown(t *testing.T) {
	p := newPipeline(t)
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, err := p.Apply(context.Background(), solid(4, 4, color.RGBA{A: 255}), &preset.Preset{})
	if !errors.Is(err, ErrPipelineShutdown) {
		t.Fatalf("expected ErrPipelineShutdown, got %v", err)
	}
	if p.Registry().Len() != 0 {
		t.Errorf("registry not reset: %d factories", p.Registry().Len())
	}
	if err := p.Init(); !errors.Is(err, ErrPipelineShutdown) {
		t.Errorf("Init after Shutdown: expected ErrPipelineShutdown, got %v", err)
	}
	// Idempotent
	if err := p.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApplyEmptyPresetReturnsInput(t *testing.T) {
	p := newPipeline(t)
	defer p.Shutdown()

	src := solid(8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	out, err := p.Apply(context.Background(), src, &preset.Preset{Name: "empty"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out != src {
		t.Error("empty preset should return the input image")
	}
}

func TestApplyRunsFiltersInOrder(t *testing.T) {
	p := newPipeline(t)
	defer p.Shutdown()

	src := solid(8, 4, color.RGBA{R: 200, G: 40, B: 40, A: 255})

	pr := &preset.Preset{Name: "bw rotated"}
	gray, _ := preset.New("GRAYSCALE")
	pr.Add(gray)
	rot := preset.NewRotate()
	rot.Degrees = 90
	pr.Add(rot)

	out, err := p.Apply(context.Background(), src, pr)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := out.Bounds().Size(); got != (image.Point{X: 4, Y: 8}) {
		t.Errorf("rotated size = %v, want 4x8", got)
	}
	c := out.RGBAAt(1, 1)
	if c.R != c.G || c.G != c.B {
		t.Errorf("pixel not gray: %+v", c)
	}
	if src.RGBAAt(1, 1) != (color.RGBA{R: 200, G: 40, B: 40, A: 255}) {
		t.Error("source image was modified")
	}
}

func TestApplyCanceled(t *testing.T) {
	p := newPipeline(t)
	defer p.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr := &preset.Preset{}
	neg, _ := preset.New("NEGATIVE")
	pr.Add(neg)

	if _, err := p.Apply(ctx, solid(4, 4, color.RGBA{A: 255}), pr); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVignetteDarkensCorners(t *testing.T) {
	p := newPipeline(t)
	defer p.Shutdown()

	src := solid(40, 40, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	v := preset.NewVignette()
	v.SetValue(100)
	pr := &preset.Preset{}
	pr.Add(v)

	out, err := p.Apply(context.Background(), src, pr)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	center := out.RGBAAt(20, 20)
	corner := out.RGBAAt(0, 0)
	if corner.R >= center.R {
		t.Errorf("corner %d not darker than center %d", corner.R, center.R)
	}
	t.Logf("center=%d corner=%d", center.R, corner.R)
}

func TestSetPreviewPublishesFrame(t *testing.T) {
	p := newPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	path := writePNG(t, solid(64, 64, color.RGBA{R: 255, A: 255}))

	pr := &preset.Preset{Name: "negative"}
	neg, _ := preset.New("NEGATIVE")
	pr.Add(neg)

	read := p.Preview().Subscribe("test-viewer")
	if err := p.SetPreview(path, pr); err != nil {
		t.Fatalf("SetPreview: %v", err)
	}

	frameCh := make(chan struct{})
	go func() {
		defer close(frameCh)
		frame := read()
		if frame == nil {
			t.Error("viewer released before first frame")
			return
		}
		img, err := jpeg.Decode(bytes.NewReader(frame.JPEG))
		if err != nil {
			t.Errorf("decode preview: %v", err)
			return
		}
		if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
			t.Errorf("preview size = %v, want 32x32", img.Bounds())
		}
		r, g, _, _ := img.At(16, 16).RGBA()
		// Red inverted is cyan.
		if r > g {
			t.Errorf("preview not inverted: r=%d g=%d", r>>8, g>>8)
		}
	}()

	select {
	case <-frameCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for preview frame")
	}

	stats := p.Stats()
	if stats.Renders == 0 {
		t.Error("expected at least one render")
	}
	t.Logf("stats: %+v", stats)
}

func TestSetPreviewBadSourceKeepsRunning(t *testing.T) {
	p := newPipeline(t)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	if err := p.SetPreview(filepath.Join(t.TempDir(), "missing.png"), nil); err != nil {
		t.Fatalf("SetPreview: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().RenderErrors == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for render error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !p.Running() {
		t.Error("pipeline stopped after render error")
	}
}

func TestInvalidateRepublishes(t *testing.T) {
	p := newPipeline(t)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown()

	path := writePNG(t, solid(32, 32, color.RGBA{G: 255, A: 255}))
	if err := p.SetPreview(path, nil); err != nil {
		t.Fatalf("SetPreview: %v", err)
	}

	waitDisplayed := func(n uint64) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for p.Stats().Displayed < n {
			if time.Now().After(deadline) {
				t.Fatalf("timeout waiting for %d displayed frames (got %d)", n, p.Stats().Displayed)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitDisplayed(1)
	before := p.Stats().Displayed

	p.Invalidate()
	waitDisplayed(before + 1)
}

func TestStartRequiresInit(t *testing.T) {
	p := New(testConfig(), nil, nil, nil)
	if err := p.Start(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
