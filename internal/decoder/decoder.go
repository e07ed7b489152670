// Package decoder turns encoded images into RGBA surfaces, reusing pooled
// storage and reading bounds before pixels so large sources can be decoded
// straight to the requested size.
package decoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// headerMaxSize bounds how much of a stream is buffered to read bounds.
	headerMaxSize = 128 * 1024

	noScaling = -1
)

// ErrBounds is returned when the image header cannot be read.
var ErrBounds = errors.New("decoder: could not decode image bounds")

// Decoder decodes images into pooled RGBA surfaces.
type Decoder struct {
	pool   *Pool
	logger *slog.Logger
}

// New creates a decoder backed by pool (a fresh pool when nil).
func New(pool *Pool, logger *slog.Logger) *Decoder {
	if pool == nil {
		pool = NewPool(DefaultPoolSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{pool: pool, logger: logger}
}

// Pool returns the decoder's image pool.
func (d *Decoder) Pool() *Pool {
	return d.pool
}

// Put hands a decoded image back for reuse.
func (d *Decoder) Put(img *image.RGBA) {
	d.pool.Put(img)
}

// Decode decodes a stream at full size.
func (d *Decoder) Decode(r io.Reader) (*image.RGBA, error) {
	return d.decodeStream(r, noScaling, noScaling)
}

// DecodeSized decodes a stream scaled to fill w×h, keeping proportions.
//
// A 200×100 source decoded to 10×10 yields 20×10. Sources smaller than the
// target in either dimension are decoded at full size.
func (d *Decoder) DecodeSized(r io.Reader, w, h int) (*image.RGBA, error) {
	return d.decodeStream(r, w, h)
}

// DecodeFile decodes the file at path at full size.
func (d *Decoder) DecodeFile(path string) (*image.RGBA, error) {
	return d.DecodeFileSized(path, noScaling, noScaling)
}

// DecodeFileSized decodes the file at path scaled to fill w×h.
func (d *Decoder) DecodeFileSized(path string, w, h int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return d.decodeStream(f, w, h)
}

// DecodeBytes decodes an in-memory image at full size.
func (d *Decoder) DecodeBytes(data []byte) (*image.RGBA, error) {
	return d.DecodeBytesSized(data, noScaling, noScaling)
}

// DecodeBytesSized decodes an in-memory image scaled to fill w×h.
func (d *Decoder) DecodeBytesSized(data []byte, w, h int) (*image.RGBA, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBounds, err)
	}
	return d.decode(bytes.NewReader(data), cfg, w, h)
}

func (d *Decoder) decodeStream(r io.Reader, w, h int) (*image.RGBA, error) {
	br := bufio.NewReaderSize(r, headerMaxSize)

	// Peek keeps the header in the buffer so the full decode starts at byte 0.
	header, err := br.Peek(headerMaxSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(header))
	if err != nil {
		d.logger.Error("could not decode stream bounds", "error", err, "header_bytes", len(header))
		return nil, fmt.Errorf("%w: %v", ErrBounds, err)
	}

	return d.decode(br, cfg, w, h)
}

func (d *Decoder) decode(r io.Reader, cfg image.Config, w, h int) (*image.RGBA, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if w != noScaling && cfg.Width >= w && cfg.Height >= h {
		sw, sh := fillSize(cfg.Width, cfg.Height, w, h)
		dst := d.pool.Get(sw, sh)
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

		d.logger.Debug("decoded image scaled",
			"format", format,
			"source", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"target", fmt.Sprintf("%dx%d", sw, sh))
		return dst, nil
	}

	b := src.Bounds()
	dst := d.pool.Get(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	d.logger.Debug("decoded image", "format", format, "size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
	return dst, nil
}

// fillSize scales srcW×srcH so it covers w×h while keeping proportions.
func fillSize(srcW, srcH, w, h int) (int, int) {
	scale := math.Max(float64(w)/float64(srcW), float64(h)/float64(srcH))
	sw := int(math.Round(float64(srcW) * scale))
	sh := int(math.Round(float64(srcH) * scale))
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}
