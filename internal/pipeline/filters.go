package pipeline

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/gift"

	"github.com/e7canasta/filtershow/internal/preset"
)

// vignetteFilter darkens (strength > 0) or lightens (strength < 0) pixels
// outside an oval. Implements gift.Filter.
type vignetteFilter struct {
	strength         float64 // -1..1
	centerX, centerY float64 // normalized, NaN = image center
	radiusX, radiusY float64 // normalized, NaN = half extent
}

func newVignetteFilter(v *preset.Vignette) *vignetteFilter {
	return &vignetteFilter{
		strength: float64(v.Value) / 100,
		centerX:  v.CenterX,
		centerY:  v.CenterY,
		radiusX:  v.RadiusX,
		radiusY:  v.RadiusY,
	}
}

func (f *vignetteFilter) Bounds(srcBounds image.Rectangle) image.Rectangle {
	return image.Rect(0, 0, srcBounds.Dx(), srcBounds.Dy())
}

func (f *vignetteFilter) Draw(dst draw.Image, src image.Image, _ *gift.Options) {
	sb := src.Bounds()
	w, h := float64(sb.Dx()), float64(sb.Dy())

	cx, cy := w/2, h/2
	if !math.IsNaN(f.centerX) && !math.IsNaN(f.centerY) {
		cx, cy = f.centerX*w, f.centerY*h
	}
	rx, ry := w/2, h/2
	if !math.IsNaN(f.radiusX) && !math.IsNaN(f.radiusY) && f.radiusX > 0 && f.radiusY > 0 {
		rx, ry = f.radiusX*w, f.radiusY*h
	}

	db := dst.Bounds()
	for y := 0; y < sb.Dy(); y++ {
		dy := (float64(y) + 0.5 - cy) / ry
		for x := 0; x < sb.Dx(); x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			d := math.Min(math.Sqrt(dx*dx+dy*dy), 1.5) / 1.5
			k := d * d * f.strength

			r, g, b, a := src.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
			dst.Set(db.Min.X+x, db.Min.Y+y, color.RGBA64{
				R: shade(r, a, k),
				G: shade(g, a, k),
				B: shade(b, a, k),
				A: uint16(a),
			})
		}
	}
}

// shade darkens the premultiplied channel c toward 0 for k > 0 and
// lightens it toward its alpha a for k < 0.
func shade(c, a uint32, k float64) uint16 {
	v := float64(c)
	if k >= 0 {
		v *= 1 - k
	} else {
		v += (float64(a) - v) * -k
	}
	return uint16(math.Max(0, math.Min(float64(a), v)))
}

// identityFilter copies src unchanged. Implements gift.Filter.
type identityFilter struct{}

func (identityFilter) Bounds(srcBounds image.Rectangle) image.Rectangle {
	return image.Rect(0, 0, srcBounds.Dx(), srcBounds.Dy())
}

func (identityFilter) Draw(dst draw.Image, src image.Image, _ *gift.Options) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}

// borderFilter paints a solid frame over the image edges. Implements gift.Filter.
type borderFilter struct {
	size  int // percent of half the shorter side
	color color.RGBA
}

func newBorderFilter(b *preset.Border) *borderFilter {
	r, g, bl := b.RGB()
	return &borderFilter{size: b.Size, color: color.RGBA{r, g, bl, 0xff}}
}

func (f *borderFilter) Bounds(srcBounds image.Rectangle) image.Rectangle {
	return image.Rect(0, 0, srcBounds.Dx(), srcBounds.Dy())
}

func (f *borderFilter) Draw(dst draw.Image, src image.Image, _ *gift.Options) {
	sb := src.Bounds()
	db := dst.Bounds()
	draw.Draw(dst, db, src, sb.Min, draw.Src)

	w, h := db.Dx(), db.Dy()
	t := f.size * min(w, h) / 200
	if t <= 0 {
		return
	}

	fill := image.NewUniform(f.color)
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, t),
		image.Rect(0, h-t, w, h),
		image.Rect(0, 0, t, h),
		image.Rect(w-t, 0, w, h),
	} {
		draw.Draw(dst, r.Add(db.Min), fill, image.Point{}, draw.Src)
	}
}
