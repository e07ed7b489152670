package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/disintegration/gift"

	"github.com/e7canasta/filtershow/internal/preset"
)

// ErrNoFilter is returned when no factory is registered for a representation.
var ErrNoFilter = errors.New("pipeline: no filter registered")

// Factory builds an executable filter for a representation applied to an
// image with the given bounds.
type Factory func(rep preset.Representation, bounds image.Rectangle) (gift.Filter, error)

type registration struct {
	group   preset.Group
	factory Factory
}

// Registry maps serialization names to filter factories.
// Owned by one Pipeline; populated by Init, emptied by Shutdown.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]registration)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, group preset.Group, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = registration{group: group, factory: f}
}

// Build creates the filter for rep.
func (r *Registry) Build(rep preset.Representation, bounds image.Rectangle) (gift.Filter, error) {
	r.mu.RLock()
	reg, ok := r.factories[rep.SerializationName()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFilter, rep.SerializationName())
	}
	return reg.factory(rep, bounds)
}

// Groups lists registered names per group, sorted.
func (r *Registry) Groups() map[preset.Group][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[preset.Group][]string)
	for name, reg := range r.factories {
		out[reg.group] = append(out[reg.group], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

// Len returns the number of registered factories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Reset drops every factory.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.factories = make(map[string]registration)
	r.mu.Unlock()
}

func basicValue(rep preset.Representation) (float32, error) {
	b, ok := rep.(*preset.Basic)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected representation %T", rep.SerializationName(), rep)
	}
	return float32(b.Value), nil
}

func addLooks(r *Registry) {
	r.Register("GRAYSCALE", preset.GroupLook, func(preset.Representation, image.Rectangle) (gift.Filter, error) {
		return gift.Grayscale(), nil
	})
	r.Register("NEGATIVE", preset.GroupLook, func(preset.Representation, image.Rectangle) (gift.Filter, error) {
		return gift.Invert(), nil
	})
	r.Register("SEPIA", preset.GroupLook, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.Sepia(v), err
	})
}

func addBorders(r *Registry) {
	r.Register("BORDER", preset.GroupBorder, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		b, ok := rep.(*preset.Border)
		if !ok {
			return nil, fmt.Errorf("BORDER: unexpected representation %T", rep)
		}
		return newBorderFilter(b), nil
	})
}

func addTools(r *Registry) {
	r.Register("BRIGHTNESS", preset.GroupTool, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.Brightness(v), err
	})
	r.Register("CONTRAST", preset.GroupTool, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.Contrast(v), err
	})
	r.Register("SATURATION", preset.GroupTool, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.Saturation(v), err
	})
	r.Register("HUE", preset.GroupTool, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.Hue(v), err
	})
	r.Register("ROTATION", preset.GroupTool, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		rot, ok := rep.(*preset.Rotate)
		if !ok {
			return nil, fmt.Errorf("ROTATION: unexpected representation %T", rep)
		}
		switch ((rot.Degrees % 360) + 360) % 360 {
		case 0:
			return identityFilter{}, nil
		case 90:
			return gift.Rotate90(), nil
		case 180:
			return gift.Rotate180(), nil
		case 270:
			return gift.Rotate270(), nil
		}
		return nil, fmt.Errorf("ROTATION: unsupported angle %d", rot.Degrees)
	})
	r.Register("CROP", preset.GroupTool, func(rep preset.Representation, bounds image.Rectangle) (gift.Filter, error) {
		c, ok := rep.(*preset.Crop)
		if !ok {
			return nil, fmt.Errorf("CROP: unexpected representation %T", rep)
		}
		w, h := float64(bounds.Dx()), float64(bounds.Dy())
		rect := image.Rect(
			bounds.Min.X+int(c.Left*w), bounds.Min.Y+int(c.Top*h),
			bounds.Min.X+int(c.Right*w), bounds.Min.Y+int(c.Bottom*h),
		)
		if rect.Empty() {
			return nil, fmt.Errorf("CROP: empty rectangle for %v", bounds)
		}
		return gift.Crop(rect), nil
	})
}

func addEffects(r *Registry) {
	r.Register("VIGNETTE", preset.GroupEffect, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, ok := rep.(*preset.Vignette)
		if !ok {
			return nil, fmt.Errorf("VIGNETTE: unexpected representation %T", rep)
		}
		return newVignetteFilter(v), nil
	})
	r.Register("SHARPEN", preset.GroupEffect, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.UnsharpMask(1, v/50, 0), err
	})
	r.Register("BLUR", preset.GroupEffect, func(rep preset.Representation, _ image.Rectangle) (gift.Filter, error) {
		v, err := basicValue(rep)
		return gift.GaussianBlur(v / 20), err
	})
}
