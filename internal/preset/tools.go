package preset

import (
	"fmt"
	"strconv"
)

// Rotate turns the image by a multiple of 90 degrees.
type Rotate struct {
	Degrees int
}

func NewRotate() *Rotate { return &Rotate{} }

func (r *Rotate) SerializationName() string { return "ROTATION" }
func (r *Rotate) Name() string              { return "Rotate" }
func (r *Rotate) Group() Group              { return GroupTool }
func (r *Rotate) IsNil() bool               { return r.Degrees%360 == 0 }

func (r *Rotate) Copy() Representation {
	c := *r
	return &c
}

func (r *Rotate) Equal(other Representation) bool {
	o, ok := other.(*Rotate)
	return ok && (o.Degrees-r.Degrees)%360 == 0
}

func (r *Rotate) Serialize() []Param {
	return []Param{{"value", strconv.Itoa(r.Degrees)}}
}

func (r *Rotate) Deserialize(params []Param) error {
	for _, p := range params {
		if p.Name != "value" {
			continue
		}
		d, err := strconv.Atoi(p.Value)
		if err != nil {
			return fmt.Errorf("ROTATION: invalid value %q: %w", p.Value, err)
		}
		if d%90 != 0 {
			return fmt.Errorf("ROTATION: %d is not a multiple of 90", d)
		}
		r.Degrees = ((d % 360) + 360) % 360
	}
	return nil
}

// Crop keeps a normalized rectangle of the image.
type Crop struct {
	Left, Top, Right, Bottom float64
}

func NewCrop() *Crop { return &Crop{Right: 1, Bottom: 1} }

func (c *Crop) SerializationName() string { return "CROP" }
func (c *Crop) Name() string              { return "Crop" }
func (c *Crop) Group() Group              { return GroupTool }

func (c *Crop) IsNil() bool {
	return c.Left == 0 && c.Top == 0 && c.Right == 1 && c.Bottom == 1
}

func (c *Crop) Copy() Representation {
	cp := *c
	return &cp
}

func (c *Crop) Equal(other Representation) bool {
	o, ok := other.(*Crop)
	return ok && *o == *c
}

func (c *Crop) Serialize() []Param {
	return []Param{
		{"left", formatFloat(c.Left)},
		{"top", formatFloat(c.Top)},
		{"right", formatFloat(c.Right)},
		{"bottom", formatFloat(c.Bottom)},
	}
}

func (c *Crop) Deserialize(params []Param) error {
	for _, p := range params {
		var dst *float64
		switch p.Name {
		case "left":
			dst = &c.Left
		case "top":
			dst = &c.Top
		case "right":
			dst = &c.Right
		case "bottom":
			dst = &c.Bottom
		default:
			continue
		}
		f, err := parseFloat(p.Value)
		if err != nil {
			return fmt.Errorf("CROP: invalid %s %q: %w", p.Name, p.Value, err)
		}
		*dst = f
	}
	if c.Left < 0 || c.Top < 0 || c.Right > 1 || c.Bottom > 1 || c.Left >= c.Right || c.Top >= c.Bottom {
		return fmt.Errorf("CROP: invalid rectangle [%g,%g,%g,%g]", c.Left, c.Top, c.Right, c.Bottom)
	}
	return nil
}

// Border draws a solid frame of Size percent of the shorter side.
type Border struct {
	Size  int    // 0..100
	Color string // hex RRGGBB
}

func NewBorder() *Border { return &Border{Color: "000000"} }

func (b *Border) SerializationName() string { return "BORDER" }
func (b *Border) Name() string              { return "Border" }
func (b *Border) Group() Group              { return GroupBorder }
func (b *Border) IsNil() bool               { return b.Size == 0 }

func (b *Border) Copy() Representation {
	c := *b
	return &c
}

func (b *Border) Equal(other Representation) bool {
	o, ok := other.(*Border)
	return ok && *o == *b
}

func (b *Border) Serialize() []Param {
	return []Param{{"size", strconv.Itoa(b.Size)}, {"color", b.Color}}
}

func (b *Border) Deserialize(params []Param) error {
	for _, p := range params {
		switch p.Name {
		case "size":
			n, err := strconv.Atoi(p.Value)
			if err != nil || n < 0 || n > 100 {
				return fmt.Errorf("BORDER: invalid size %q", p.Value)
			}
			b.Size = n
		case "color":
			if _, err := strconv.ParseUint(p.Value, 16, 32); err != nil || len(p.Value) != 6 {
				return fmt.Errorf("BORDER: invalid color %q", p.Value)
			}
			b.Color = p.Value
		}
	}
	return nil
}

// RGB returns the border color components.
func (b *Border) RGB() (r, g, bl uint8) {
	v, _ := strconv.ParseUint(b.Color, 16, 32)
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}
