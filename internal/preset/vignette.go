package preset

import (
	"fmt"
	"math"
	"strconv"
)

var vignetteParams = [...]string{
	"Name", "value", "mCenterX", "mCenterY", "mRadiusX", "mRadiusY",
}

// Vignette darkens (positive value) or lightens (negative value) the image
// outside an oval.
//
// Center and radius are in normalized image coordinates. An unset center or
// radius is NaN; the filter then uses the image center and half extents.
type Vignette struct {
	name  string
	Value int

	CenterX, CenterY float64
	RadiusX, RadiusY float64
}

// NewVignette creates a vignette with value 0 and unset oval.
func NewVignette() *Vignette {
	return &Vignette{
		name:    "Vignette",
		CenterX: math.NaN(),
		CenterY: math.NaN(),
		RadiusX: math.NaN(),
		RadiusY: math.NaN(),
	}
}

func (v *Vignette) SerializationName() string { return "VIGNETTE" }
func (v *Vignette) Name() string              { return v.name }
func (v *Vignette) Group() Group              { return GroupEffect }
func (v *Vignette) IsNil() bool               { return v.Value == 0 }

// SetValue clamps into [-100, 100].
func (v *Vignette) SetValue(value int) {
	v.Value = int(math.Max(-100, math.Min(100, float64(value))))
}

func (v *Vignette) SetCenter(x, y float64) {
	v.CenterX, v.CenterY = x, y
}

func (v *Vignette) SetRadius(x, y float64) {
	v.RadiusX, v.RadiusY = x, y
}

// IsCenterSet reports whether an explicit center was provided.
// NaN never compares equal to itself, so this must use math.IsNaN.
func (v *Vignette) IsCenterSet() bool {
	return !math.IsNaN(v.CenterX) && !math.IsNaN(v.CenterY)
}

// IsRadiusSet reports whether an explicit radius was provided.
func (v *Vignette) IsRadiusSet() bool {
	return !math.IsNaN(v.RadiusX) && !math.IsNaN(v.RadiusY)
}

func (v *Vignette) Copy() Representation {
	c := *v
	return &c
}

// Equal compares value and oval; two unset coordinates are equal.
func (v *Vignette) Equal(other Representation) bool {
	o, ok := other.(*Vignette)
	if !ok || o.Value != v.Value {
		return false
	}
	return sameFloat(o.CenterX, v.CenterX) && sameFloat(o.CenterY, v.CenterY) &&
		sameFloat(o.RadiusX, v.RadiusX) && sameFloat(o.RadiusY, v.RadiusY)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func (v *Vignette) Serialize() []Param {
	return []Param{
		{vignetteParams[0], v.name},
		{vignetteParams[1], strconv.Itoa(v.Value)},
		{vignetteParams[2], formatFloat(v.CenterX)},
		{vignetteParams[3], formatFloat(v.CenterY)},
		{vignetteParams[4], formatFloat(v.RadiusX)},
		{vignetteParams[5], formatFloat(v.RadiusY)},
	}
}

func (v *Vignette) Deserialize(params []Param) error {
	for _, p := range params {
		var err error
		switch p.Name {
		case vignetteParams[0]:
			v.name = p.Value
		case vignetteParams[1]:
			var n int
			n, err = strconv.Atoi(p.Value)
			v.SetValue(n)
		case vignetteParams[2]:
			v.CenterX, err = parseFloat(p.Value)
		case vignetteParams[3]:
			v.CenterY, err = parseFloat(p.Value)
		case vignetteParams[4]:
			v.RadiusX, err = parseFloat(p.Value)
		case vignetteParams[5]:
			v.RadiusY, err = parseFloat(p.Value)
		}
		if err != nil {
			return fmt.Errorf("VIGNETTE: invalid %s %q: %w", p.Name, p.Value, err)
		}
	}
	return nil
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
