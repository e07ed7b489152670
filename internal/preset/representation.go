// Package preset models the image preset carried by save requests: an ordered
// list of filter representations with their parameters.
//
// The JSON form is an object keyed by serialization name, each value an
// object of parameter name → string value, in filter order:
//
//	{"BRIGHTNESS": {"Name": "Brightness", "Value": "20"},
//	 "VIGNETTE":   {"Name": "Vignette", "value": "40", "mCenterX": "0.5", ...}}
package preset

import (
	"fmt"
	"strconv"
)

// Group classifies a representation the way the filter registry groups them.
type Group string

const (
	GroupLook   Group = "look"
	GroupBorder Group = "border"
	GroupTool   Group = "tool"
	GroupEffect Group = "effect"
)

// Param is one serialized name/value pair.
type Param struct {
	Name  string
	Value string
}

// Representation describes one filter application, independent of how it
// is executed.
type Representation interface {
	// SerializationName is the preset JSON key ("VIGNETTE", "BRIGHTNESS", ...).
	SerializationName() string
	// Name is the display name.
	Name() string
	Group() Group
	// IsNil reports whether applying the filter would leave the image unchanged.
	IsNil() bool
	Copy() Representation
	Equal(other Representation) bool
	Serialize() []Param
	Deserialize(params []Param) error
}

// Basic is a single-value representation clamped to [Min, Max].
type Basic struct {
	serialization string
	name          string
	group         Group

	Value   int
	Min     int
	Max     int
	Default int
}

// NewBasic creates a value representation set to its default.
func NewBasic(serialization, name string, group Group, min, def, max int) *Basic {
	return &Basic{
		serialization: serialization,
		name:          name,
		group:         group,
		Value:         def,
		Min:           min,
		Max:           max,
		Default:       def,
	}
}

func (b *Basic) SerializationName() string { return b.serialization }
func (b *Basic) Name() string              { return b.name }
func (b *Basic) Group() Group              { return b.group }

// IsNil reports whether the value equals the default.
func (b *Basic) IsNil() bool {
	return b.Value == b.Default
}

// SetValue clamps v into [Min, Max].
func (b *Basic) SetValue(v int) {
	switch {
	case v < b.Min:
		v = b.Min
	case v > b.Max:
		v = b.Max
	}
	b.Value = v
}

func (b *Basic) Copy() Representation {
	c := *b
	return &c
}

func (b *Basic) Equal(other Representation) bool {
	o, ok := other.(*Basic)
	if !ok {
		return false
	}
	return o.serialization == b.serialization && o.Value == b.Value
}

func (b *Basic) Serialize() []Param {
	return []Param{
		{"Name", b.name},
		{"Value", strconv.Itoa(b.Value)},
	}
}

func (b *Basic) Deserialize(params []Param) error {
	for _, p := range params {
		switch p.Name {
		case "Name":
			b.name = p.Value
		case "Value":
			v, err := strconv.Atoi(p.Value)
			if err != nil {
				return fmt.Errorf("%s: invalid value %q: %w", b.serialization, p.Value, err)
			}
			b.SetValue(v)
		}
	}
	return nil
}

// Toggle is a parameterless representation (grayscale, invert): present means on.
type Toggle struct {
	serialization string
	name          string
	group         Group
}

func NewToggle(serialization, name string, group Group) *Toggle {
	return &Toggle{serialization: serialization, name: name, group: group}
}

func (t *Toggle) SerializationName() string { return t.serialization }
func (t *Toggle) Name() string              { return t.name }
func (t *Toggle) Group() Group              { return t.group }
func (t *Toggle) IsNil() bool               { return false }

func (t *Toggle) Copy() Representation {
	c := *t
	return &c
}

func (t *Toggle) Equal(other Representation) bool {
	o, ok := other.(*Toggle)
	return ok && o.serialization == t.serialization
}

func (t *Toggle) Serialize() []Param {
	return []Param{{"Name", t.name}}
}

func (t *Toggle) Deserialize(params []Param) error {
	for _, p := range params {
		if p.Name == "Name" {
			t.name = p.Value
		}
	}
	return nil
}
