package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// nameKey holds the preset name inside the JSON object; every other key is a
// filter serialization name.
const nameKey = "name"

// ErrUnknownFilter is returned when a preset references a filter that has no
// registered representation.
var ErrUnknownFilter = errors.New("preset: unknown filter")

var constructors = map[string]func() Representation{
	"BRIGHTNESS": func() Representation { return NewBasic("BRIGHTNESS", "Brightness", GroupTool, -100, 0, 100) },
	"CONTRAST":   func() Representation { return NewBasic("CONTRAST", "Contrast", GroupTool, -100, 0, 100) },
	"SATURATION": func() Representation { return NewBasic("SATURATION", "Saturation", GroupTool, -100, 0, 100) },
	"HUE":        func() Representation { return NewBasic("HUE", "Hue", GroupTool, -180, 0, 180) },
	"SHARPEN":    func() Representation { return NewBasic("SHARPEN", "Sharpness", GroupEffect, 0, 0, 100) },
	"BLUR":       func() Representation { return NewBasic("BLUR", "Blur", GroupEffect, 0, 0, 100) },
	"SEPIA":      func() Representation { return NewBasic("SEPIA", "Sepia", GroupLook, 0, 0, 100) },
	"GRAYSCALE":  func() Representation { return NewToggle("GRAYSCALE", "Black & White", GroupLook) },
	"NEGATIVE":   func() Representation { return NewToggle("NEGATIVE", "Negative", GroupLook) },
	"VIGNETTE":   func() Representation { return NewVignette() },
	"ROTATION":   func() Representation { return NewRotate() },
	"CROP":       func() Representation { return NewCrop() },
	"BORDER":     func() Representation { return NewBorder() },
}

// New creates the default representation for a serialization name.
func New(serialization string) (Representation, error) {
	ctor, ok := constructors[serialization]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, serialization)
	}
	return ctor(), nil
}

// Names returns every known serialization name, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Preset is an ordered filter stack.
type Preset struct {
	Name    string
	Filters []Representation
}

// Add appends a representation, replacing an existing one with the same
// serialization name in place.
func (p *Preset) Add(r Representation) {
	for i, f := range p.Filters {
		if f.SerializationName() == r.SerializationName() {
			p.Filters[i] = r
			return
		}
	}
	p.Filters = append(p.Filters, r)
}

// Get returns the representation with the given serialization name.
func (p *Preset) Get(serialization string) (Representation, bool) {
	for _, f := range p.Filters {
		if f.SerializationName() == serialization {
			return f, true
		}
	}
	return nil, false
}

// Active returns the filters that change the image, in order.
func (p *Preset) Active() []Representation {
	out := make([]Representation, 0, len(p.Filters))
	for _, f := range p.Filters {
		if !f.IsNil() {
			out = append(out, f)
		}
	}
	return out
}

// IsNil reports whether applying the preset leaves the image unchanged.
func (p *Preset) IsNil() bool {
	return len(p.Active()) == 0
}

// Copy returns a deep copy.
func (p *Preset) Copy() *Preset {
	c := &Preset{Name: p.Name, Filters: make([]Representation, len(p.Filters))}
	for i, f := range p.Filters {
		c.Filters[i] = f.Copy()
	}
	return c
}

// Equal compares names, order and parameters.
func (p *Preset) Equal(o *Preset) bool {
	if o == nil || len(p.Filters) != len(o.Filters) {
		return false
	}
	for i := range p.Filters {
		if !p.Filters[i].Equal(o.Filters[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes filters in stack order.
func (p *Preset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	name, _ := json.Marshal(p.Name)
	buf.WriteString(`"` + nameKey + `":`)
	buf.Write(name)

	for _, f := range p.Filters {
		key, _ := json.Marshal(f.SerializationName())
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteString(":{")
		for i, param := range f.Serialize() {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(param.Name)
			v, _ := json.Marshal(param.Value)
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads filters preserving key order.
func (p *Preset) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	p.Filters = nil
	for dec.More() {
		key, err := readString(dec)
		if err != nil {
			return err
		}

		if key == nameKey {
			if p.Name, err = readString(dec); err != nil {
				return fmt.Errorf("preset name: %w", err)
			}
			continue
		}

		params, err := readParams(dec)
		if err != nil {
			return fmt.Errorf("filter %s: %w", key, err)
		}

		rep, err := New(key)
		if err != nil {
			return err
		}
		if err := rep.Deserialize(params); err != nil {
			return err
		}
		p.Add(rep)
	}

	return expectDelim(dec, '}')
}

// Parse decodes a preset JSON payload.
func Parse(data []byte) (*Preset, error) {
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	return &p, nil
}

func readParams(dec *json.Decoder) ([]Param, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var params []Param
	for dec.More() {
		name, err := readString(dec)
		if err != nil {
			return nil, err
		}
		value, err := readString(dec)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		params = append(params, Param{Name: name, Value: value})
	}
	return params, expectDelim(dec, '}')
}

func readString(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}
	return s, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
