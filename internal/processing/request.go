package processing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/e7canasta/filtershow/internal/preset"
)

// SaveRequest asks the service to render a preset onto a source image and
// write the result.
type SaveRequest struct {
	// Preset is the preset JSON payload.
	Preset json.RawMessage `json:"preset" msgpack:"preset"`
	// Source is the path of the image to edit.
	Source string `json:"source" msgpack:"source"`
	// Selected optionally names the item the user had selected.
	Selected string `json:"selected,omitempty" msgpack:"selected,omitempty"`
	// Destination overrides the default output path.
	Destination string `json:"destination,omitempty" msgpack:"destination,omitempty"`
}

// Validate checks the request and returns the parsed preset.
func (r *SaveRequest) Validate() (*preset.Preset, error) {
	if r.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	if len(r.Preset) == 0 {
		return nil, fmt.Errorf("%w: preset is required", ErrInvalidRequest)
	}
	p, err := preset.Parse(r.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return p, nil
}

// job is a request accepted by the service, as spooled for redelivery.
type job struct {
	ID             string      `msgpack:"id"`
	Seq            uint64      `msgpack:"seq"`
	NotificationID int         `msgpack:"notification_id"`
	SubmittedAt    time.Time   `msgpack:"submitted_at"`
	Request        SaveRequest `msgpack:"request"`
}
