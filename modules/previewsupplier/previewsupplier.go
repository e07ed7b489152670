package previewsupplier

import (
	"context"

	"github.com/e7canasta/filtershow/modules/previewsupplier/internal"
)

// Frame is re-exported from internal package.
// See internal/frame.go for full documentation.
type Frame = internal.Frame

// Stats is re-exported from internal package.
type Stats = internal.Stats

// ViewerStats is re-exported from internal package.
type ViewerStats = internal.ViewerStats

// Supplier distributes preview frames to viewers.
//
// Lifecycle: New() → Start() → Publish()/Subscribe() → Stop().
// All methods are safe for concurrent use.
type Supplier interface {
	// Start spawns the distribution loop. Returns error if already started.
	Start(ctx context.Context) error

	// Stop shuts the distribution loop down and releases every viewer.
	// Idempotent.
	Stop() error

	// Publish hands a frame to the distribution loop (non-blocking).
	// An undistributed previous frame is overwritten and counted in InboxDrops.
	Publish(frame *Frame)

	// Subscribe registers a viewer and returns its blocking read function.
	// The read function returns nil after Unsubscribe or Stop.
	// Subscribing after Stop returns a read function that yields nil at once.
	Subscribe(viewerID string) func() *Frame

	// Unsubscribe releases a viewer. Safe for unknown ids.
	Unsubscribe(viewerID string)

	// Latest returns the most recently distributed frame (nil before the first).
	Latest() *Frame

	// Stats returns an operational snapshot.
	Stats() Stats
}

// New creates a Supplier.
func New() Supplier {
	return internal.NewSupplier()
}
