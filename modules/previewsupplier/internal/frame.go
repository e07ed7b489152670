package internal

import "time"

// Frame is one JPEG-encoded preview.
//
// JPEG is shared by reference across viewers and MUST NOT be modified after
// Publish.
type Frame struct {
	JPEG []byte

	Width  int
	Height int

	// RenderedAt is when the display goroutine encoded the frame.
	RenderedAt time.Time

	// SourceSeq is the render sequence number the frame was built from.
	SourceSeq uint64

	// Seq is assigned by the supplier during distribution. Monotonic.
	Seq uint64
}
