// Package previewsupplier fans the display goroutine's latest rendered
// preview out to any number of viewers (HTTP snapshot and MJPEG clients).
//
// # Philosophy
//
// "Latest preview only." A viewer that falls behind skips straight to the
// newest frame; nothing is queued.
//
// # Architecture
//
//	display goroutine → Supplier inbox → Viewer slots (N)
//	   (display fps)    single-slot       single-slot
//	                    overwrite         overwrite
//
// Each level is a mailbox (sync.Cond, single-slot buffer, overwrite).
//
// # Basic Usage
//
//	supplier := previewsupplier.New()
//	if err := supplier.Start(ctx); err != nil {
//	    return err
//	}
//	defer supplier.Stop()
//
//	// Display side
//	supplier.Publish(&previewsupplier.Frame{JPEG: encoded, Width: w, Height: h})
//
//	// Viewer side
//	next := supplier.Subscribe(viewerID)
//	defer supplier.Unsubscribe(viewerID)
//	for {
//	    frame := next()
//	    if frame == nil {
//	        return // unsubscribed or supplier stopped
//	    }
//	    write(frame.JPEG)
//	}
//
// Latest() returns the most recent frame without subscribing (snapshot
// endpoint).
//
// # Immutability
//
// Frame.JPEG is shared by reference between all viewers. The display side
// MUST NOT modify it after Publish; viewers MUST treat it as read-only.
//
// # Lifecycle
//
//  1. New()
//  2. Start(ctx): spawns the distribution loop
//  3. Publish()/Subscribe()/Latest()
//  4. Stop(): wakes every viewer (their read func returns nil)
package previewsupplier
