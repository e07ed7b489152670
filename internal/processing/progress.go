package processing

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/e7canasta/filtershow/modules/notifybus"
)

// MaxProcessingSteps is the number of progress steps of a save.
const MaxProcessingSteps = 6

// progressReporter publishes one request's events. Intermediate progress is
// rate limited; step 0, the last step and terminal events always go out.
type progressReporter struct {
	bus            notifybus.Bus
	requestID      string
	notificationID int
	limiter        *rate.Limiter
}

func newProgressReporter(bus notifybus.Bus, j *job, hz float64) *progressReporter {
	limit := rate.Inf
	if hz > 0 {
		limit = rate.Limit(hz)
	}
	return &progressReporter{
		bus:            bus,
		requestID:      j.ID,
		notificationID: j.NotificationID,
		limiter:        rate.NewLimiter(limit, 1),
	}
}

func (p *progressReporter) event(kind notifybus.Kind, current int) notifybus.Event {
	return notifybus.Event{
		Kind:           kind,
		RequestID:      p.requestID,
		NotificationID: p.notificationID,
		Current:        current,
		Max:            MaxProcessingSteps,
		Timestamp:      time.Now(),
	}
}

func (p *progressReporter) started() {
	p.bus.Publish(p.event(notifybus.KindStarted, 0))
}

func (p *progressReporter) progress(current int) {
	first, last := current == 0, current == MaxProcessingSteps
	if !first && !last && !p.limiter.Allow() {
		return
	}
	p.bus.Publish(p.event(notifybus.KindProgress, current))
}

// preview publishes progress with a thumbnail. Not rate limited.
func (p *progressReporter) preview(current int, thumb []byte) {
	ev := p.event(notifybus.KindProgress, current)
	ev.Thumbnail = thumb
	p.bus.Publish(ev)
}

func (p *progressReporter) completed(result string) {
	ev := p.event(notifybus.KindCompleted, MaxProcessingSteps)
	ev.Result = result
	p.bus.Publish(ev)
}

func (p *progressReporter) failed(current int, err error) {
	ev := p.event(notifybus.KindFailed, current)
	ev.Error = err.Error()
	p.bus.Publish(ev)
}
