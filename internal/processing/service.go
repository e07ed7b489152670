// Package processing implements the background save service: requests are
// queued, executed one at a time and reported through ordered notification
// events.
//
// Accepted requests are spooled to disk and redelivered after a restart,
// so a save interrupted by shutdown runs again on the next Start. The
// interrupted run still ends its event stream with a Failed event carrying
// the cancellation error; the redelivered run then publishes a fresh
// Started..Completed stream under the same request id. Interrupted runs are
// counted apart from failures.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/filtershow/internal/pipeline"
	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/modules/notifybus"
)

// Config contains save service settings.
type Config struct {
	QueueSize      int
	OutputDir      string
	SpoolDir       string
	JPEGQuality    int
	ProgressRateHz float64       // intermediate progress events per second (0 = unlimited)
	WriteRetry     time.Duration // max time spent retrying a write
}

// Status is a snapshot of the service.
type Status struct {
	Running bool   `json:"running"`
	Active  string `json:"active,omitempty"` // request being processed
	Queued  int    `json:"queued"`
	Saved   uint64 `json:"saved"`
	Failed  uint64 `json:"failed"`

	Interrupted uint64 `json:"interrupted"` // left spooled for redelivery
}

// Service accepts save requests and runs them on a TaskController.
type Service struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	bus      notifybus.Bus
	logger   *slog.Logger

	controller *TaskController
	spool      *Spool

	mu      sync.RWMutex // protects started/stopped
	started bool
	stopped bool

	notificationID atomic.Int64
	active         atomic.Pointer[string]
	saved          atomic.Uint64
	failed         atomic.Uint64
	interrupted    atomic.Uint64
}

// New creates a service. Nothing runs until Start.
func New(cfg Config, pl *pipeline.Pipeline, bus notifybus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = "spool"
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 95
	}
	if cfg.WriteRetry <= 0 {
		cfg.WriteRetry = 3 * time.Second
	}
	return &Service{
		cfg:        cfg,
		pipeline:   pl,
		bus:        bus,
		logger:     logger.With("component", "processing"),
		controller: NewTaskController(cfg.QueueSize),
	}
}

// Start opens the spool, starts the worker and redelivers requests left by a
// previous run, in submission order.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("service already started")
	}
	if s.stopped {
		return ErrNotStarted
	}

	spool, err := OpenSpool(s.cfg.SpoolDir, s.logger)
	if err != nil {
		return err
	}
	pending, err := spool.Load()
	if err != nil {
		return err
	}
	s.spool = spool

	for _, j := range pending {
		if int64(j.NotificationID) > s.notificationID.Load() {
			s.notificationID.Store(int64(j.NotificationID))
		}
	}

	s.controller.Start(ctx)
	s.started = true

	for _, j := range pending {
		pr, err := j.Request.Validate()
		if err != nil {
			s.logger.Warn("dropping invalid spooled request", "request_id", j.ID, "error", err)
			s.removeSpooled(j)
			continue
		}
		if err := s.controller.enqueueForce(s.taskFor(j, pr)); err != nil {
			return fmt.Errorf("failed to redeliver %s: %w", j.ID, err)
		}
		s.logger.Info("redelivering save request", "request_id", j.ID, "source", j.Request.Source)
	}

	s.logger.Info("processing service started",
		"queue_size", s.cfg.QueueSize,
		"output_dir", s.cfg.OutputDir,
		"redelivered", len(pending))
	return nil
}

// Stop stops accepting requests and waits for the active save.
// Queued requests stay spooled for the next Start. Idempotent.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasStarted := s.started
	s.mu.Unlock()

	if !wasStarted {
		return nil
	}

	dropped := s.controller.Quit()
	s.logger.Info("processing service stopped",
		"saved", s.saved.Load(),
		"failed", s.failed.Load(),
		"interrupted", s.interrupted.Load(),
		"left_spooled", dropped)
	return nil
}

// HandleSaveRequest validates req, spools it and queues it for saving.
// Returns the request id used on every event about it.
func (s *Service) HandleSaveRequest(ctx context.Context, req SaveRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	running := s.started && !s.stopped
	s.mu.RUnlock()
	if !running {
		return "", ErrNotStarted
	}

	pr, err := req.Validate()
	if err != nil {
		return "", err
	}

	j := &job{
		ID:             uuid.NewString(),
		Seq:            s.spool.NextSeq(),
		NotificationID: int(s.notificationID.Add(1)),
		SubmittedAt:    time.Now(),
		Request:        req,
	}

	if err := s.spool.Put(j); err != nil {
		return "", err
	}
	if err := s.controller.Enqueue(s.taskFor(j, pr)); err != nil {
		s.removeSpooled(j)
		return "", err
	}

	s.logger.Info("save request queued",
		"request_id", j.ID,
		"notification_id", j.NotificationID,
		"source", req.Source,
		"queued", s.controller.Len())
	return j.ID, nil
}

func (s *Service) taskFor(j *job, pr *preset.Preset) Task {
	return func(ctx context.Context) {
		s.run(ctx, j, pr)
	}
}

func (s *Service) run(ctx context.Context, j *job, pr *preset.Preset) {
	id := j.ID
	s.active.Store(&id)
	defer s.active.Store(nil)

	rep := newProgressReporter(s.bus, j, s.cfg.ProgressRateHz)
	rep.started()

	start := time.Now()
	result, err := s.imageSavingTask(ctx, j, pr, rep)
	if err != nil {
		step := 0
		var se *stepError
		if errors.As(err, &se) {
			step = se.step - 1
		}
		rep.failed(step, err)

		if errors.Is(err, context.Canceled) {
			// Interrupted by shutdown: keep it spooled for redelivery.
			s.interrupted.Add(1)
			s.logger.Warn("save interrupted", "request_id", j.ID, "error", err)
			return
		}
		s.failed.Add(1)
		s.logger.Error("save failed", "request_id", j.ID, "source", j.Request.Source, "error", err)
		s.removeSpooled(j)
		return
	}

	s.saved.Add(1)
	rep.completed(result)
	s.removeSpooled(j)

	s.logger.Info("save completed",
		"request_id", j.ID,
		"result", result,
		"elapsed", time.Since(start))
}

func (s *Service) removeSpooled(j *job) {
	if err := s.spool.Remove(j); err != nil {
		s.logger.Warn("spool cleanup failed", "request_id", j.ID, "error", err)
	}
}

// Status returns a snapshot of the service.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.started && !s.stopped
	s.mu.RUnlock()

	st := Status{
		Running: running,
		Queued:  s.controller.Len(),
		Saved:   s.saved.Load(),
		Failed:  s.failed.Load(),

		Interrupted: s.interrupted.Load(),
	}
	if id := s.active.Load(); id != nil {
		st.Active = *id
	}
	return st
}
