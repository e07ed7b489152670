// Package httpapi exposes the save service and the live preview over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"github.com/e7canasta/filtershow/internal/pipeline"
	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/internal/processing"
	"github.com/e7canasta/filtershow/modules/previewsupplier"
)

// Saver accepts save requests.
type Saver interface {
	HandleSaveRequest(ctx context.Context, req processing.SaveRequest) (string, error)
	Status() processing.Status
}

// Previewer drives the live preview.
type Previewer interface {
	SetPreview(source string, pr *preset.Preset) error
	Invalidate()
	Running() bool
	Stats() pipeline.Stats
	Preview() previewsupplier.Supplier
}

// Deps are the components served by the API.
type Deps struct {
	Saver   Saver
	Preview Previewer
	// MQTTConnected reports the broker link (nil when MQTT is disabled).
	MQTTConnected func() bool
}

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status         string `json:"status"` // "healthy", "degraded"
	UptimeSeconds  int64  `json:"uptime_seconds"`
	PreviewRunning bool   `json:"preview_running"`
	SaverRunning   bool   `json:"saver_running"`
	MQTTConnected  *bool  `json:"mqtt_connected,omitempty"`
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	started time.Time
	router  chi.Router
	srv     *http.Server
}

// NewServer builds the router. Call ListenAndServe to serve it on addr.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:    deps,
		logger:  logger.With("component", "http"),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/save", s.handleSave)
	r.Get("/preview.jpg", s.handlePreviewJPEG)
	r.Get("/preview.mjpeg", s.handlePreviewMJPEG)
	r.Post("/preview", s.handleSetPreview)
	r.Post("/invalidate", s.handleInvalidate)

	s.router = r
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. Returns nil after a clean shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http api listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
// Preview streams end when the preview supplier stops.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := HealthStatus{
		Status:         "healthy",
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		PreviewRunning: s.deps.Preview.Running(),
		SaverRunning:   s.deps.Saver.Status().Running,
	}
	if s.deps.MQTTConnected != nil {
		connected := s.deps.MQTTConnected()
		h.MQTTConnected = &connected
		if !connected {
			h.Status = "degraded"
		}
	}

	code := http.StatusOK
	if !h.PreviewRunning || !h.SaverRunning {
		h.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

type statusResponse struct {
	Processing processing.Status     `json:"processing"`
	Pipeline   pipelineStatus        `json:"pipeline"`
	Preview    previewsupplier.Stats `json:"preview"`
}

type pipelineStatus struct {
	Renders      uint64 `json:"renders"`
	RenderErrors uint64 `json:"render_errors"`
	RequestDrops uint64 `json:"request_drops"`
	Displayed    uint64 `json:"displayed"`
	Produced     uint64 `json:"frames_produced"`
	Consumed     uint64 `json:"frames_consumed"`
	Dropped      uint64 `json:"frames_dropped"`
	PoolHits     uint64 `json:"pool_hits"`
	PoolMisses   uint64 `json:"pool_misses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ps := s.deps.Preview.Stats()
	writeJSON(w, http.StatusOK, statusResponse{
		Processing: s.deps.Saver.Status(),
		Pipeline: pipelineStatus{
			Renders:      ps.Renders,
			RenderErrors: ps.RenderErrors,
			RequestDrops: ps.RequestDrops,
			Displayed:    ps.Displayed,
			Produced:     ps.Buffer.Produced,
			Consumed:     ps.Buffer.Consumed,
			Dropped:      ps.Buffer.Dropped,
			PoolHits:     ps.Pool.Hits,
			PoolMisses:   ps.Pool.Misses,
		},
		Preview: s.deps.Preview.Preview().Stats(),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req processing.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.deps.Saver.HandleSaveRequest(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
	case errors.Is(err, processing.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, processing.ErrQueueFull), errors.Is(err, processing.ErrNotStarted):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("save request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type previewRequest struct {
	Source string          `json:"source"`
	Preset json.RawMessage `json:"preset,omitempty"`
}

func (s *Server) handleSetPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		http.Error(w, "source is required", http.StatusBadRequest)
		return
	}

	var pr *preset.Preset
	if len(req.Preset) > 0 {
		p, err := preset.Parse(req.Preset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pr = p
	}

	if err := s.deps.Preview.SetPreview(req.Source, pr); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.deps.Preview.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviewJPEG(w http.ResponseWriter, r *http.Request) {
	frame := s.deps.Preview.Preview().Latest()
	if frame == nil {
		http.Error(w, "no preview rendered yet", http.StatusNotFound)
		return
	}
	writeFrameHeaders(w.Header(), frame)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame.JPEG)
}

const mjpegBoundary = "filtershowframe"

// handlePreviewMJPEG streams every distributed preview frame until the
// client goes away or the supplier stops.
func (s *Server) handlePreviewMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	supplier := s.deps.Preview.Preview()
	viewerID := "http-" + uuid.NewString()
	read := supplier.Subscribe(viewerID)

	// Unsubscribe releases the blocked read when the client disconnects.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context().Done():
		case <-done:
		}
		supplier.Unsubscribe(viewerID)
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("preview viewer connected", "viewer_id", viewerID)

	for {
		frame := read()
		if frame == nil {
			s.logger.Debug("preview viewer released", "viewer_id", viewerID)
			return
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			mjpegBoundary, len(frame.JPEG)); err != nil {
			return
		}
		if _, err := w.Write(frame.JPEG); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeFrameHeaders(h http.Header, f *previewsupplier.Frame) {
	h.Set("X-Frame-Seq", fmt.Sprint(f.Seq))
	h.Set("X-Source-Seq", fmt.Sprint(f.SourceSeq))
	h.Set("Last-Modified", f.RenderedAt.UTC().Format(http.TimeFormat))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
