package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/filtershow/internal/pipeline"
	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/internal/processing"
	"github.com/e7canasta/filtershow/modules/previewsupplier"
)

type fakeSaver struct {
	mu   sync.Mutex
	reqs []processing.SaveRequest
	err  error
}

func (f *fakeSaver) HandleSaveRequest(_ context.Context, req processing.SaveRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return "req-1", nil
}

func (f *fakeSaver) Status() processing.Status {
	return processing.Status{Running: true, Queued: 1}
}

type fakePreviewer struct {
	supplier previewsupplier.Supplier

	mu          sync.Mutex
	source      string
	preset      *preset.Preset
	invalidated bool
	err         error
}

func (f *fakePreviewer) SetPreview(source string, pr *preset.Preset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source, f.preset = source, pr
	return f.err
}

func (f *fakePreviewer) Invalidate() {
	f.mu.Lock()
	f.invalidated = true
	f.mu.Unlock()
}

func (f *fakePreviewer) Running() bool                     { return true }
func (f *fakePreviewer) Stats() pipeline.Stats             { return pipeline.Stats{Renders: 3} }
func (f *fakePreviewer) Preview() previewsupplier.Supplier { return f.supplier }

func newTestServer(t *testing.T) (*httptest.Server, *fakeSaver, *fakePreviewer) {
	t.Helper()

	supplier := previewsupplier.New()
	if err := supplier.Start(context.Background()); err != nil {
		t.Fatalf("supplier Start: %v", err)
	}
	saver := &fakeSaver{}
	previewer := &fakePreviewer{supplier: supplier}

	srv := NewServer(":0", Deps{Saver: saver, Preview: previewer}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		supplier.Stop()
		ts.Close()
	})
	return ts, saver, previewer
}

func TestSaveAccepted(t *testing.T) {
	ts, saver, _ := newTestServer(t)

	body := `{"source":"/p/a.jpg","preset":{"name":"x","GRAYSCALE":{}}}`
	resp, err := http.Post(ts.URL+"/save", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /save: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["id"] != "req-1" {
		t.Errorf("id = %q", out["id"])
	}
	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.reqs) != 1 || saver.reqs[0].Source != "/p/a.jpg" {
		t.Errorf("requests = %+v", saver.reqs)
	}
}

func TestSaveErrorCodes(t *testing.T) {
	ts, saver, _ := newTestServer(t)

	cases := []struct {
		err  error
		code int
	}{
		{processing.ErrQueueFull, http.StatusServiceUnavailable},
		{processing.ErrNotStarted, http.StatusServiceUnavailable},
		{processing.ErrInvalidRequest, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		saver.mu.Lock()
		saver.err = c.err
		saver.mu.Unlock()
		resp, err := http.Post(ts.URL+"/save", "application/json", strings.NewReader(`{"source":"a"}`))
		if err != nil {
			t.Fatalf("POST /save: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.code {
			t.Errorf("%v: status = %d, want %d", c.err, resp.StatusCode, c.code)
		}
	}

	resp, _ := http.Post(ts.URL+"/save", "application/json", strings.NewReader(`{`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp.StatusCode)
	}
}

func TestSetPreviewParsesPreset(t *testing.T) {
	ts, _, previewer := newTestServer(t)

	body := `{"source":"/p/a.jpg","preset":{"name":"look","SEPIA":{"Name":"Sepia","Value":"40"}}}`
	resp, err := http.Post(ts.URL+"/preview", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /preview: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	previewer.mu.Lock()
	if previewer.source != "/p/a.jpg" || previewer.preset == nil || previewer.preset.Name != "look" {
		t.Errorf("previewer got source=%q preset=%+v", previewer.source, previewer.preset)
	}
	previewer.err = pipeline.ErrPipelineShutdown
	previewer.mu.Unlock()

	resp, _ = http.Post(ts.URL+"/preview", "application/json", strings.NewReader(`{"preset":{}}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing source: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = http.Post(ts.URL+"/preview", "application/json", strings.NewReader(`{"source":"a"}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("shut down pipeline: status = %d, want 503", resp.StatusCode)
	}
}

func TestInvalidate(t *testing.T) {
	ts, _, previewer := newTestServer(t)

	resp, err := http.Post(ts.URL+"/invalidate", "", nil)
	if err != nil {
		t.Fatalf("POST /invalidate: %v", err)
	}
	resp.Body.Close()

	previewer.mu.Lock()
	defer previewer.mu.Unlock()
	if resp.StatusCode != http.StatusNoContent || !previewer.invalidated {
		t.Errorf("status = %d invalidated = %v", resp.StatusCode, previewer.invalidated)
	}
}

func TestHealthAndStatus(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var h HealthStatus
	json.NewDecoder(resp.Body).Decode(&h)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || h.Status != "healthy" || h.MQTTConnected != nil {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}

	resp, err = http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var st statusResponse
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.Processing.Queued != 1 || st.Pipeline.Renders != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestPreviewJPEG(t *testing.T) {
	ts, _, previewer := newTestServer(t)

	resp, _ := http.Get(ts.URL + "/preview.jpg")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("before first frame: status = %d, want 404", resp.StatusCode)
	}

	previewer.supplier.Publish(&previewsupplier.Frame{JPEG: []byte("jpegdata"), RenderedAt: time.Now(), SourceSeq: 5})

	deadline := time.Now().Add(2 * time.Second)
	for previewer.supplier.Latest() == nil {
		if time.Now().After(deadline) {
			t.Fatal("frame never distributed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/preview.jpg")
	if err != nil {
		t.Fatalf("GET /preview.jpg: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "jpegdata" || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("body = %q type = %q", data, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("X-Source-Seq") != "5" {
		t.Errorf("X-Source-Seq = %q", resp.Header.Get("X-Source-Seq"))
	}
}

func TestPreviewMJPEGStreamsFrames(t *testing.T) {
	ts, _, previewer := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/preview.mjpeg", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /preview.mjpeg: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	// Headers are flushed after Subscribe, so the viewer is registered.
	previewer.supplier.Publish(&previewsupplier.Frame{JPEG: []byte("frame-1")})

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if strings.TrimSpace(line) != "--"+mjpegBoundary {
		t.Errorf("boundary line = %q", line)
	}
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			t.Fatalf("read headers: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}
	body := make([]byte, len("frame-1"))
	if _, err := io.ReadFull(br, body); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(body) != "frame-1" {
		t.Errorf("frame = %q", body)
	}
}
