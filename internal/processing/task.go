package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	xdraw "golang.org/x/image/draw"

	"github.com/e7canasta/filtershow/internal/preset"
)

// Save steps, reported as progress 1..MaxProcessingSteps.
const (
	stepDecode = iota + 1
	stepApply
	stepEncode
	stepWrite
	stepRename
	stepFinalize
)

// stepError records the step at which a save failed.
type stepError struct {
	step int
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func failAt(step int, format string, args ...any) error {
	return &stepError{step: step, err: fmt.Errorf(format, args...)}
}

// imageSavingTask renders a preset onto a full-resolution source and writes
// the result.
func (s *Service) imageSavingTask(ctx context.Context, j *job, pr *preset.Preset, rep *progressReporter) (string, error) {
	rep.progress(0)
	if err := ctx.Err(); err != nil {
		return "", failAt(stepDecode, "save not started: %w", err)
	}

	src, err := s.pipeline.Decoder().DecodeFile(j.Request.Source)
	if err != nil {
		return "", failAt(stepDecode, "decode source: %w", err)
	}
	defer s.pipeline.Decoder().Put(src)
	rep.progress(stepDecode)

	out, err := s.pipeline.Apply(ctx, src, pr)
	if err != nil {
		return "", failAt(stepApply, "apply preset: %w", err)
	}
	if out != src {
		defer s.pipeline.Decoder().Put(out)
	}
	if thumb, err := thumbnail(out); err != nil {
		s.logger.Debug("thumbnail failed", "request_id", j.ID, "error", err)
		rep.progress(stepApply)
	} else {
		rep.preview(stepApply, thumb)
	}

	dest := j.Request.Destination
	if dest == "" {
		dest = defaultDestination(s.cfg.OutputDir, j.Request.Source, j.SubmittedAt)
	}
	data, err := encode(out, dest, s.cfg.JPEGQuality)
	if err != nil {
		return "", failAt(stepEncode, "encode result: %w", err)
	}
	rep.progress(stepEncode)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", failAt(stepWrite, "create output dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+j.ID+".tmp")
	if err := s.retry(ctx, func() error { return os.WriteFile(tmp, data, 0o644) }); err != nil {
		return "", failAt(stepWrite, "write temp file: %w", err)
	}
	rep.progress(stepWrite)

	if err := s.retry(ctx, func() error { return os.Rename(tmp, dest) }); err != nil {
		os.Remove(tmp)
		return "", failAt(stepRename, "rename to destination: %w", err)
	}
	rep.progress(stepRename)

	info, err := os.Stat(dest)
	if err != nil {
		return "", failAt(stepFinalize, "stat result: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return "", failAt(stepFinalize, "result size %d, wrote %d", info.Size(), len(data))
	}
	rep.progress(stepFinalize)

	return dest, nil
}

// thumbnailSize bounds the longer side of event thumbnails.
const thumbnailSize = 128

// thumbnail scales img to fit thumbnailSize and encodes it as JPEG.
func thumbnail(img image.Image) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > thumbnailSize || h > thumbnailSize {
		if w >= h {
			w, h = thumbnailSize, max(1, h*thumbnailSize/w)
		} else {
			w, h = max(1, w*thumbnailSize/h), thumbnailSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// retry runs op with exponential backoff. Missing paths and permission
// errors are not retried.
func (s *Service) retry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     20 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      s.cfg.WriteRetry,
		Clock:               backoff.SystemClock,
	}

	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}

// defaultDestination is <dir>/<stem>_edited_<timestamp>.jpg.
func defaultDestination(dir, source string, at time.Time) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s_edited_%s.jpg", stem, at.Format("20060102_150405"))
	return filepath.Join(dir, name)
}

// encode picks the codec from dest's extension (PNG or JPEG).
func encode(img image.Image, dest string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
