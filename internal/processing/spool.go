package processing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

const spoolExt = ".job"

// Spool persists accepted jobs until they complete, so a restart can
// redeliver them in submission order.
//
// One file per job: 4-byte big-endian length prefix followed by the msgpack
// body. Files are written to a temp name and renamed into place.
type Spool struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
}

// OpenSpool creates dir if needed.
func OpenSpool(dir string, logger *slog.Logger) (*Spool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &Spool{dir: dir, logger: logger}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// NextSeq returns a sequence number greater than any loaded or issued one.
func (s *Spool) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq++
	return s.lastSeq
}

func (s *Spool) path(j *job) string {
	return filepath.Join(s.dir, fmt.Sprintf("%020d-%s%s", j.Seq, j.ID, spoolExt))
}

// Put writes j to the spool.
func (s *Spool) Put(j *job) error {
	body, err := msgpack.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack job: %w", err)
	}

	data := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(data[:4], uint32(len(body)))
	copy(data[4:], body)

	final := s.path(j)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write spool entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit spool entry: %w", err)
	}
	return nil
}

// Remove deletes j from the spool. Missing entries are not an error.
func (s *Spool) Remove(j *job) error {
	if err := os.Remove(s.path(j)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove spool entry: %w", err)
	}
	return nil
}

// Load returns every spooled job ordered by sequence. Unreadable entries are
// logged and moved aside with a .bad suffix.
func (s *Spool) Load() ([]*job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool dir: %w", err)
	}

	var jobs []*job
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), spoolExt) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())

		j, err := readJob(path)
		if err != nil {
			s.logger.Warn("discarding unreadable spool entry", "path", path, "error", err)
			if err := os.Rename(path, path+".bad"); err != nil {
				s.logger.Warn("failed to move spool entry aside", "path", path, "error", err)
			}
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Seq < jobs[b].Seq })

	s.mu.Lock()
	for _, j := range jobs {
		if j.Seq > s.lastSeq {
			s.lastSeq = j.Seq
		}
	}
	s.mu.Unlock()

	return jobs, nil
}

func readJob(path string) (*job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if int(n) != len(data)-4 {
		return nil, fmt.Errorf("length prefix %d does not match body %d", n, len(data)-4)
	}

	var j job
	if err := msgpack.Unmarshal(data[4:], &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal msgpack job: %w", err)
	}
	return &j, nil
}
