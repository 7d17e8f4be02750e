// Package sink persists samples as JSON lines.
package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/torosent/httpsample/internal/sample"
)

// ErrLocked is returned when another process holds the sample file.
var ErrLocked = errors.New("sample file is locked by another run")

// Line is the on-disk form of one sample.
type Line struct {
	RunID      string  `json:"run_id"`
	Seq        int     `json:"seq"`
	Status     uint16  `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	Bytes      uint64  `json:"bytes"`
}

// FileSink appends one JSON line per sample to a file it holds an exclusive lock on.
// Write errors are sticky and reported by Err and Close.
type FileSink struct {
	mu    sync.Mutex
	runID string
	seq   int
	file  *os.File
	lock  *flock.Flock
	buf   *bufio.Writer
	enc   *json.Encoder
	err   error
}

// Open creates or truncates path and locks it for the life of the sink.
func Open(path, runID string) (*FileSink, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)
	return &FileSink{
		runID: runID,
		file:  file,
		lock:  lock,
		buf:   buf,
		enc:   json.NewEncoder(buf),
	}, nil
}

// Collect writes s as the next line.
func (f *FileSink) Collect(s sample.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return
	}
	line := Line{
		RunID:      f.runID,
		Seq:        f.seq,
		Status:     s.Status(),
		DurationMs: float64(s.Duration()) / 1e6,
		Bytes:      s.Length().Bytes(),
	}
	f.seq++
	if err := f.enc.Encode(line); err != nil {
		f.err = fmt.Errorf("write sample %d: %w", line.Seq, err)
	}
}

// Err returns the first write error, if any.
func (f *FileSink) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close flushes pending lines, closes the file and releases the lock.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	errs := []error{f.err}
	if err := f.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := f.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	return errors.Join(errs...)
}
