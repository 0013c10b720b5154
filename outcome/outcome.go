// Package outcome keeps one durable row per logical request.
package outcome

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xiaonanln/edgegate/util/metrics"
)

// Header is the first line of every outcome log
var Header = []string{"ts", "replica", "success", "latency_ms", "correlation_id", "kind", "attempts", "error"}

// Row is the final result of one logical request
type Row struct {
	Timestamp     time.Time
	Endpoint      string // empty when no replica answered
	Success       bool
	TotalLatency  time.Duration
	CorrelationID string
	Kind          string
	Attempts      int
	Error         string
}

// Record renders r as CSV fields in Header order
func (r Row) Record() []string {
	return []string{
		strconv.FormatFloat(float64(r.Timestamp.UnixNano())/1e9, 'f', 6, 64),
		r.Endpoint,
		strconv.FormatBool(r.Success),
		strconv.FormatFloat(float64(r.TotalLatency)/float64(time.Millisecond), 'f', 3, 64),
		r.CorrelationID,
		r.Kind,
		strconv.Itoa(r.Attempts),
		r.Error,
	}
}

// Recorder persists outcome rows
type Recorder interface {
	Record(ctx context.Context, row Row) error
}

// FileRecorder appends rows to a CSV file, one synced write per row.
// It is safe for concurrent use.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// OpenFile opens path for appending, writing Header only if the file is empty
func OpenFile(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome log %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat outcome log %s: %w", path, err)
	}

	r := &FileRecorder{path: path, file: f, w: csv.NewWriter(f)}
	if fi.Size() == 0 {
		if err := r.writeLocked(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Path returns the log file path
func (r *FileRecorder) Path() string {
	return r.path
}

func (r *FileRecorder) writeLocked(record []string) error {
	if err := r.w.Write(record); err != nil {
		return fmt.Errorf("failed to write outcome row: %w", err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("failed to flush outcome row: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync outcome log: %w", err)
	}
	return nil
}

// Record implements Recorder
func (r *FileRecorder) Record(_ context.Context, row Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("outcome log %s is closed", r.path)
	}
	err := r.writeLocked(row.Record())
	metrics.RecordOutcomeRow("file", err)
	return err
}

// Close closes the file. Further Record calls fail.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// MultiRecorder writes every row to all of its recorders
type MultiRecorder []Recorder

// Record implements Recorder. Every recorder is tried; errors are joined.
func (m MultiRecorder) Record(ctx context.Context, row Row) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards rows
type Nop struct{}

// Record implements Recorder
func (Nop) Record(context.Context, Row) error { return nil }
