package kernel

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileRunLog appends one line per kernel run to a text file.
type FileRunLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileRunLog opens (or creates) path for appending.
func NewFileRunLog(path string) (*FileRunLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open kernel run log %s: %w", path, err)
	}
	return &FileRunLog{file: f}, nil
}

// LogRun implements RunLog. Write failures are dropped; the run log is advisory.
func (l *FileRunLog) LogRun(cmd Command, res *Result, err error) {
	ts := time.Now().Format(time.RFC3339Nano)
	var line string
	if err != nil {
		line = fmt.Sprintf("%s ERROR cmd=%q exit=%d wall_ms=%.3f err=%q\n",
			ts, cmd.String(), res.ExitCode, msOf(res.WallTime), err.Error())
	} else {
		line = fmt.Sprintf("%s OK cmd=%q wall_ms=%.3f time_ms=%.3f\n",
			ts, cmd.String(), msOf(res.WallTime), res.KernelReportedMs)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.file.WriteString(line)
}

// Close closes the underlying file.
func (l *FileRunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
