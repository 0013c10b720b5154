// Package kernel runs the external image kernel and interprets what it prints.
package kernel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/xiaonanln/edgegate/util/logger"
)

// TimeMarker precedes the kernel's self-reported compute time in milliseconds.
const TimeMarker = "time_ms="

// killGrace bounds how long Run waits for output pipes after killing the kernel;
// grandchildren of a killed kernel may otherwise hold them open.
const killGrace = 200 * time.Millisecond

// Result is what one kernel run produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// WallTime is measured around the process, so it includes spawn overhead.
	WallTime time.Duration
	// KernelReportedMs is parsed from the TimeMarker; 0 when absent.
	KernelReportedMs float64
	Reported         bool
}

// KernelExecutionError means the kernel could not be started or exited non-zero.
// ExitCode is -1 when the process never ran or was killed by a signal.
type KernelExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
	WallTime time.Duration
	Err      error
}

func (e *KernelExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("kernel %q exited with code %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("kernel %q exited with code %d: %v", e.Command, e.ExitCode, e.Err)
}

func (e *KernelExecutionError) Unwrap() error {
	return e.Err
}

// RunLog receives one call per finished run.
type RunLog interface {
	LogRun(cmd Command, res *Result, err error)
}

// Invoker runs kernel commands synchronously.
type Invoker struct {
	logger *logger.Logger
	runLog RunLog
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the logger used for per-run debug output.
func WithLogger(l *logger.Logger) Option {
	return func(inv *Invoker) {
		inv.logger = l
	}
}

// WithRunLog sets a durable log that records every run.
func WithRunLog(rl RunLog) Option {
	return func(inv *Invoker) {
		inv.runLog = rl
	}
}

// NewInvoker creates an Invoker.
func NewInvoker(opts ...Option) *Invoker {
	inv := &Invoker{}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.logger == nil {
		inv.logger = logger.NewLogger("Kernel")
	}
	return inv
}

// Run executes cmd and blocks until the process exits.
// A non-zero exit yields *KernelExecutionError together with the partial Result.
// If ctx ends first the process is killed and the context error is returned.
func (inv *Invoker) Run(ctx context.Context, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args()...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = killGrace

	start := time.Now()
	runErr := c.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		WallTime: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if res.Stdout != "" {
		inv.logger.Debugf("kernel stdout (%s):\n%s", cmd, res.Stdout)
	}
	if res.Stderr != "" {
		inv.logger.Debugf("kernel stderr (%s):\n%s", cmd, res.Stderr)
	}

	var err error
	switch {
	case runErr == nil:
		res.KernelReportedMs, res.Reported = ParseReportedTime(res.Stdout)
	case ctx.Err() != nil:
		err = fmt.Errorf("kernel %q interrupted: %w", cmd.String(), ctx.Err())
	default:
		kerr := &KernelExecutionError{
			Command:  cmd.String(),
			ExitCode: -1,
			Stderr:   res.Stderr,
			WallTime: res.WallTime,
			Err:      runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			kerr.ExitCode = exitErr.ExitCode()
		}
		res.ExitCode = kerr.ExitCode
		err = kerr
	}

	if inv.runLog != nil {
		inv.runLog.LogRun(cmd, res, err)
	}
	return res, err
}

// ParseReportedTime finds the first line containing TimeMarker and parses the number
// that follows it. Only that line is considered; a malformed number yields (0, false).
func ParseReportedTime(output string) (float64, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, TimeMarker)
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len(TimeMarker):])
		if len(fields) == 0 {
			return 0, false
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
