// Package dispatcher sends logical requests to gateway replicas with bounded,
// ordered failover and records one outcome per request.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xiaonanln/edgegate/outcome"
	"github.com/xiaonanln/edgegate/util/backoff"
	"github.com/xiaonanln/edgegate/util/callcontext"
	edgeerrors "github.com/xiaonanln/edgegate/util/errors"
	"github.com/xiaonanln/edgegate/util/logger"
	"github.com/xiaonanln/edgegate/util/metrics"
)

const (
	DefaultMaxAttempts       = 3
	DefaultPerAttemptTimeout = time.Second
)

// Attempt outcomes
const (
	OutcomeSuccess          = "success"
	OutcomeTransportError   = "transport_error"
	OutcomeDeadlineExceeded = "deadline_exceeded"
	OutcomeInternalError    = "internal_error"
	OutcomeRejected         = "rejected"
)

// AttemptRecord describes one attempt of a logical request
type AttemptRecord struct {
	CorrelationID string
	Endpoint      string
	Index         int
	Outcome       string
	Latency       time.Duration
	Err           error
}

// Result is what Dispatch learned about a logical request
type Result struct {
	Success       bool
	Response      *Response
	Endpoint      string // replica that answered; empty on failure
	Attempts      []AttemptRecord
	TotalLatency  time.Duration
	CorrelationID string
}

// Config configures a Dispatcher
type Config struct {
	Directory         *Directory
	MaxAttempts       int              // default: 3
	PerAttemptTimeout time.Duration    // default: 1s
	AttemptBackoff    time.Duration    // pause before the second attempt, doubling; 0 = none
	Transport         Transport        // default: NewGRPCTransport()
	Recorder          outcome.Recorder // default: outcome.Nop
}

// Dispatcher is safe for concurrent use. Attempts of one request run sequentially.
type Dispatcher struct {
	dir               *Directory
	maxAttempts       int
	perAttemptTimeout time.Duration
	attemptBackoff    time.Duration
	transport         Transport
	recorder          outcome.Recorder
	logger            *logger.Logger
}

// New creates a Dispatcher
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Directory == nil || cfg.Directory.Len() == 0 {
		return nil, ErrEmptyDirectory
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("MaxAttempts cannot be negative, got %d", cfg.MaxAttempts)
	}
	if cfg.PerAttemptTimeout < 0 {
		return nil, fmt.Errorf("PerAttemptTimeout cannot be negative, got %v", cfg.PerAttemptTimeout)
	}
	if cfg.AttemptBackoff < 0 {
		return nil, fmt.Errorf("AttemptBackoff cannot be negative, got %v", cfg.AttemptBackoff)
	}

	d := &Dispatcher{
		dir:               cfg.Directory,
		maxAttempts:       cfg.MaxAttempts,
		perAttemptTimeout: cfg.PerAttemptTimeout,
		attemptBackoff:    cfg.AttemptBackoff,
		transport:         cfg.Transport,
		recorder:          cfg.Recorder,
		logger:            logger.NewLogger("Dispatcher"),
	}
	if d.maxAttempts == 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.perAttemptTimeout == 0 {
		d.perAttemptTimeout = DefaultPerAttemptTimeout
	}
	if d.transport == nil {
		d.transport = NewGRPCTransport()
	}
	if d.recorder == nil {
		d.recorder = outcome.Nop{}
	}
	return d, nil
}

// Directory returns the replica directory
func (d *Dispatcher) Directory() *Directory {
	return d.dir
}

// Close releases the transport
func (d *Dispatcher) Close() error {
	return d.transport.Close()
}

func outcomeOf(kind edgeerrors.Kind) string {
	switch kind {
	case edgeerrors.KindNone:
		return OutcomeSuccess
	case edgeerrors.KindTransport:
		return OutcomeTransportError
	case edgeerrors.KindDeadline:
		return OutcomeDeadlineExceeded
	case edgeerrors.KindInternal:
		return OutcomeInternalError
	default:
		return OutcomeRejected
	}
}

// Dispatch sends env to the directory's endpoints in order, starting at index 0
// and wrapping around, until one succeeds, one rejects it, or MaxAttempts are used.
//
// The returned error is nil on success, the rejecting replica's error unchanged,
// an *errors.ExhaustedError, or the caller's context error. In the last case the
// interrupted attempt is not recorded. Exactly one outcome row is written per call.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) (*Result, error) {
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}
	log := d.logger.With("id", env.CorrelationID)

	start := time.Now()
	res := &Result{CorrelationID: env.CorrelationID}

	var pause *backoff.Backoff
	if d.attemptBackoff > 0 {
		pause = backoff.New(d.attemptBackoff, 8*d.attemptBackoff, 2)
	}

	var final, lastErr error
	for i := 0; i < d.maxAttempts; i++ {
		if i > 0 && pause != nil {
			if err := pause.Wait(ctx); err != nil {
				final = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			final = err
			break
		}

		endpoint := d.dir.At(i)
		attemptCtx, cancel := context.WithTimeout(callcontext.WithAttempt(ctx, i), d.perAttemptTimeout)
		attemptStart := time.Now()
		resp, err := d.transport.Call(attemptCtx, endpoint, env)
		latency := time.Since(attemptStart)
		cancel()

		if err != nil && ctx.Err() != nil {
			log.Infof("attempt %d on %s abandoned: %v", i, endpoint, ctx.Err())
			final = ctx.Err()
			break
		}

		kind := edgeerrors.Classify(err)
		rec := AttemptRecord{
			CorrelationID: env.CorrelationID,
			Endpoint:      endpoint,
			Index:         i,
			Outcome:       outcomeOf(kind),
			Latency:       latency,
			Err:           err,
		}
		res.Attempts = append(res.Attempts, rec)
		metrics.RecordAttempt(endpoint, rec.Outcome)

		if err == nil {
			res.Success = true
			res.Response = resp
			res.Endpoint = endpoint
			log.Debugf("attempt %d on %s succeeded in %v", i, endpoint, latency)
			break
		}

		lastErr = err
		if !kind.Retryable() {
			log.Warnf("attempt %d on %s rejected: %v", i, endpoint, err)
			final = err
			break
		}
		log.Warnf("attempt %d on %s failed (%s) after %v: %v", i, endpoint, rec.Outcome, latency, err)
	}

	if !res.Success && final == nil {
		final = &edgeerrors.ExhaustedError{Attempts: len(res.Attempts), Last: lastErr}
	}
	res.TotalLatency = time.Since(start)

	d.record(ctx, env, res, final)
	return res, final
}

// record writes the outcome row and metrics. Recorder failures are logged, not returned.
func (d *Dispatcher) record(ctx context.Context, env Envelope, res *Result, final error) {
	result := "success"
	if final != nil {
		result = edgeerrors.Classify(final).String()
	}
	metrics.RecordDispatch(string(env.Kind), result, res.TotalLatency.Seconds())

	row := outcome.Row{
		Timestamp:     time.Now(),
		Endpoint:      res.Endpoint,
		Success:       res.Success,
		TotalLatency:  res.TotalLatency,
		CorrelationID: res.CorrelationID,
		Kind:          string(env.Kind),
		Attempts:      len(res.Attempts),
	}
	if final != nil {
		row.Error = final.Error()
	}
	if err := d.recorder.Record(context.WithoutCancel(ctx), row); err != nil {
		d.logger.Errorf("failed to record outcome for %s: %v", res.CorrelationID, err)
	}
}
