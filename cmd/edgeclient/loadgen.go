package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaonanln/edgegate/dispatcher"
)

// loadSummary aggregates the results of a load run
type loadSummary struct {
	Sent       int
	Succeeded  int
	Latencies  []time.Duration // successful requests only
	PerReplica map[string]int
}

func newLoadSummary() *loadSummary {
	return &loadSummary{PerReplica: make(map[string]int)}
}

func (s *loadSummary) add(res *dispatcher.Result) {
	s.Sent++
	if res == nil || !res.Success {
		return
	}
	s.Succeeded++
	s.Latencies = append(s.Latencies, res.TotalLatency)
	s.PerReplica[res.Endpoint]++
}

// percentile returns the p-th percentile (0-100) of successful latencies
func (s *loadSummary) percentile(p float64) time.Duration {
	if len(s.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

func (s *loadSummary) print(w io.Writer) {
	fmt.Fprintf(w, "sent=%d succeeded=%d failed=%d", s.Sent, s.Succeeded, s.Sent-s.Succeeded)
	if s.Succeeded > 0 {
		fmt.Fprintf(w, " p50_ms=%.3f p99_ms=%.3f", durationMs(s.percentile(50)), durationMs(s.percentile(99)))
	}
	fmt.Fprintln(w)

	endpoints := make([]string, 0, len(s.PerReplica))
	for ep := range s.PerReplica {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %s: %d\n", ep, s.PerReplica[ep])
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func newLoadgenCmd(opts *options) *cobra.Command {
	var (
		requests int
		interval time.Duration
		kind     string
		input    string
	)
	img := &imageFlags{}

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Send a sequence of requests and summarize the outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requests < 1 {
				return fmt.Errorf("--requests must be positive, got %d", requests)
			}
			var newEnvelope func() dispatcher.Envelope
			switch dispatcher.Kind(kind) {
			case dispatcher.KindPredict:
				newEnvelope = func() dispatcher.Envelope { return dispatcher.NewPredictEnvelope(input) }
			case dispatcher.KindImage:
				newEnvelope = img.envelope
			default:
				return fmt.Errorf("unknown --kind %q (expected predict or image)", kind)
			}

			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			summary := newLoadSummary()
			for i := 0; i < requests; i++ {
				if i > 0 && interval > 0 {
					select {
					case <-time.After(interval):
					case <-ctx.Done():
					}
				}
				if ctx.Err() != nil {
					logrus.Warnf("load run interrupted after %d requests", i)
					break
				}

				res, err := s.dispatcher.Dispatch(ctx, newEnvelope())
				summary.add(res)
				if err != nil {
					fmt.Fprintf(out, "%d %s false %.3f\n", i, res.CorrelationID, durationMs(res.TotalLatency))
					logrus.Debugf("request %d failed: %v", i, err)
					continue
				}
				fmt.Fprintf(out, "%d %s %s true %.3f\n", i, res.CorrelationID, res.Endpoint, durationMs(res.TotalLatency))
			}

			summary.print(out)
			logrus.Infof("outcomes appended to %s", s.cfg.Client.OutcomeLog)
			return nil
		},
	}
	cmd.Flags().IntVar(&requests, "requests", 100, "Number of requests to send")
	cmd.Flags().DurationVar(&interval, "interval", 150*time.Millisecond, "Pause between requests")
	cmd.Flags().StringVar(&kind, "kind", string(dispatcher.KindPredict), "Request kind: predict or image")
	cmd.Flags().StringVar(&input, "input", DefaultPredictInput, "Predict payload")
	img.register(cmd)
	return cmd
}
