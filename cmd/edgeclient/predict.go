package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaonanln/edgegate/dispatcher"
)

// DefaultPredictInput is the payload the original client sent on every request
const DefaultPredictInput = "1,2,3,4,5"

func newPredictCmd(opts *options) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Send one Predict request",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.dispatcher.Dispatch(cmd.Context(), dispatcher.NewPredictEnvelope(input))
			if err != nil {
				logrus.Errorf("predict %s failed after %d attempts: %v", res.CorrelationID, len(res.Attempts), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Response: %s latency_ms: %.3f replica: %s endpoint: %s attempts: %d\n",
				res.Response.Predict.Output, res.Response.Predict.LatencyMs,
				res.Response.ReplicaID(), res.Endpoint, len(res.Attempts))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", DefaultPredictInput, "Comma-separated numbers to sum")
	return cmd
}
