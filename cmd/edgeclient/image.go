package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaonanln/edgegate/dispatcher"
	"github.com/xiaonanln/edgegate/gateway"
)

// imageFlags are shared by the image and loadgen commands
type imageFlags struct {
	size    int32
	mode    string
	threads int32
}

func (f *imageFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int32Var(&f.size, "size", 1024, "Image edge length in pixels")
	cmd.Flags().StringVar(&f.mode, "mode", gateway.DefaultMode, "Kernel mode: seq or omp")
	cmd.Flags().Int32Var(&f.threads, "threads", gateway.DefaultThreads, "Kernel threads (omp only)")
}

func (f *imageFlags) envelope() dispatcher.Envelope {
	return dispatcher.NewImageEnvelope(f.size, f.mode, f.threads)
}

func newImageCmd(opts *options) *cobra.Command {
	img := &imageFlags{}

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Send one ProcessImage request",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.dispatcher.Dispatch(cmd.Context(), img.envelope())
			if err != nil {
				logrus.Errorf("image %s failed after %d attempts: %v", res.CorrelationID, len(res.Attempts), err)
				return err
			}
			r := res.Response.Image
			fmt.Fprintf(cmd.OutOrStdout(), "size=%d mode=%s threads=%d server_ms=%.3f algo_ms=%.3f replica=%s endpoint=%s attempts=%d\n",
				r.Size, r.Mode, r.Threads, r.ServerElapsedMs, r.AlgoReportedMs,
				r.ReplicaID, res.Endpoint, len(res.Attempts))
			return nil
		},
	}
	img.register(cmd)
	return cmd
}
