package dispatcher

import (
	"time"

	"github.com/google/uuid"
	"github.com/xiaonanln/edgegate/computepb"
)

// Kind selects the remote operation
type Kind string

const (
	KindImage   Kind = "image"
	KindPredict Kind = "predict"
)

// ImagePayload is the argument of ProcessImage
type ImagePayload struct {
	Size    int32
	Mode    string
	Threads int32
}

// Envelope is one logical request. It is carried unchanged across attempts.
type Envelope struct {
	CorrelationID string
	Kind          Kind
	Image         ImagePayload
	Input         string // predict payload
}

// NewImageEnvelope creates an image request with a fresh correlation id
func NewImageEnvelope(size int32, mode string, threads int32) Envelope {
	return Envelope{
		CorrelationID: uuid.NewString(),
		Kind:          KindImage,
		Image:         ImagePayload{Size: size, Mode: mode, Threads: threads},
	}
}

// NewPredictEnvelope creates a predict request with a fresh correlation id
func NewPredictEnvelope(input string) Envelope {
	return Envelope{
		CorrelationID: uuid.NewString(),
		Kind:          KindPredict,
		Input:         input,
	}
}

// Response holds whichever reply matches the envelope's kind
type Response struct {
	Image   *computepb.SobelResponse
	Predict *computepb.PredictResponse
}

// ReplicaID returns the id of the replica that answered
func (r *Response) ReplicaID() string {
	switch {
	case r == nil:
		return ""
	case r.Image != nil:
		return r.Image.ReplicaID
	case r.Predict != nil:
		return r.Predict.ReplicaID
	}
	return ""
}

// ServerElapsed returns the gateway-measured latency
func (r *Response) ServerElapsed() time.Duration {
	var ms float64
	switch {
	case r == nil:
	case r.Image != nil:
		ms = r.Image.ServerElapsedMs
	case r.Predict != nil:
		ms = r.Predict.LatencyMs
	}
	return time.Duration(ms * float64(time.Millisecond))
}
