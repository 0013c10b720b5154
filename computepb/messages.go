package computepb

import (
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// SobelRequest asks a replica to run the edge kernel on a size x size image.
type SobelRequest struct {
	Size    int32
	Mode    string
	Threads int32
}

// SobelResponse echoes the request parameters with both latency figures.
type SobelResponse struct {
	Size            int32
	Mode            string
	Threads         int32
	ServerElapsedMs float64
	AlgoReportedMs  float64
	ReplicaID       string
}

// PredictRequest carries a comma-separated list of numbers.
type PredictRequest struct {
	Input     string
	RequestID string
}

// PredictResponse carries the formatted result and the gateway-measured latency.
type PredictResponse struct {
	Output    string
	LatencyMs float64
	ReplicaID string
}

// Empty is the argument of Health.
type Empty struct{}

// HealthStatus is the reply of Health.
type HealthStatus struct {
	Alive bool
}

// ToProto converts the request into its wire message.
func (r *SobelRequest) ToProto() *dynamicpb.Message {
	m := newMessage("SobelRequest")
	setInt32(m, "size", r.Size)
	setString(m, "mode", r.Mode)
	setInt32(m, "threads", r.Threads)
	return m
}

// SobelRequestFromProto reads a wire message.
func SobelRequestFromProto(m protoreflect.Message) *SobelRequest {
	return &SobelRequest{
		Size:    getInt32(m, "size"),
		Mode:    getString(m, "mode"),
		Threads: getInt32(m, "threads"),
	}
}

// ToProto converts the response into its wire message.
func (r *SobelResponse) ToProto() *dynamicpb.Message {
	m := newMessage("SobelResponse")
	setInt32(m, "size", r.Size)
	setString(m, "mode", r.Mode)
	setInt32(m, "threads", r.Threads)
	setDouble(m, "server_elapsed_ms", r.ServerElapsedMs)
	setDouble(m, "algo_reported_ms", r.AlgoReportedMs)
	setString(m, "replica_id", r.ReplicaID)
	return m
}

// SobelResponseFromProto reads a wire message.
func SobelResponseFromProto(m protoreflect.Message) *SobelResponse {
	return &SobelResponse{
		Size:            getInt32(m, "size"),
		Mode:            getString(m, "mode"),
		Threads:         getInt32(m, "threads"),
		ServerElapsedMs: getDouble(m, "server_elapsed_ms"),
		AlgoReportedMs:  getDouble(m, "algo_reported_ms"),
		ReplicaID:       getString(m, "replica_id"),
	}
}

// ToProto converts the request into its wire message.
func (r *PredictRequest) ToProto() *dynamicpb.Message {
	m := newMessage("PredictRequest")
	setString(m, "input", r.Input)
	setString(m, "request_id", r.RequestID)
	return m
}

// PredictRequestFromProto reads a wire message.
func PredictRequestFromProto(m protoreflect.Message) *PredictRequest {
	return &PredictRequest{
		Input:     getString(m, "input"),
		RequestID: getString(m, "request_id"),
	}
}

// ToProto converts the response into its wire message.
func (r *PredictResponse) ToProto() *dynamicpb.Message {
	m := newMessage("PredictResponse")
	setString(m, "output", r.Output)
	setDouble(m, "latency_ms", r.LatencyMs)
	setString(m, "replica_id", r.ReplicaID)
	return m
}

// PredictResponseFromProto reads a wire message.
func PredictResponseFromProto(m protoreflect.Message) *PredictResponse {
	return &PredictResponse{
		Output:    getString(m, "output"),
		LatencyMs: getDouble(m, "latency_ms"),
		ReplicaID: getString(m, "replica_id"),
	}
}

// ToProto converts Empty into its wire message.
func (*Empty) ToProto() *dynamicpb.Message {
	return newMessage("Empty")
}

// ToProto converts the status into its wire message.
func (h *HealthStatus) ToProto() *dynamicpb.Message {
	m := newMessage("HealthStatus")
	setBool(m, "alive", h.Alive)
	return m
}

// HealthStatusFromProto reads a wire message.
func HealthStatusFromProto(m protoreflect.Message) *HealthStatus {
	return &HealthStatus{Alive: getBool(m, "alive")}
}
