package status

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the gRPC health service name reported for the bot.
const Service = "huntbot"

// Health reports whether the coordinator is running through the standard
// gRPC health protocol.
type Health struct {
	server *health.Server
}

// NewHealth returns a Health reporting NOT_SERVING for the overall server and
// for Service.
func NewHealth() *Health {
	h := &Health{server: health.NewServer()}
	h.SetServing(false)
	return h
}

// Register adds the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// SetServing switches the reported status.
func (h *Health) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(Service, st)
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
