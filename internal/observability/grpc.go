package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/2re1million/ekko/internal/observability/metrics"
)

// Health service names reported by the gRPC health endpoint.
const (
	HealthRecorder = "ekko.Recorder"
	HealthPipeline = "ekko.Pipeline"
)

// HealthServer exposes grpc.health.v1 for the recorder and the pipeline.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
}

// NewHealthServer builds a gRPC server carrying only the health and
// reflection services.
func NewHealthServer(addr string, m *metrics.Metrics) *HealthServer {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryServerInterceptor(m)))
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &HealthServer{server: server, health: hs, addr: addr}
}

// SetServing marks a named service as serving or not serving.
func (h *HealthServer) SetServing(service string, serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, st)
}

// Start listens and serves in a goroutine.
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	h.SetServing("", true)
	go func() {
		log.Info().Str("addr", h.addr).Msg("Starting gRPC health server")
		if err := h.server.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC health server error")
		}
	}()
	return nil
}

// Stop marks everything not serving and stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		if m != nil {
			m.RecordCall("grpc", err, duration.Seconds())
		}

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return resp, err
	}
}
