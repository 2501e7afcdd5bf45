package deploy

// #region imports
import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// #endregion

// #region probe-struct

// HealthProbe treats a deployment as healthy when a gRPC health check reports SERVING
// within the timeout. Injected failures are delegated to a Simulated trigger.
type HealthProbe struct {
	conn     *grpc.ClientConn
	client   healthpb.HealthClient
	service  string
	timeout  time.Duration
	injected *Simulated
}

// NewHealthProbe creates a probe against addr. The connection is established lazily.
func NewHealthProbe(addr, service string, cfg SimulatedConfig, opts ...grpc.DialOption) (*HealthProbe, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &HealthProbe{
		conn:     conn,
		client:   healthpb.NewHealthClient(conn),
		service:  service,
		timeout:  cfg.Timeout,
		injected: NewSimulated(cfg),
	}, nil
}

// #endregion

// #region deploy

// Deploy runs one health check. Errors, non-SERVING answers and timeouts count as a crash.
func (p *HealthProbe) Deploy(ctx context.Context, req Request) Record {
	if req.injected() != FailureNone {
		return p.injected.Deploy(ctx, req)
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Check(cctx, &healthpb.HealthCheckRequest{Service: p.service})
	elapsed := millis(time.Since(start))
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return Record{Status: StatusFailure, ResponseTimeMs: elapsed}
	}
	return Record{Status: StatusSuccess, ResponseTimeMs: elapsed}
}

// #endregion

// #region close

// Close shuts down the gRPC connection.
func (p *HealthProbe) Close() error {
	return p.conn.Close()
}

// #endregion
