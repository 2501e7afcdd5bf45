package deploy

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

// #region helpers
func startHealthServer(t *testing.T) (*health.Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return hs, dialer
}

func newProbe(t *testing.T, service string, dialer grpc.DialOption) *HealthProbe {
	t.Helper()
	cfg := noDelayConfig()
	cfg.Timeout = 2 * time.Second
	p, err := NewHealthProbe("passthrough:///bufnet", service, cfg, dialer)
	if err != nil {
		t.Fatalf("NewHealthProbe: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// #endregion helpers

func TestHealthProbe_Serving(t *testing.T) {
	_, dialer := startHealthServer(t)
	p := newProbe(t, "", dialer)

	rec := p.Deploy(context.Background(), Request{})
	if rec.Status != StatusSuccess {
		t.Errorf("status: got %q, want success", rec.Status)
	}
}

func TestHealthProbe_NotServing(t *testing.T) {
	hs, dialer := startHealthServer(t)
	hs.SetServingStatus("dashboard", healthpb.HealthCheckResponse_NOT_SERVING)
	p := newProbe(t, "dashboard", dialer)

	rec := p.Deploy(context.Background(), Request{})
	if rec.Status != StatusFailure {
		t.Errorf("status: got %q, want failure", rec.Status)
	}
}

func TestHealthProbe_UnknownServiceIsFailure(t *testing.T) {
	_, dialer := startHealthServer(t)
	p := newProbe(t, "missing", dialer)

	rec := p.Deploy(context.Background(), Request{})
	if rec.Status != StatusFailure {
		t.Errorf("status: got %q, want failure", rec.Status)
	}
}

func TestHealthProbe_InjectedCrashSkipsCheck(t *testing.T) {
	_, dialer := startHealthServer(t)
	p := newProbe(t, "", dialer)

	rec := p.Deploy(context.Background(), Request{ShouldFail: true, Failure: FailureCrash})
	if rec.Status != StatusFailure || rec.ResponseTimeMs != 2000 {
		t.Errorf("got %+v, want failure/2000", rec)
	}
}
