// Package grpcapi exposes the standard gRPC health and reflection services.
// Serving status follows a periodic check tracked by a request hook.
package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"finscope/internal/request"
)

// ServiceName is the health service name reported for finscope.
const ServiceName = "finscope"

// CheckFunc checks whether the back end can serve requests.
type CheckFunc func(ctx context.Context) error

// Checker runs a CheckFunc on an interval and mirrors its outcome into a health
// server.
type Checker struct {
	hook     *request.Hook[struct{}]
	health   *health.Server
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewChecker creates a Checker. The hook options configure logging and
// telemetry of the check invocations.
func NewChecker(hs *health.Server, check CheckFunc, interval time.Duration, log *slog.Logger, opts ...request.Option) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	opts = append([]request.Option{request.WithLogger(log)}, opts...)
	return &Checker{
		hook:     request.New[struct{}]("health-check", opts...),
		health:   hs,
		check:    check,
		interval: interval,
		timeout:  interval,
		log:      log.With("component", "checker"),
	}
}

// Hook exposes the check's request hook.
func (p *Checker) Hook() *request.Hook[struct{}] { return p.hook }

// Check runs one check and waits for it.
func (p *Checker) Check(ctx context.Context) error {
	_, err := p.start(ctx).Wait()
	return err
}

func (p *Checker) start(ctx context.Context) *request.Call[struct{}] {
	return p.hook.Start(ctx, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.check(ctx)
	})
}

// Run checks immediately and then on every interval, updating the health
// status as checks settle. It returns when ctx is cancelled, leaving the
// service NOT_SERVING.
func (p *Checker) Run(ctx context.Context) {
	id, states := p.hook.Subscribe(4)
	defer p.hook.Unsubscribe(id)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.start(ctx)
	for {
		select {
		case <-ctx.Done():
			p.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			if p.hook.Loading() {
				continue
			}
			p.start(ctx)
		case st, ok := <-states:
			if !ok {
				return
			}
			switch st.Status {
			case request.Succeeded:
				p.set(healthpb.HealthCheckResponse_SERVING)
			case request.Failed:
				p.log.Warn("health check failed", "error", st.Err)
				p.set(healthpb.HealthCheckResponse_NOT_SERVING)
			}
		}
	}
}

func (p *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	p.health.SetServingStatus(ServiceName, status)
	p.health.SetServingStatus("", status)
}

// Server hosts the gRPC listener.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	checker *Checker
	log     *slog.Logger
}

// New creates a Server whose serving status follows check. Both services
// start NOT_SERVING until the first check succeeds.
func New(check CheckFunc, interval time.Duration, log *slog.Logger, opts ...request.Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		grpc:    gs,
		health:  hs,
		checker: NewChecker(hs, check, interval, log, opts...),
		log:     log.With("component", "grpcapi"),
	}
	s.checker.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Checker returns the server's checker.
func (s *Server) Checker() *Checker { return s.checker }

// Serve runs the checker and accepts connections on lis until ctx is
// cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go s.checker.Run(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()
	s.log.Info("gRPC listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
