package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/config"
	"inspectionDispatch/internal/dispatch"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/repository"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewServer builds a gRPC server with the auth interceptor, the health service
// and DispatchService registered.
func NewServer(secret string, svc *dispatch.Service, users *repository.UserRepository, log logger.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthCheckMethod)))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	RegisterDispatchServiceServer(srv, &DispatchServer{Svc: svc, Users: users, Log: log})
	return srv
}

// StartGRPC starts the gRPC server on the configured address and returns a shutdown function.
func StartGRPC(cfg *config.Config, svc *dispatch.Service, users *repository.UserRepository, log logger.Logger) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv := NewServer(cfg.Auth.JWTSecret, svc, users, log)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Errorf("grpc serve: %v", err)
		}
	}()
	log.Infof("gRPC listening on %s", lis.Addr())

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
