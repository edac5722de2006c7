package transportgrpc

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthv1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/odaiidemos/k9-sub001/internal/transport/grpc/interceptors"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

// HealthServiceName is the per-service key reported to health probes next to
// the default empty-string service.
const HealthServiceName = "k9auth.v1.AuthService"

// healthMethods stay off the authentication gate so platform probes can reach
// them without credentials.
var healthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
}

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Auth          *usecase.AuthService
	Logger        *zap.Logger
	PublicMethods []string // methods that don't require authentication
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       *grpcinterceptors.TracingInterceptor
}

// NewServer wires the gRPC surface with authentication enforced through
// interceptors. The health service answers liveness checks for sidecar
// deployments of the records platform; future token services register on the
// same server and inherit the chain.
func NewServer(deps ServerDependencies) (*grpc.Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allowMethods := make([]string, 0, len(healthMethods)+len(deps.PublicMethods))
	allowMethods = append(allowMethods, healthMethods...)
	allowMethods = append(allowMethods, deps.PublicMethods...)

	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Auth, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: allowMethods,
	})

	unaryInterceptors := make([]grpc.UnaryServerInterceptor, 0, 3)
	streamInterceptors := make([]grpc.StreamServerInterceptor, 0, 1)
	if deps.Tracing != nil {
		unaryInterceptors = append(unaryInterceptors, deps.Tracing.Unary())
		streamInterceptors = append(streamInterceptors, deps.Tracing.Stream())
	}
	if deps.Metrics != nil {
		unaryInterceptors = append(unaryInterceptors, deps.Metrics.UnaryServerInterceptor())
	}
	unaryInterceptors = append(unaryInterceptors, authInterceptor.UnaryServerInterceptor())

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthv1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthServiceName, healthv1.HealthCheckResponse_SERVING)
	healthv1.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like Postman, grpcurl, etc.
	reflection.Register(server)

	return server, nil
}
