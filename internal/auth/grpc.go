package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

// NewUnaryAuthInterceptor returns a gRPC unary interceptor that extracts and validates
// a Bearer JWT from incoming metadata and injects the Principal into the context.
// Methods listed in allowUnauthenticated will bypass authentication (e.g., health checks).
func NewUnaryAuthInterceptor(secret string, allowUnauthenticated ...string) grpc.UnaryServerInterceptor {
	allow := make(map[string]struct{}, len(allowUnauthenticated))
	for _, m := range allowUnauthenticated {
		allow[strings.TrimSpace(m)] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		p, err := ParseFromMD(ctx, secret)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok || p == nil {
		return nil, status.Error(codes.Unauthenticated, "missing principal")
	}
	return p, nil
}

// RequireKind ensures the principal has one of the given kinds.
func RequireKind(ctx context.Context, kinds ...string) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if p.Kind == strings.ToLower(k) {
			return p, nil
		}
	}
	return nil, status.Errorf(codes.PermissionDenied, "only %s can perform this action", strings.Join(kinds, " or "))
}

// RequireInspector ensures the caller is an inspector.
func RequireInspector(ctx context.Context) (*Principal, error) {
	return RequireKind(ctx, models.RoleInspector)
}

// RequireDispatcher ensures the caller is a dispatcher (or admin) AND that the
// underlying user exists with that role. This prevents a forged kind claim from
// reaching dispatch-only operations.
func RequireDispatcher(ctx context.Context, users *repository.UserRepository) (*Principal, error) {
	p, err := RequireKind(ctx, models.RoleDispatcher, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if users == nil {
		return nil, status.Error(codes.Internal, "users repository not configured")
	}
	u, err := users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get user: %v", err)
	}
	if u == nil || strings.ToLower(strings.TrimSpace(u.Role)) != p.Kind {
		return nil, status.Error(codes.PermissionDenied, "only dispatcher can perform this action")
	}
	return p, nil
}
