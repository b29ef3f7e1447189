package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inspectionDispatch/internal/testutil"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

func TestRequireKindAndHelpers(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{UserID: 1, Name: "i1", Kind: "inspector"})
	if _, err := RequireInspector(ctx); err != nil {
		t.Fatalf("RequireInspector: %v", err)
	}
	if _, err := RequireKind(ctx, "dispatcher", "admin"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if _, err := RequirePrincipal(context.Background()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestRequireDispatcher_WithDBRoleCheck(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "authdispatcher")
	users := repository.NewUserRepository(d)
	alice := testutil.SeedUser(t, d, "alice", models.RoleInspector)
	disp := testutil.SeedUser(t, d, "disp", models.RoleDispatcher)

	// Spoofed principal: kind=dispatcher but the DB role is inspector.
	spoofed := WithPrincipal(context.Background(), &Principal{UserID: alice.ID, Name: "alice", Kind: "dispatcher"})
	if _, err := RequireDispatcher(spoofed, users); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied for non-dispatcher role, got %v", err)
	}

	genuine := WithPrincipal(context.Background(), &Principal{UserID: disp.ID, Name: "disp", Kind: "dispatcher"})
	if _, err := RequireDispatcher(genuine, users); err != nil {
		t.Fatalf("RequireDispatcher real dispatcher: %v", err)
	}
	if _, err := RequireDispatcher(genuine, nil); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal without repository, got %v", err)
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	secret := "s3cr3t"
	interceptor := NewUnaryAuthInterceptor(secret, "/grpc.health.v1.Health/Check")

	// Allowlisted path: no header, handler runs without a principal.
	hCalled := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(ctx context.Context, req any) (any, error) {
		hCalled = true
		if p, ok := FromContext(ctx); ok && p != nil {
			t.Fatalf("expected no principal on allowlisted path")
		}
		return 123, nil
	})
	if err != nil || !hCalled {
		t.Fatalf("allowlisted handler err=%v called=%v", err, hCalled)
	}

	// Missing token on a protected method.
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		t.Fatalf("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	// Authenticated path: principal injected.
	tok := testutil.GenerateJWTHS256(t, secret, 9, "bob", "inspector")
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	_, err = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		p, ok := FromContext(ctx)
		if !ok || p == nil || p.UserID != 9 || p.Kind != "inspector" {
			t.Fatalf("principal not injected: %+v ok=%v", p, ok)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor auth path: %v", err)
	}
}
