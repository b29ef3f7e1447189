package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/dispatch"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/internal/testutil"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

const bufSecret = "bufconn-secret"

func dialBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func bearerCtx(t *testing.T, u *models.User) (context.Context, context.CancelFunc) {
	t.Helper()
	tok, err := auth.IssueToken(bufSecret, u.ID, u.Username, u.Role, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok), cancel
}

func TestServer_EndToEnd(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "grpcbufconn")
	users := repository.NewUserRepository(d)
	disp := testutil.SeedUser(t, d, "disp", models.RoleDispatcher)
	insp := testutil.SeedUser(t, d, "insp", models.RoleInspector)
	client := testutil.SeedUser(t, d, "client", models.RoleClient)
	req := testutil.SeedRequest(t, d, client.ID, testutil.Float(7.2906), testutil.Float(80.6337), "Temple Road, Kandy", "Kandy")
	testutil.SeedLocation(t, d, insp.ID, 6.9271, 79.8612, models.LocationStatusAvailable, "Fort, Colombo")

	conn := dialBufconn(t, NewServer(bufSecret, dispatch.New(d), users, logger.NopLogger{}))

	// Health is reachable without a token.
	hctx, hcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer hcancel()
	hres, err := healthpb.NewHealthClient(conn).Check(hctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hres.GetStatus())

	// Dispatch calls require a token.
	out := &structpb.Struct{}
	err = conn.Invoke(hctx, MethodListActiveLocations, &structpb.Struct{}, out)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx, cancel := bearerCtx(t, disp)
	defer cancel()
	in, err := structpb.NewStruct(map[string]any{"request_id": float64(req.ID), "inspector_id": float64(insp.ID)})
	require.NoError(t, err)
	err = conn.Invoke(ctx, MethodAssign, in, out)
	require.Equal(t, codes.FailedPrecondition, status.Code(err), "Colombo to Kandy exceeds the limit")

	st, _ := status.FromError(err)
	require.Len(t, st.Details(), 1)
	detail := st.Details()[0].(*structpb.Struct).GetFields()
	assert.Equal(t, "out_of_range", detail["kind"].GetStringValue())
	assert.InDelta(t, 95, detail["distance_km"].GetNumberValue(), 1.5)
	assert.Equal(t, 35.0, detail["limit_km"].GetNumberValue())
	assert.Equal(t, "Fort, Colombo", detail["inspector_address"].GetStringValue())

	// The inspector moves closer and the assignment goes through.
	ictx, icancel := bearerCtx(t, insp)
	defer icancel()
	push, err := structpb.NewStruct(map[string]any{"lat": 7.29, "lng": 80.63})
	require.NoError(t, err)
	require.NoError(t, conn.Invoke(ictx, MethodUpsertLocation, push, out))
	require.NoError(t, conn.Invoke(ctx, MethodAssign, in, out))
	assert.NotZero(t, out.GetFields()["assignment"].GetStructValue().GetFields()["id"].GetNumberValue())
}
