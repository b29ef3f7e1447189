package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/metrics"
	"inspectionDispatch/internal/notify"
)

const secret = "http-secret"

func newTestServer(t *testing.T) (*httptest.Server, *notify.Hub, *metrics.PromSink) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSink(reg)
	require.NoError(t, err)
	hub := notify.NewHub()
	srv := httptest.NewServer(NewRouter(Options{Hub: hub, JWTSecret: secret, Gatherer: reg}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, sink
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func waitConnected(t *testing.T, hub *notify.Hub, userID int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !hub.Connected(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %d never registered", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, sink := newTestServer(t)
	sink.AssignmentCreated()

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dispatch_assignments_created_total 1")
}

func TestWS_RejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, res, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWS_RoutesUserAndRoleMessages(t *testing.T) {
	srv, hub, _ := newTestServer(t)

	inspTok, err := auth.IssueToken(secret, 21, "insp", "inspector", time.Minute)
	require.NoError(t, err)
	dispTok, err := auth.IssueToken(secret, 22, "disp", "dispatcher", time.Minute)
	require.NoError(t, err)

	insp, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token="+inspTok), nil)
	require.NoError(t, err)
	defer insp.Close()
	header := http.Header{"Authorization": []string{"Bearer " + dispTok}}
	disp, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer disp.Close()

	waitConnected(t, hub, 21)
	waitConnected(t, hub, 22)

	fan := notify.NewFanout(hub, nil, nil)
	require.True(t, fan.NotifyUser(t.Context(), 21, "new_assignment", map[string]any{"assignment_id": 1}))
	fan.NotifyRole(t.Context(), "dispatcher", "assignment_accepted", map[string]any{"assignment_id": 1})

	var got notify.Message
	_ = insp.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, insp.ReadJSON(&got))
	assert.Equal(t, "new_assignment", got.Event)

	_ = disp.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, disp.ReadJSON(&got))
	assert.Equal(t, "assignment_accepted", got.Event)

	// Disconnecting removes the registration.
	require.NoError(t, insp.Close())
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected(21) {
		if time.Now().After(deadline) {
			t.Fatalf("connection not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
