package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSConn_DeliversJSONMessages(t *testing.T) {
	hub := NewHub()
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewWSConn(ws, 4)
		unregister := hub.Register(42, "inspector", c)
		close(registered)
		c.ReadLoop()
		unregister()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not registered")
	}
	require.True(t, hub.SendToUser(42, NewMessage("new_assignment", map[string]any{"assignment_id": 5})))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, "new_assignment", got.Event)
	assert.EqualValues(t, 5, got.Payload["assignment_id"])
}

func TestWSConn_SendAfterClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan *WSConn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- NewWSConn(ws, 1)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	c := <-conns
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close is a no-op")
	assert.ErrorIs(t, c.Send(NewMessage("x", nil)), ErrClosed)
	<-c.Done()
}
