package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) Notification(channel, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[channel+"/"+outcome]++
}

type fakeBridge struct {
	mu    sync.Mutex
	users []int64
	roles []string
	err   error
	// hold, when set, blocks every publish until it is closed.
	hold chan struct{}
}

func (b *fakeBridge) Name() string { return "fake" }
func (b *fakeBridge) PublishUser(id int64, _ Message) error {
	if b.hold != nil {
		<-b.hold
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, id)
	return b.err
}
func (b *fakeBridge) PublishRole(role string, _ Message) error {
	if b.hold != nil {
		<-b.hold
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roles = append(b.roles, role)
	return b.err
}
func (b *fakeBridge) Close() {}

func TestFanout_NotifyUser(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	hub.Register(9, "inspector", conn)
	rec := &countingRecorder{}
	bridge := &fakeBridge{}
	f := NewFanout(hub, nil, rec, bridge)

	assert.True(t, f.NotifyUser(context.Background(), 9, "new_assignment", map[string]any{"assignment_id": 3}))
	assert.False(t, f.NotifyUser(context.Background(), 10, "new_assignment", nil))

	f.Flush()
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, 3, conn.msgs[0].Payload["assignment_id"])
	assert.ElementsMatch(t, []int64{9, 10}, bridge.users)
	assert.Equal(t, 1, rec.counts["ws/delivered"])
	assert.Equal(t, 1, rec.counts["ws/offline"])
	assert.Equal(t, 2, rec.counts["fake/delivered"])
}

func TestFanout_BridgeFailureIsSwallowed(t *testing.T) {
	hub := NewHub()
	rec := &countingRecorder{}
	f := NewFanout(hub, nil, rec, &fakeBridge{err: errors.New("broker down")})

	assert.NotPanics(t, func() {
		f.NotifyRole(context.Background(), "dispatcher", "assignment_declined", nil)
	})
	f.Flush()
	assert.Equal(t, 1, rec.counts["fake/failed"])
}

func TestFanout_NotifyRole(t *testing.T) {
	hub := NewHub()
	d := &fakeConn{}
	c := &fakeConn{}
	hub.Register(1, "dispatcher", d)
	hub.Register(2, "client", c)
	bridge := &fakeBridge{}
	f := NewFanout(hub, nil, nil, bridge)

	f.NotifyRole(context.Background(), "dispatcher", "assignment_completed", map[string]any{"assignment_id": 4})
	assert.Equal(t, []string{"assignment_completed"}, d.events())
	assert.Empty(t, c.events())
	f.Flush()
	assert.Equal(t, []string{"dispatcher"}, bridge.roles)
}

func TestFanout_SlowBridgeDoesNotBlockCaller(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	hub.Register(9, "inspector", conn)
	rec := &countingRecorder{}
	bridge := &fakeBridge{hold: make(chan struct{})}
	f := NewFanout(hub, nil, rec, bridge)

	returned := make(chan bool, 1)
	go func() {
		returned <- f.NotifyUser(context.Background(), 9, "new_assignment", nil)
	}()
	select {
	case ok := <-returned:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("NotifyUser waited on the bridge")
	}
	assert.Equal(t, []string{"new_assignment"}, conn.events())
	f.NotifyRole(context.Background(), "dispatcher", "assignment_accepted", nil)

	close(bridge.hold)
	f.Close()
	assert.Equal(t, []int64{9}, bridge.users)
	assert.Equal(t, []string{"dispatcher"}, bridge.roles)
	assert.Equal(t, 2, rec.counts["fake/delivered"])
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu           sync.Mutex
	out          []published
	err          error
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newFakeToken(p.err)
}

func (p *fakePublisher) Disconnect(uint) { p.disconnected = true }

func TestMQTTBridge_Topics(t *testing.T) {
	pub := &fakePublisher{}
	b := NewMQTTBridge(pub, "/inspections/", 1)

	require.NoError(t, b.PublishUser(12, NewMessage("new_assignment", map[string]any{"assignment_id": 1})))
	require.NoError(t, b.PublishRole("dispatcher", NewMessage("assignment_accepted", nil)))

	require.Len(t, pub.out, 2)
	assert.Equal(t, "inspections/users/12/new_assignment", pub.out[0].topic)
	assert.Equal(t, "inspections/roles/dispatcher/assignment_accepted", pub.out[1].topic)
	assert.Equal(t, byte(1), pub.out[0].qos)
	assert.False(t, pub.out[0].retained)

	var m Message
	require.NoError(t, json.Unmarshal(pub.out[0].payload, &m))
	assert.Equal(t, "new_assignment", m.Event)
	assert.EqualValues(t, 1, m.Payload["assignment_id"])

	b.Close()
	assert.True(t, pub.disconnected)
}

func TestMQTTBridge_DefaultPrefixAndError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	b := NewMQTTBridge(pub, "", 0)
	assert.Equal(t, "inspections/users/1/x", b.UserTopic(1, "x"))
	assert.Error(t, b.PublishUser(1, NewMessage("x", nil)))
}
