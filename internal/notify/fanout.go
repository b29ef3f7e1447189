package notify

import (
	"context"
	"sync"

	"inspectionDispatch/internal/logger"
)

// Delivery outcomes reported to a Recorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeFailed    = "failed"
)

// Recorder counts notification outcomes per channel ("ws", "mqtt").
type Recorder interface {
	Notification(channel, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Notification(string, string) {}

// Fanout sends dispatch events through the hub and any configured bridges.
// It satisfies dispatch.Notifier. Nothing it does ever surfaces an error.
// Bridge publishes run in the background so a slow broker never delays the caller.
type Fanout struct {
	hub      *Hub
	bridges  []Bridge
	log      logger.Logger
	rec      Recorder
	inflight sync.WaitGroup
}

// NewFanout builds a fan-out over hub. log and rec may be nil.
func NewFanout(hub *Hub, log logger.Logger, rec Recorder, bridges ...Bridge) *Fanout {
	if log == nil {
		log = logger.NopLogger{}
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Fanout{hub: hub, bridges: bridges, log: log, rec: rec}
}

// NotifyUser reports whether a live websocket connection accepted the message.
// Bridges do not count as delivery.
func (f *Fanout) NotifyUser(_ context.Context, userID int64, event string, payload map[string]any) bool {
	msg := NewMessage(event, payload)
	delivered := f.hub.SendToUser(userID, msg)
	if delivered {
		f.rec.Notification("ws", OutcomeDelivered)
	} else {
		f.rec.Notification("ws", OutcomeOffline)
		f.log.Debugf("user %d has no live connection; %s dropped", userID, event)
	}
	for _, b := range f.bridges {
		f.publish(b, event, func() error { return b.PublishUser(userID, msg) })
	}
	return delivered
}

// NotifyRole broadcasts to every live connection under role.
func (f *Fanout) NotifyRole(_ context.Context, role string, event string, payload map[string]any) {
	msg := NewMessage(event, payload)
	n := f.hub.SendToRole(role, msg)
	if n > 0 {
		f.rec.Notification("ws", OutcomeDelivered)
	} else {
		f.rec.Notification("ws", OutcomeOffline)
	}
	f.log.Debugw("role broadcast", map[string]any{"role": role, "event": event, "receivers": n})
	for _, b := range f.bridges {
		f.publish(b, event, func() error { return b.PublishRole(role, msg) })
	}
}

func (f *Fanout) publish(b Bridge, event string, send func() error) {
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		f.record(b.Name(), send(), event)
	}()
}

func (f *Fanout) record(channel string, err error, event string) {
	if err != nil {
		f.rec.Notification(channel, OutcomeFailed)
		f.log.Warnf("%s publish of %s failed: %v", channel, event, err)
		return
	}
	f.rec.Notification(channel, OutcomeDelivered)
}

// Flush waits for in-flight bridge publishes.
func (f *Fanout) Flush() { f.inflight.Wait() }

// Close waits for in-flight publishes, then shuts down the bridges. The hub is
// owned by the caller.
func (f *Fanout) Close() {
	f.Flush()
	for _, b := range f.bridges {
		b.Close()
	}
}
