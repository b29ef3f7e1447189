// Package notify delivers best-effort real-time messages to connected users.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope written to every live connection.
type Message struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	SentAt  time.Time      `json:"sent_at"`
}

// NewMessage stamps a fresh id and send time.
func NewMessage(event string, payload map[string]any) Message {
	return Message{ID: uuid.NewString(), Event: event, Payload: payload, SentAt: time.Now().UTC()}
}

// Conn is one live channel to a client. Send must not block.
type Conn interface {
	Send(Message) error
	Close() error
}

type entry struct {
	userID int64
	role   string
	conn   Conn
}

// Hub is the connection registry. A user may hold several connections
// (several tabs or devices); each Register call adds one.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	conns  map[uint64]entry
	byUser map[int64]map[uint64]struct{}
	byRole map[string]map[uint64]struct{}
	closed bool
}

// NewHub returns an empty registry.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[uint64]entry),
		byUser: make(map[int64]map[uint64]struct{}),
		byRole: make(map[string]map[uint64]struct{}),
	}
}

// Register adds c under userID and role and returns the function that removes
// it again. Registering on a closed hub closes c immediately.
func (h *Hub) Register(userID int64, role string, c Conn) (unregister func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.Close()
		return func() {}
	}
	h.nextID++
	id := h.nextID
	h.conns[id] = entry{userID: userID, role: role, conn: c}
	addIndex(h.byUser, userID, id)
	addIndex(h.byRole, role, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	removeIndex(h.byUser, e.userID, id)
	removeIndex(h.byRole, e.role, id)
}

// SendToUser delivers to every connection of userID. It reports whether at
// least one connection accepted the message.
func (h *Hub) SendToUser(userID int64, msg Message) bool {
	delivered := 0
	for _, c := range h.snapshot(h.byUserIDs(userID)) {
		if c.Send(msg) == nil {
			delivered++
		}
	}
	return delivered > 0
}

// SendToRole broadcasts to every connection registered under role and returns
// how many accepted the message.
func (h *Hub) SendToRole(role string, msg Message) int {
	delivered := 0
	for _, c := range h.snapshot(h.byRoleIDs(role)) {
		if c.Send(msg) == nil {
			delivered++
		}
	}
	return delivered
}

// Connected reports whether userID has at least one live connection.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// Len is the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes and forgets every connection. Later registrations are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, e := range h.conns {
		conns = append(conns, e.conn)
	}
	h.conns = make(map[uint64]entry)
	h.byUser = make(map[int64]map[uint64]struct{})
	h.byRole = make(map[string]map[uint64]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) byUserIDs(userID int64) []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return keys(h.byUser[userID])
}

func (h *Hub) byRoleIDs(role string) []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return keys(h.byRole[role])
}

// snapshot resolves ids to connections so sends happen outside the lock.
func (h *Hub) snapshot(ids []uint64) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if e, ok := h.conns[id]; ok {
			out = append(out, e.conn)
		}
	}
	return out
}

func addIndex[K comparable](idx map[K]map[uint64]struct{}, k K, id uint64) {
	set, ok := idx[k]
	if !ok {
		set = make(map[uint64]struct{})
		idx[k] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[uint64]struct{}, k K, id uint64) {
	set := idx[k]
	delete(set, id)
	if len(set) == 0 {
		delete(idx, k)
	}
}

func keys(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
