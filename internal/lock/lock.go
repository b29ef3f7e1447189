// Package lock serializes writers that touch the same inspector, request or
// assignment. Keys are acquired in sorted order so that two callers locking
// overlapping key sets can never deadlock.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Locker acquires a set of named locks. The returned function releases all of them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// InspectorKey is the lock key shared by every writer of an inspector's location.
func InspectorKey(id int64) string { return fmt.Sprintf("inspector:%d", id) }

// RequestKey guards the one-active-assignment-per-request check.
func RequestKey(id int64) string { return fmt.Sprintf("request:%d", id) }

// AssignmentKey guards lifecycle transitions of a single assignment.
func AssignmentKey(id int64) string { return fmt.Sprintf("assignment:%d", id) }

// normalize sorts and de-duplicates keys.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are reference counted and removed
// once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

func (m *KeyedMutex) acquireEntry(key string) *keyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) releaseEntry(key string, e *keyEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock blocks until every key is held or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	entries := make([]*keyEntry, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-entries[i].sem
			m.releaseEntry(held[i], entries[i])
		}
	}

	for _, k := range keys {
		e := m.acquireEntry(k)
		select {
		case e.sem <- struct{}{}:
			held = append(held, k)
			entries = append(entries, e)
		case <-ctx.Done():
			m.releaseEntry(k, e)
			release()
			return nil, fmt.Errorf("lock %s: %w", k, ctx.Err())
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Len reports how many keys are currently tracked. Used by tests.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
