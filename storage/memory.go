package storage

import (
	"context"
	"sync"

	"github.com/c360studio/teamrelay/directory"
)

// MemHandles is an in-memory HandleDirectory for tests and for running
// without JetStream.
type MemHandles struct {
	mu      sync.RWMutex
	handles map[string]directory.Identity
}

// NewMemHandles creates an empty in-memory handle directory.
func NewMemHandles() *MemHandles {
	return &MemHandles{handles: make(map[string]directory.Identity)}
}

// Resolve looks up the identity for handle.
func (h *MemHandles) Resolve(_ context.Context, handle string) (directory.Identity, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	id, ok := h.handles[normalizeHandle(handle)]
	return id, ok, nil
}

// Record stores or overwrites the identity for handle.
func (h *MemHandles) Record(_ context.Context, handle string, id directory.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.handles[normalizeHandle(handle)] = id
	return nil
}

// MemMutes is an in-memory MuteList.
type MemMutes struct {
	mu    sync.RWMutex
	muted map[directory.Identity]struct{}
}

// NewMemMutes creates an empty in-memory mute list.
func NewMemMutes() *MemMutes {
	return &MemMutes{muted: make(map[directory.Identity]struct{})}
}

// IsMuted reports whether id is muted.
func (m *MemMutes) IsMuted(_ context.Context, id directory.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.muted[id]
	return ok, nil
}

// Mute marks id as muted.
func (m *MemMutes) Mute(_ context.Context, id directory.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.muted[id] = struct{}{}
	return nil
}

// Unmute clears id's mute.
func (m *MemMutes) Unmute(_ context.Context, id directory.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.muted, id)
	return nil
}
