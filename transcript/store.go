package transcript

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
)

var (
	// ErrNotFound is returned when a session has no snapshot.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidID is returned for an empty session id.
	ErrInvalidID = errors.New("invalid session ID")
)

// Snapshot is the live view of one conversation.
type Snapshot struct {
	Session    conversation.SessionContext `json:"session"`
	State      string                      `json:"state"`
	Utterances []conversation.Utterance    `json:"utterances"`
	StartedAt  time.Time                   `json:"startedAt"`
	UpdatedAt  time.Time                   `json:"updatedAt"`
	Ended      bool                        `json:"ended"`
	Reason     conversation.EndReason      `json:"reason,omitempty"`
}

// Store is a keyed store of live snapshots. Each session's snapshot is
// written only by the conversation that owns it.
type Store interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	if snap.Session.ID == "" {
		return ErrInvalidID
	}
	snap.Utterances = append([]conversation.Utterance(nil), snap.Utterances...)
	m.mu.Lock()
	m.snaps[snap.Session.ID] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Utterances = append([]conversation.Utterance(nil), snap.Utterances...)
	return snap, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Snapshot, error) {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.snaps))
	for _, snap := range m.snaps {
		out = append(out, snap)
	}
	m.mu.RUnlock()
	sortSnapshots(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return ErrNotFound
	}
	delete(m.snaps, id)
	return nil
}

func sortSnapshots(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].Session.ID < snaps[j].Session.ID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
}
