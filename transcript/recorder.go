package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
)

const recorderWriteTimeout = 5 * time.Second

// Recorder is a conversation observer that mirrors each conversation into
// a Store as it progresses.
type Recorder struct {
	store Store

	mu    sync.Mutex
	snaps map[string]*Snapshot
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store: store,
		snaps: make(map[string]*Snapshot),
	}
}

func (r *Recorder) ConversationStarted(s conversation.SessionContext) {
	now := time.Now()
	r.update(s, func(snap *Snapshot) {
		snap.StartedAt = now
		snap.State = conversation.StateIdle.String()
	})
}

func (r *Recorder) UtteranceRecorded(s conversation.SessionContext, u conversation.Utterance) {
	r.update(s, func(snap *Snapshot) {
		snap.Utterances = append(snap.Utterances, u)
	})
}

func (r *Recorder) TurnStateChanged(s conversation.SessionContext, state conversation.TurnState) {
	r.update(s, func(snap *Snapshot) {
		snap.State = state.String()
	})
}

func (r *Recorder) ListenCompleted(conversation.SessionContext, conversation.Decision) {}

func (r *Recorder) ConversationEnded(s conversation.SessionContext, reason conversation.EndReason) {
	r.update(s, func(snap *Snapshot) {
		snap.Ended = true
		snap.Reason = reason
		snap.State = conversation.StateIdle.String()
	})
	r.mu.Lock()
	delete(r.snaps, s.ID)
	r.mu.Unlock()
}

func (r *Recorder) update(s conversation.SessionContext, fn func(*Snapshot)) {
	r.mu.Lock()
	snap, ok := r.snaps[s.ID]
	if !ok {
		snap = &Snapshot{Session: s}
		r.snaps[s.ID] = snap
	}
	fn(snap)
	snap.UpdatedAt = time.Now()
	cp := *snap
	cp.Utterances = append([]conversation.Utterance(nil), snap.Utterances...)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()
	if err := r.store.Put(ctx, cp); err != nil {
		slog.Warn("Failed to update session snapshot", "sessionID", s.ID, "error", err)
	}
}
