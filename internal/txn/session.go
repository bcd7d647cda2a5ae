package txn

import (
	"sync"
	"time"

	"github.com/blite-io/blite-server/internal/engine"
)

// Session is the spec.md §3 transaction-session record: an opaque id, the
// owning username, target database, timestamps, the engine's in-flight
// handle, and the concurrent bag of physical collections written during
// the session.
type Session struct {
	ID             string
	User           string
	DatabaseID     string
	StartedAt      time.Time
	LastActivityAt time.Time
	AuditToken     string

	engineTx engine.Tx

	mu    sync.Mutex
	dirty map[string]struct{}
}

func newSession(id, user, databaseID string, tx engine.Tx) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		User:           user,
		DatabaseID:     databaseID,
		StartedAt:      now,
		LastActivityAt: now,
		engineTx:       tx,
		dirty:          make(map[string]struct{}),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivityAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) markDirty(physicalCollection string) {
	s.mu.Lock()
	s.dirty[physicalCollection] = struct{}{}
	s.mu.Unlock()
	s.touch()
}

func (s *Session) dirtyCollections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for c := range s.dirty {
		out = append(out, c)
	}
	return out
}

// EngineTx returns the underlying engine transaction handle so callers
// outside this package can pass it to Engine.Insert/Update/Delete/Query.
func (s *Session) EngineTx() engine.Tx { return s.engineTx }

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActivityAt)
}
