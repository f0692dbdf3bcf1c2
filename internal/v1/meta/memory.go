package meta

import (
	"context"
	"sync"

	"k8s.io/utils/set"
)

// MemoryStore is the in-process Store backend: a mutex-guarded map of
// identity to record. Per-key operations are atomic; aggregate queries
// iterate a snapshot, so read skew is possible and acceptable.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*SocketMetadata
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*SocketMetadata)}
}

func (s *MemoryStore) UpsertIdentity(_ context.Context, sid, sessionID string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sid]; ok {
		rec.SessionID = sessionID
		rec.UpdatedAtMs = nowMs
		return
	}
	s.records[sid] = &SocketMetadata{
		Identity:      sid,
		SessionID:     sessionID,
		ConnectedAtMs: nowMs,
		UpdatedAtMs:   nowMs,
		RoomJoinedAt:  make(map[string]int64),
	}
}

func (s *MemoryStore) SetSessionID(_ context.Context, sid, sessionID string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sid]; ok {
		rec.SessionID = sessionID
		rec.UpdatedAtMs = nowMs
	}
}

func (s *MemoryStore) JoinRoom(_ context.Context, sid, room string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sid]; ok {
		rec.RoomJoinedAt[room] = nowMs
		rec.UpdatedAtMs = nowMs
	}
}

func (s *MemoryStore) LeaveRoom(_ context.Context, sid, room string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sid]; ok {
		delete(rec.RoomJoinedAt, room)
		rec.UpdatedAtMs = nowMs
	}
}

func (s *MemoryStore) Clear(_ context.Context, sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sid)
}

func (s *MemoryStore) UniqueSessionCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := set.New[string]()
	for _, rec := range s.records {
		sessions.Insert(rec.SessionID)
	}
	return sessions.Len()
}

func (s *MemoryStore) TouchBySession(_ context.Context, sessionID string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.SessionID == sessionID {
			rec.UpdatedAtMs = nowMs
		}
	}
}

func (s *MemoryStore) RoomPresence(_ context.Context, room string) []SocketMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SocketMetadata
	for _, rec := range s.records {
		if _, ok := rec.RoomJoinedAt[room]; ok {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (s *MemoryStore) FindBySession(_ context.Context, sessionID string) (SocketMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.SessionID == sessionID {
			return cloneRecord(rec), true
		}
	}
	return SocketMetadata{}, false
}

// UpdateOnlineStats is a no-op: the memory backend does not persist stats and
// callers fall back to the live count.
func (s *MemoryStore) UpdateOnlineStats(_ context.Context, _ int) {}

func (s *MemoryStore) OnlineStatsToday(_ context.Context) (int, int, bool) {
	return 0, 0, false
}

func cloneRecord(rec *SocketMetadata) SocketMetadata {
	out := *rec
	out.RoomJoinedAt = make(map[string]int64, len(rec.RoomJoinedAt))
	for k, v := range rec.RoomJoinedAt {
		out.RoomJoinedAt[k] = v
	}
	return out
}
