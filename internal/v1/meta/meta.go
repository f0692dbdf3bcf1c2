// Package meta implements the identity/session metadata capability behind the
// gateway: per-connection records, unique visitor session counting, and daily
// online statistics. Two backends exist: an in-process map and a Redis hash.
package meta

import (
	"context"
	"time"
)

// SocketMetadata is the per-connection record keyed by identity. The JSON
// tags define the Redis hash value layout and must not change.
type SocketMetadata struct {
	Identity      string           `json:"identity"`
	SessionID     string           `json:"session_id"`
	ConnectedAtMs int64            `json:"connected_at_ms"`
	UpdatedAtMs   int64            `json:"updated_at_ms"`
	RoomJoinedAt  map[string]int64 `json:"room_joined_at"`
}

// Store is the metadata capability. Backend failures are absorbed inside the
// implementation: mutations are best-effort and reads degrade to zero values,
// because a transient backend outage must never tear down healthy sessions.
type Store interface {
	// UpsertIdentity creates or updates the record for sid, setting the
	// session id and updated-at while preserving connected-at if present.
	UpsertIdentity(ctx context.Context, sid, sessionID string, nowMs int64)

	// SetSessionID updates the session id of an existing record; no-op when
	// sid is unknown.
	SetSessionID(ctx context.Context, sid, sessionID string, nowMs int64)

	// JoinRoom records the join timestamp for room on an existing record.
	JoinRoom(ctx context.Context, sid, room string, nowMs int64)

	// LeaveRoom removes room from an existing record.
	LeaveRoom(ctx context.Context, sid, room string, nowMs int64)

	// Clear removes the record entirely.
	Clear(ctx context.Context, sid string)

	// UniqueSessionCount returns the cardinality of the session-id set across
	// all records.
	UniqueSessionCount(ctx context.Context) int

	// TouchBySession bumps updated-at on every record with that session id.
	TouchBySession(ctx context.Context, sessionID string, nowMs int64)

	// RoomPresence returns all records that have joined the room.
	RoomPresence(ctx context.Context, room string) []SocketMetadata

	// FindBySession returns any one record with that session id.
	FindBySession(ctx context.Context, sessionID string) (SocketMetadata, bool)

	// UpdateOnlineStats folds the current online count into today's stats.
	// No-op for backends without stats persistence.
	UpdateOnlineStats(ctx context.Context, online int)

	// OnlineStatsToday returns (max, total) for the current calendar day, or
	// ok=false when the backend does not persist stats.
	OnlineStatsToday(ctx context.Context) (max int, total int, ok bool)
}

// today is the wall-clock local-time key for daily stats. Day rollover needs
// no explicit action; a process crossing midnight starts writing a new key.
func today() string {
	return time.Now().Format("2006-01-02")
}
