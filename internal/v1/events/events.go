// Package events defines the JSON envelope and payload shapes for every
// business event the gateway sends to clients.
package events

import (
	"context"
	"encoding/json"

	"github.com/visitly/presence-gateway/internal/v1/logging"
)

// EventType enumerates the business event kinds on the wire.
type EventType string

const (
	GatewayConnect         EventType = "GATEWAY_CONNECT"
	VisitorOnline          EventType = "VISITOR_ONLINE"
	VisitorOffline         EventType = "VISITOR_OFFLINE"
	ActivityJoinPresence   EventType = "ACTIVITY_JOIN_PRESENCE"
	ActivityUpdatePresence EventType = "ACTIVITY_UPDATE_PRESENCE"
	ActivityLeavePresence  EventType = "ACTIVITY_LEAVE_PRESENCE"
)

// Envelope is the fixed wire format for business events: {type, data, code?}.
type Envelope struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
	Code *int      `json:"code,omitempty"`
}

// Format serializes an event envelope to its wire representation. Payloads are
// plain structs or strings; a marshal failure yields an empty object so the
// producer never propagates encoding errors to the session.
func Format(kind EventType, data any) string {
	b, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal event envelope")
		return "{}"
	}
	return string(b)
}

// VisitorOnlinePayload is the data shape for VISITOR_ONLINE.
type VisitorOnlinePayload struct {
	Online    int   `json:"online"`
	Timestamp int64 `json:"timestamp"`
}

// VisitorOfflinePayload is the data shape for VISITOR_OFFLINE.
type VisitorOfflinePayload struct {
	Online    int    `json:"online"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"sessionId"`
}

// JoinPresencePayload is the data shape for ACTIVITY_JOIN_PRESENCE.
type JoinPresencePayload struct {
	Identity string `json:"identity"`
	RoomName string `json:"roomName"`
	JoinedAt int64  `json:"joinedAt"`
}

// UpdatePresencePayload is the data shape for ACTIVITY_UPDATE_PRESENCE.
type UpdatePresencePayload struct {
	Identity    string  `json:"identity"`
	RoomName    string  `json:"roomName"`
	UpdatedAt   int64   `json:"updatedAt"`
	DisplayName *string `json:"displayName,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// LeavePresencePayload is the data shape for ACTIVITY_LEAVE_PRESENCE.
type LeavePresencePayload struct {
	Identity string `json:"identity"`
	RoomName string `json:"roomName"`
}
