package gateway

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// Control frames use lowercase types, distinct from business events.
const (
	frameHello     = "hello"
	frameSync      = "sync"
	frameHeartbeat = "hb"
	frameUpdateSid = "updateSid"
)

// helloFrame is the first outbound frame on a room session.
type helloFrame struct {
	Type  string `json:"type"`
	SID   string `json:"sid"`
	TTL   int64  `json:"ttl"` // seconds
	Count int    `json:"count"`
}

// syncFrame carries a room count update.
type syncFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// inboundFrame is the superset of recognized client frames, discriminated by
// Type. Unknown types are ignored.
type inboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// writeJSON marshals v and sends it as a single text frame.
func writeJSON(conn wsConnection, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
