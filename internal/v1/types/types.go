package types

// --- Core Domain Types ---

// SID represents the ephemeral per-connection identity minted at upgrade time.
// It is unique for the lifetime of the connection and never reused.
type SID string

// SessionID represents a client-supplied visitor identity. Multiple
// connections may share a SessionID; distinct SessionIDs count as distinct
// online visitors.
type SessionID string

// RoomName represents the name of a presence room.
type RoomName string

const maxRoomNameLength = 256

// Valid reports whether the room name conforms to `[A-Za-z0-9_./:@-]{1,256}`.
func (r RoomName) Valid() bool {
	if len(r) == 0 || len(r) > maxRoomNameLength {
		return false
	}
	for _, c := range r {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '/' || c == ':' || c == '@' || c == '-':
		default:
			return false
		}
	}
	return true
}
