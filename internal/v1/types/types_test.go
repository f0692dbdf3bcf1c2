package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomName_Valid(t *testing.T) {
	tests := []struct {
		name string
		room RoomName
		want bool
	}{
		{"simple", "lobby", true},
		{"path style", "/blog/2024/launch", true},
		{"all allowed specials", "a_b.c/d:e@f-g", true},
		{"digits", "room42", true},
		{"max length", RoomName(strings.Repeat("a", 256)), true},
		{"empty", "", false},
		{"too long", RoomName(strings.Repeat("a", 257)), false},
		{"space", "room one", false},
		{"hash", "room#1", false},
		{"query chars", "room?x=1", false},
		{"unicode", "café", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.room.Valid())
		})
	}
}
