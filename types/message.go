package types

import "time"

// Role is the semantic role of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an immutable transcript entry. ID is a per-store monotonic
// sequence and is the ordering key for context reconstruction.
type Message struct {
	ID            uint64    `json:"id"`
	RoomID        uint      `json:"room_id"`
	SessionID     int       `json:"session_id"`
	Role          Role      `json:"role"`
	SenderName    string    `json:"sender_name,omitempty"`
	ParticipantID uint      `json:"participant_id,omitempty"`
	PersonaID     uint      `json:"persona_id,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsSystem reports whether the message is narration rather than speech.
func (m *Message) IsSystem() bool {
	return m.Role == RoleSystem
}
