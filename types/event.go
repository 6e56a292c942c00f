package types

import "time"

// EventType identifies the payload carried by an Event.
type EventType string

const (
	EventMessage EventType = "message"
	EventDelta   EventType = "delta"
)

// Event is the envelope delivered to room observers.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// MessagePayload is the data of a "message" event: one persisted transcript entry.
type MessagePayload struct {
	ID            uint64    `json:"id"`
	RoomID        uint      `json:"room_id"`
	ParticipantID *uint     `json:"participant_id,omitempty"`
	PersonaID     *uint     `json:"persona_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	SessionID     int       `json:"session_id"`
	Role          Role      `json:"role"`
}

// DeltaPayload is the data of a "delta" event: an unpersisted streaming fragment.
type DeltaPayload struct {
	RoomID        uint   `json:"room_id"`
	ParticipantID uint   `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Content       string `json:"content"`
}

// NewMessageEvent wraps a persisted message. System messages have no sender
// and are shown as "System".
func NewMessageEvent(m *Message) Event {
	p := MessagePayload{
		ID:          m.ID,
		RoomID:      m.RoomID,
		DisplayName: m.SenderName,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		SessionID:   m.SessionID,
		Role:        m.Role,
	}
	if m.ParticipantID != 0 {
		id := m.ParticipantID
		p.ParticipantID = &id
	}
	if m.PersonaID != 0 {
		id := m.PersonaID
		p.PersonaID = &id
	}
	if p.DisplayName == "" && m.IsSystem() {
		p.DisplayName = "System"
	}
	return Event{Type: EventMessage, Data: p}
}

// NewDeltaEvent wraps a streaming fragment of a participant's turn.
func NewDeltaEvent(roomID uint, p *Participant, fragment string) Event {
	return Event{Type: EventDelta, Data: DeltaPayload{
		RoomID:        roomID,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Content:       fragment,
	}}
}
