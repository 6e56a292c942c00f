package persistence

import (
	"time"

	"github.com/BaSui01/agentroom/types"
)

// roomRow 房间表
type roomRow struct {
	ID            uint             `gorm:"primaryKey"`
	Name          string           `gorm:"size:128;not null"`
	Topic         string           `gorm:"type:text"`
	Status        string           `gorm:"size:16;not null;default:idle;index"`
	Mode          string           `gorm:"size:32;not null;default:debate"`
	MaxRounds     int              `gorm:"not null;default:20"`
	CurrentRounds int              `gorm:"not null;default:0"`
	SessionID     int              `gorm:"not null;default:1"`
	Participants  []participantRow `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (roomRow) TableName() string { return "rooms" }

// participantRow 房间参与者，Position 决定发言顺序
type participantRow struct {
	ID             uint   `gorm:"primaryKey"`
	RoomID         uint   `gorm:"not null;index"`
	Position       int    `gorm:"not null;default:0"`
	PersonaID      uint   `gorm:"default:0"`
	DisplayName    string `gorm:"size:64;not null"`
	Gender         string `gorm:"size:16"`
	Age            int
	Profession     string `gorm:"size:64"`
	Personality    string `gorm:"type:text"`
	Aggressiveness int    `gorm:"not null;default:5"`
	SystemPrompt   string `gorm:"type:text"`
	Provider       string `gorm:"size:32"`
	Model          string `gorm:"size:128"`
	Temperature    float64
	APIKey         string `gorm:"size:256"`
	BaseURL        string `gorm:"size:256"`
	UseProxy       bool
	CreatedAt      time.Time
}

func (participantRow) TableName() string { return "room_participants" }

// messageRow 消息表，自增主键即序列号
type messageRow struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID        uint      `gorm:"not null;index:idx_messages_room_session,priority:1"`
	SessionID     int       `gorm:"not null;index:idx_messages_room_session,priority:2"`
	Role          string    `gorm:"size:16;not null"`
	SenderName    string    `gorm:"size:64"`
	ParticipantID uint      `gorm:"default:0"`
	PersonaID     uint      `gorm:"default:0"`
	Content       string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func roomToRow(r *types.Room) roomRow {
	row := roomRow{
		ID:            r.ID,
		Name:          r.Name,
		Topic:         r.Topic,
		Status:        string(r.Status),
		Mode:          string(r.Mode),
		MaxRounds:     r.MaxRounds,
		CurrentRounds: r.CurrentRounds,
		SessionID:     r.SessionID,
	}
	for i, p := range r.Participants {
		row.Participants = append(row.Participants, participantRow{
			ID:             p.ID,
			Position:       i,
			PersonaID:      p.PersonaID,
			DisplayName:    p.DisplayName,
			Gender:         p.Gender,
			Age:            p.Age,
			Profession:     p.Profession,
			Personality:    p.Personality,
			Aggressiveness: p.EffectiveAggressiveness(),
			SystemPrompt:   p.SystemPrompt,
			Provider:       p.Backend.Provider,
			Model:          p.Backend.Model,
			Temperature:    p.Backend.Temperature,
			APIKey:         p.Backend.APIKey,
			BaseURL:        p.Backend.BaseURL,
			UseProxy:       p.Backend.UseProxy,
		})
	}
	return row
}

func (row *roomRow) toRoom() *types.Room {
	r := &types.Room{
		ID:            row.ID,
		Name:          row.Name,
		Topic:         row.Topic,
		Status:        types.RoomStatus(row.Status),
		Mode:          types.Mode(row.Mode).Normalize(),
		MaxRounds:     row.MaxRounds,
		CurrentRounds: row.CurrentRounds,
		SessionID:     row.SessionID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	for _, p := range row.Participants {
		r.Participants = append(r.Participants, types.Participant{
			ID:             p.ID,
			PersonaID:      p.PersonaID,
			DisplayName:    p.DisplayName,
			Gender:         p.Gender,
			Age:            p.Age,
			Profession:     p.Profession,
			Personality:    p.Personality,
			Aggressiveness: p.Aggressiveness,
			SystemPrompt:   p.SystemPrompt,
			Backend: types.BackendSpec{
				Provider:    p.Provider,
				Model:       p.Model,
				Temperature: p.Temperature,
				APIKey:      p.APIKey,
				BaseURL:     p.BaseURL,
				UseProxy:    p.UseProxy,
			},
		})
	}
	return r
}

func messageToRow(m *types.Message) messageRow {
	return messageRow{
		ID:            m.ID,
		RoomID:        m.RoomID,
		SessionID:     m.SessionID,
		Role:          string(m.Role),
		SenderName:    m.SenderName,
		ParticipantID: m.ParticipantID,
		PersonaID:     m.PersonaID,
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
	}
}

func (row *messageRow) toMessage() types.Message {
	return types.Message{
		ID:            row.ID,
		RoomID:        row.RoomID,
		SessionID:     row.SessionID,
		Role:          types.Role(row.Role),
		SenderName:    row.SenderName,
		ParticipantID: row.ParticipantID,
		PersonaID:     row.PersonaID,
		Content:       row.Content,
		CreatedAt:     row.CreatedAt,
	}
}
