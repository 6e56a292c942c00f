package types

import (
	"strings"
	"time"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomIdle     RoomStatus = "idle"
	RoomRunning  RoomStatus = "running"
	RoomFinished RoomStatus = "finished"
)

// Valid reports whether s is one of the known statuses.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomIdle, RoomRunning, RoomFinished:
		return true
	}
	return false
}

// Mode selects the conversation style of a room.
type Mode string

const (
	ModeDebate    Mode = "debate"
	ModeGroupChat Mode = "group_chat"
)

// Normalize maps unknown or empty modes to ModeDebate.
func (m Mode) Normalize() Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(m)))) {
	case ModeGroupChat:
		return ModeGroupChat
	default:
		return ModeDebate
	}
}

// Defaults applied to new rooms and participants.
const (
	DefaultMaxRounds      = 20
	DefaultAggressiveness = 5
	MinAggressiveness     = 1
	MaxAggressiveness     = 10
)

// BackendSpec references the model backend a participant talks through.
type BackendSpec struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model,omitempty" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	APIKey      string  `json:"-" yaml:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url"`
	UseProxy    bool    `json:"use_proxy" yaml:"use_proxy"`
}

// Participant is a persona bound to a model backend configuration.
// Persona attributes are optional; empty values are inferred by the model.
type Participant struct {
	ID             uint        `json:"id" yaml:"id"`
	PersonaID      uint        `json:"persona_id,omitempty" yaml:"persona_id"`
	DisplayName    string      `json:"display_name" yaml:"display_name"`
	Gender         string      `json:"gender,omitempty" yaml:"gender"`
	Age            int         `json:"age,omitempty" yaml:"age"`
	Profession     string      `json:"profession,omitempty" yaml:"profession"`
	Personality    string      `json:"personality,omitempty" yaml:"personality"`
	Aggressiveness int         `json:"aggressiveness" yaml:"aggressiveness"`
	SystemPrompt   string      `json:"system_prompt,omitempty" yaml:"system_prompt"`
	Backend        BackendSpec `json:"backend" yaml:"backend"`
}

// EffectiveAggressiveness clamps the configured value into [1, 10],
// treating zero as the default.
func (p Participant) EffectiveAggressiveness() int {
	switch {
	case p.Aggressiveness == 0:
		return DefaultAggressiveness
	case p.Aggressiveness < MinAggressiveness:
		return MinAggressiveness
	case p.Aggressiveness > MaxAggressiveness:
		return MaxAggressiveness
	}
	return p.Aggressiveness
}

// Room is a conversation container.
type Room struct {
	ID            uint          `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Topic         string        `json:"topic" yaml:"topic"`
	Status        RoomStatus    `json:"status" yaml:"-"`
	Mode          Mode          `json:"mode" yaml:"mode"`
	MaxRounds     int           `json:"max_rounds" yaml:"max_rounds"`
	CurrentRounds int           `json:"current_rounds" yaml:"-"`
	SessionID     int           `json:"session_id" yaml:"-"`
	Participants  []Participant `json:"participants" yaml:"participants"`
	CreatedAt     time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time     `json:"updated_at" yaml:"-"`
}

// ApplyDefaults fills zero-valued fields of a new room.
func (r *Room) ApplyDefaults() {
	if r.Status == "" {
		r.Status = RoomIdle
	}
	r.Mode = r.Mode.Normalize()
	if r.MaxRounds <= 0 {
		r.MaxRounds = DefaultMaxRounds
	}
	if r.SessionID <= 0 {
		r.SessionID = 1
	}
}

// Exhausted reports whether the round budget is used up.
func (r *Room) Exhausted() bool {
	return r.CurrentRounds >= r.MaxRounds
}
