// Package persistence provides the room repository and transcript storage
// used by the conversation orchestrator.
//
// Supported backends:
// - Database: gorm (postgres, mysql, sqlite) for rooms and transcripts
// - Redis: transcripts in per-session sorted sets, rooms stay in the database
// - Memory: for development and testing
package persistence

import (
	"context"
	"errors"
	"io"

	"github.com/BaSui01/agentroom/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeDatabase StoreType = "database"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeMemory   StoreType = "memory"
)

// RoomStore is the room repository consulted by the orchestrator on every turn.
type RoomStore interface {
	// GetRoom loads a room with its ordered participants. Returns ErrNotFound if missing.
	GetRoom(ctx context.Context, id uint) (*types.Room, error)

	// SetStatus overwrites the room status.
	SetStatus(ctx context.Context, id uint, status types.RoomStatus) error

	// IncrementRounds adds one completed turn and returns the new count.
	IncrementRounds(ctx context.Context, id uint) (int, error)

	// RestartSession bumps session_id, zeroes current_rounds and sets status idle.
	RestartSession(ctx context.Context, id uint) (*types.Room, error)

	// ResetRunning moves every running room to idle and returns how many changed.
	ResetRunning(ctx context.Context) (int, error)

	// CreateRoom persists a new room and its participants, assigning IDs.
	CreateRoom(ctx context.Context, room *types.Room) error

	// ListRooms returns all rooms ordered by id, without participants.
	ListRooms(ctx context.Context) ([]types.Room, error)
}

// TranscriptStore is the append-only message log.
type TranscriptStore interface {
	// Append assigns the next sequence id and CreatedAt, then persists msg.
	Append(ctx context.Context, msg *types.Message) error

	// Recent returns up to limit newest messages of a session in chronological order.
	Recent(ctx context.Context, roomID uint, sessionID int, limit int) ([]types.Message, error)

	// List returns the whole session transcript in chronological order.
	List(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error)
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles the repository pair selected by configuration.
type Stores struct {
	Rooms       RoomStore
	Transcripts TranscriptStore
	closers     []io.Closer
}

// Ping checks every backend that supports it.
func (s *Stores) Ping(ctx context.Context) error {
	for _, v := range []any{s.Rooms, s.Transcripts} {
		if p, ok := v.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases resources owned by the stores.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateMessage(msg *types.Message) error {
	if msg == nil || msg.RoomID == 0 || msg.SessionID <= 0 {
		return ErrInvalidInput
	}
	switch msg.Role {
	case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		return nil
	}
	return ErrInvalidInput
}

func reverseMessages(msgs []types.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
