package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentroom/types"
)

// MemoryStore is an in-memory implementation of RoomStore and TranscriptStore.
// Suitable for development and testing; all data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[uint]*types.Room
	messages []types.Message
	roomSeq  uint
	partSeq  uint
	msgSeq   uint64
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[uint]*types.Room),
		now:   time.Now,
	}
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneRoom(r *types.Room) *types.Room {
	c := *r
	c.Participants = append([]types.Participant(nil), r.Participants...)
	return &c
}

func (s *MemoryStore) GetRoom(ctx context.Context, id uint) (*types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(r), nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id uint, status types.RoomStatus) error {
	if !status.Valid() {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) IncrementRounds(ctx context.Context, id uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return 0, ErrNotFound
	}
	r.CurrentRounds++
	r.UpdatedAt = s.now()
	return r.CurrentRounds, nil
}

func (s *MemoryStore) RestartSession(ctx context.Context, id uint) (*types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.SessionID++
	r.CurrentRounds = 0
	r.Status = types.RoomIdle
	r.UpdatedAt = s.now()
	return cloneRoom(r), nil
}

func (s *MemoryStore) ResetRunning(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rooms {
		if r.Status == types.RoomRunning {
			r.Status = types.RoomIdle
			r.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, room *types.Room) error {
	if room == nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	room.ApplyDefaults()
	s.roomSeq++
	room.ID = s.roomSeq
	room.CreatedAt = s.now()
	room.UpdatedAt = room.CreatedAt
	for i := range room.Participants {
		s.partSeq++
		room.Participants[i].ID = s.partSeq
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (s *MemoryStore) ListRooms(ctx context.Context) ([]types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		c := *r
		c.Participants = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgSeq++
	msg.ID = s.msgSeq
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, roomID uint, sessionID int, limit int) ([]types.Message, error) {
	if limit <= 0 {
		return []types.Message{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// 消息按序列号追加，倒序扫描即为最新优先
	out := make([]types.Message, 0, limit)
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.RoomID == roomID && m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	reverseMessages(out)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.Message{}
	for _, m := range s.messages {
		if m.RoomID == roomID && m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}
