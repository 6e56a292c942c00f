package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentroom/types"
)

// RedisTranscriptStore is a Redis-based implementation of TranscriptStore.
// Suitable for distributed deployments that share one transcript log.
// Each session is a sorted set scored by a global INCR sequence.
type RedisTranscriptStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisTranscriptStore creates a transcript store on an existing client
func NewRedisTranscriptStore(client redis.UniversalClient, keyPrefix string) *RedisTranscriptStore {
	if keyPrefix == "" {
		keyPrefix = "agentroom:"
	}
	return &RedisTranscriptStore{
		client:    client,
		keyPrefix: keyPrefix + "transcript:",
		now:       time.Now,
	}
}

// Ping checks if the store is healthy
func (s *RedisTranscriptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// seqKey returns the Redis key of the message sequence
func (s *RedisTranscriptStore) seqKey() string {
	return s.keyPrefix + "seq"
}

// sessionKey returns the Redis key for a session's sorted set
func (s *RedisTranscriptStore) sessionKey(roomID uint, sessionID int) string {
	return fmt.Sprintf("%sroom:%d:session:%d", s.keyPrefix, roomID, sessionID)
}

func (s *RedisTranscriptStore) Append(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("next message sequence: %w", err)
	}
	msg.ID = uint64(seq)
	msg.CreatedAt = s.now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = s.client.ZAdd(ctx, s.sessionKey(msg.RoomID, msg.SessionID), redis.Z{
		Score:  float64(seq),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func decodeMessages(raw []string) ([]types.Message, error) {
	out := make([]types.Message, 0, len(raw))
	for _, r := range raw {
		var m types.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisTranscriptStore) Recent(ctx context.Context, roomID uint, sessionID int, limit int) ([]types.Message, error) {
	if limit <= 0 {
		return []types.Message{}, nil
	}
	raw, err := s.client.ZRevRange(ctx, s.sessionKey(roomID, sessionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	reverseMessages(out)
	return out, nil
}

func (s *RedisTranscriptStore) List(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error) {
	raw, err := s.client.ZRange(ctx, s.sessionKey(roomID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return decodeMessages(raw)
}
