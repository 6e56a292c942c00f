package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentroom/types"
)

// GormStore implements RoomStore and TranscriptStore on a relational database.
// Message order is the auto-increment primary key, never the timestamp.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a store on an opened gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the tables used by the store.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&roomRow{}, &participantRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks if the store is healthy
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) GetRoom(ctx context.Context, id uint) (*types.Room, error) {
	var row roomRow
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", id, err)
	}
	return row.toRoom(), nil
}

// exists 区分 "未找到" 与 "值未变化" 两种 RowsAffected 为 0 的情况
func exists(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&roomRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetStatus(ctx context.Context, id uint, status types.RoomStatus) error {
	if !status.Valid() {
		return ErrInvalidInput
	}
	db := s.db.WithContext(ctx)
	res := db.Model(&roomRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return fmt.Errorf("set room %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return exists(db, id)
	}
	return nil
}

func (s *GormStore) IncrementRounds(ctx context.Context, id uint) (int, error) {
	var rounds int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomRow{}).Where("id = ?", id).Updates(map[string]any{
			"current_rounds": gorm.Expr("current_rounds + ?", 1),
			"updated_at":     s.now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var vals []int
		if err := tx.Model(&roomRow{}).Where("id = ?", id).Pluck("current_rounds", &vals).Error; err != nil {
			return err
		}
		if len(vals) == 0 {
			return ErrNotFound
		}
		rounds = vals[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("increment room %d rounds: %w", id, err)
	}
	return rounds, nil
}

func (s *GormStore) RestartSession(ctx context.Context, id uint) (*types.Room, error) {
	res := s.db.WithContext(ctx).Model(&roomRow{}).Where("id = ?", id).Updates(map[string]any{
		"session_id":     gorm.Expr("session_id + ?", 1),
		"current_rounds": 0,
		"status":         string(types.RoomIdle),
		"updated_at":     s.now(),
	})
	if res.Error != nil {
		return nil, fmt.Errorf("restart room %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetRoom(ctx, id)
}

func (s *GormStore) ResetRunning(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("status = ?", string(types.RoomRunning)).
		Updates(map[string]any{
			"status":     string(types.RoomIdle),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset running rooms: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) CreateRoom(ctx context.Context, room *types.Room) error {
	if room == nil {
		return ErrInvalidInput
	}
	room.ApplyDefaults()
	row := roomToRow(room)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	room.ID = row.ID
	room.CreatedAt = row.CreatedAt
	room.UpdatedAt = row.UpdatedAt
	for i := range room.Participants {
		room.Participants[i].ID = row.Participants[i].ID
	}
	return nil
}

func (s *GormStore) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rows []roomRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]types.Room, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toRoom())
	}
	return out, nil
}

func (s *GormStore) Append(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	msg.ID = 0
	msg.CreatedAt = s.now()
	row := messageToRow(msg)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	msg.ID = row.ID
	return nil
}

func (s *GormStore) Recent(ctx context.Context, roomID uint, sessionID int, limit int) ([]types.Message, error) {
	if limit <= 0 {
		return []types.Message{}, nil
	}
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND session_id = ?", roomID, sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]types.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toMessage())
	}
	reverseMessages(out)
	return out, nil
}

func (s *GormStore) List(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND session_id = ?", roomID, sessionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]types.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toMessage())
	}
	return out, nil
}
