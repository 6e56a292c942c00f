package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/types"
)

// DefaultTTL 结果缓存的默认保留时间
const DefaultTTL = 24 * time.Hour

// ErrInProgress 同一幂等键的请求仍在处理中
var ErrInProgress = types.NewError(types.ErrInvalidState, "a request with the same idempotency key is in progress")

// record 是存储中的条目；Pending 为 true 表示已占位但尚未完成
type record struct {
	Pending bool            `json:"pending,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Manager 幂等性管理器：首次执行并缓存结果，重复请求直接回放
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewManager 创建幂等性管理器，ttl <= 0 时使用 DefaultTTL
func NewManager(store Store, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, ttl: ttl, logger: logger.With(zap.String("component", "idempotency"))}
}

// GenerateKey 使用 SHA256 生成幂等键，相同输入得到相同的键
func GenerateKey(inputs ...any) (string, error) {
	if len(inputs) == 0 {
		return "", errors.New("at least one input is required")
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal key inputs: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Do 以 key 为幂等键执行 fn。
// 已有完成结果时返回缓存的 JSON 且 replayed 为 true；fn 失败时释放占位，允许重试。
func (m *Manager) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (result json.RawMessage, replayed bool, err error) {
	rec, found, err := m.load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		if rec.Pending {
			return nil, false, ErrInProgress
		}
		m.logger.Debug("idempotent replay", zap.String("key", key))
		return rec.Result, true, nil
	}

	pending, _ := json.Marshal(record{Pending: true})
	reserved, err := m.store.SetNX(ctx, key, pending, m.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		return nil, false, ErrInProgress
	}

	v, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(delErr))
		}
		return nil, false, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal idempotent result: %w", err)
	}
	done, _ := json.Marshal(record{Result: data})
	if err := m.store.Set(context.WithoutCancel(ctx), key, done, m.ttl); err != nil {
		// 结果已产生，缓存失败只影响后续回放
		m.logger.Warn("failed to store idempotent result", zap.String("key", key), zap.Error(err))
	}
	return data, false, nil
}

func (m *Manager) load(ctx context.Context, key string) (record, bool, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return record{}, false, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, true, nil
}
