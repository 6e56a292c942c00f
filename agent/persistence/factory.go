package persistence

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Backends carries the connections a store may be built on.
// Only the ones required by the selected StoreType must be set.
type Backends struct {
	DB          *gorm.DB
	Redis       redis.UniversalClient
	RedisPrefix string
}

// NewStores creates the room and transcript stores for the given type
func NewStores(storeType string, b Backends) (*Stores, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(storeType))) {
	case StoreTypeMemory:
		mem := NewMemoryStore()
		return &Stores{Rooms: mem, Transcripts: mem}, nil

	case StoreTypeDatabase, "":
		if b.DB == nil {
			return nil, fmt.Errorf("store type %q requires a database connection", storeType)
		}
		gs := NewGormStore(b.DB)
		return &Stores{Rooms: gs, Transcripts: gs}, nil

	case StoreTypeRedis:
		if b.DB == nil || b.Redis == nil {
			return nil, fmt.Errorf("store type %q requires both database and redis connections", storeType)
		}
		return &Stores{
			Rooms:       NewGormStore(b.DB),
			Transcripts: NewRedisTranscriptStore(b.Redis, b.RedisPrefix),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
