package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🌱 seed 命令
// =============================================================================
// 从 YAML 导入房间与参与者：
//
//	rooms:
//	  - name: 辩论赛
//	    topic: AI 是否会取代程序员
//	    mode: debate
//	    max_rounds: 12
//	    participants:
//	      - display_name: 正方
//	        aggressiveness: 7
//	        backend: {provider: openai, model: gpt-4o-mini, temperature: 0.8}
// =============================================================================

// seedFile 导入文件结构
type seedFile struct {
	Rooms []types.Room `yaml:"rooms"`
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "rooms.yaml", "Rooms file (YAML)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if storeType(cfg) == persistence.StoreTypeMemory {
		return errors.New(`seed requires a persistent store, got store.type "memory"`)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	rooms, err := loadSeedFile(*file)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	infra, err := openInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	created, err := seedRooms(ctx, infra.stores.Rooms, rooms, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d room(s), skipped %d existing\n", created, len(rooms)-created)
	return nil
}

// loadSeedFile 读取并校验导入文件
func loadSeedFile(path string) ([]types.Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) ([]types.Room, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Rooms) == 0 {
		return nil, errors.New("seed file contains no rooms")
	}

	seen := make(map[string]struct{}, len(f.Rooms))
	for i := range f.Rooms {
		r := &f.Rooms[i]
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, fmt.Errorf("rooms[%d]: name is required", i)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("rooms[%d]: duplicate room name %q", i, r.Name)
		}
		seen[r.Name] = struct{}{}

		if len(r.Participants) == 0 {
			return nil, fmt.Errorf("room %q: at least one participant is required", r.Name)
		}
		for j := range r.Participants {
			p := &r.Participants[j]
			if strings.TrimSpace(p.DisplayName) == "" {
				return nil, fmt.Errorf("room %q participants[%d]: display_name is required", r.Name, j)
			}
			if p.Aggressiveness < 0 || p.Aggressiveness > types.MaxAggressiveness {
				return nil, fmt.Errorf("room %q participant %q: aggressiveness must be within 1..%d",
					r.Name, p.DisplayName, types.MaxAggressiveness)
			}
			p.ID = 0
		}

		// 由存储分配 ID，状态与会话从初始值开始
		r.ID = 0
		r.Status = ""
		r.CurrentRounds = 0
		r.SessionID = 0
		r.ApplyDefaults()
	}
	return f.Rooms, nil
}

// seedRooms 创建尚不存在的房间（按名称判重），返回新建数量
func seedRooms(ctx context.Context, store persistence.RoomStore, rooms []types.Room, logger *zap.Logger) (int, error) {
	existing, err := store.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}
	names := make(map[string]uint, len(existing))
	for _, r := range existing {
		names[r.Name] = r.ID
	}

	created := 0
	for i := range rooms {
		room := &rooms[i]
		if id, ok := names[room.Name]; ok {
			logger.Info("room exists, skipping", zap.String("name", room.Name), zap.Uint("room_id", id))
			continue
		}
		if err := store.CreateRoom(ctx, room); err != nil {
			return created, fmt.Errorf("create room %q: %w", room.Name, err)
		}
		created++
		logger.Info("room seeded",
			zap.String("name", room.Name),
			zap.Uint("room_id", room.ID),
			zap.Int("participants", len(room.Participants)),
			zap.String("mode", string(room.Mode)),
		)
	}
	return created, nil
}
