// =============================================================================
// 📦 测试数据工厂 - 房间测试数据
// =============================================================================
// 提供预定义的房间、参与者与对话记录，用于测试
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/agentroom/types"
)

// =============================================================================
// 🎭 参与者工厂
// =============================================================================

// Participant 返回使用 mock 后端的参与者
func Participant(name string) types.Participant {
	return types.Participant{
		DisplayName: name,
		Backend: types.BackendSpec{
			Provider:    "mock",
			Model:       "mock-model",
			Temperature: 0.7,
		},
	}
}

// DetailedParticipant 返回属性齐全的参与者
func DetailedParticipant() types.Participant {
	return types.Participant{
		DisplayName:    "Alice",
		PersonaID:      7,
		Gender:         "女",
		Age:            32,
		Profession:     "律师",
		Personality:    "冷静、善于抓逻辑漏洞",
		Aggressiveness: 8,
		SystemPrompt:   "说话喜欢引用判例",
		Backend: types.BackendSpec{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.9,
		},
	}
}

// Participants 返回 n 位依次命名为 P1..Pn 的参与者
func Participants(n int) []types.Participant {
	out := make([]types.Participant, n)
	for i := range out {
		out[i] = Participant(fmt.Sprintf("P%d", i+1))
	}
	return out
}

// =============================================================================
// 🏠 房间工厂
// =============================================================================

// DebateRoom 返回 A、B、C 三人参与的辩论房间（未持久化）
func DebateRoom(maxRounds int) *types.Room {
	return &types.Room{
		Name:         "test-room",
		Topic:        "AI 是否会取代程序员",
		Mode:         types.ModeDebate,
		MaxRounds:    maxRounds,
		Participants: []types.Participant{Participant("A"), Participant("B"), Participant("C")},
	}
}

// GroupChatRoom 返回 n 位参与者的群聊房间（未持久化）
func GroupChatRoom(n, maxRounds int) *types.Room {
	return &types.Room{
		Name:         "group-room",
		Topic:        "周末去哪儿",
		Mode:         types.ModeGroupChat,
		MaxRounds:    maxRounds,
		Participants: Participants(n),
	}
}

// =============================================================================
// 💬 记录工厂
// =============================================================================

// SystemMessage 返回旁白消息
func SystemMessage(roomID uint, sessionID int, content string) *types.Message {
	return &types.Message{RoomID: roomID, SessionID: sessionID, Role: types.RoleSystem, Content: content}
}

// SpeechMessage 返回参与者发言
func SpeechMessage(roomID uint, sessionID int, sender, content string) *types.Message {
	return &types.Message{RoomID: roomID, SessionID: sessionID, Role: types.RoleAssistant, SenderName: sender, Content: content}
}

// UserMessage 返回外部用户消息
func UserMessage(roomID uint, sessionID int, sender, content string) *types.Message {
	return &types.Message{RoomID: roomID, SessionID: sessionID, Role: types.RoleUser, SenderName: sender, Content: content}
}
