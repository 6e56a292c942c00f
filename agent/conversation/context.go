package conversation

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/tokenizer"
	"github.com/BaSui01/agentroom/types"
)

// DefaultContextWindow 上下文窗口默认消息条数
const DefaultContextWindow = 20

// SystemTag 标注旁白消息，使模型区分系统叙述与他人发言
const SystemTag = "[System]"

// fallbackSender 未署名的用户消息
const fallbackSender = "User"

// ContextBuilder 从单一共享记录重建某位参与者第一人称视角的对话历史.
type ContextBuilder struct {
	transcripts persistence.TranscriptStore
	window      int
	tokenBudget int
	tokenizer   func(model string) tokenizer.Tokenizer
}

// NewContextBuilder 创建上下文构建器。window <= 0 时使用默认窗口，
// tokenBudget <= 0 表示只按条数限制。
func NewContextBuilder(transcripts persistence.TranscriptStore, window, tokenBudget int) *ContextBuilder {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &ContextBuilder{
		transcripts: transcripts,
		window:      window,
		tokenBudget: tokenBudget,
		tokenizer:   tokenizer.GetTokenizerOrEstimator,
	}
}

// Build 取当前会话最近 window 条消息并按参与者视角改写角色.
func (b *ContextBuilder) Build(ctx context.Context, room *types.Room, p *types.Participant) ([]llm.Message, error) {
	msgs, err := b.transcripts.Recent(ctx, room.ID, room.SessionID, b.window)
	if err != nil {
		return nil, fmt.Errorf("load context for room %d: %w", room.ID, err)
	}

	out := make([]llm.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, Attribute(&msgs[i], p))
	}
	return out, nil
}

// Attribute 计算单条记录对 p 而言的角色与内容.
func Attribute(m *types.Message, p *types.Participant) llm.Message {
	switch {
	case !m.IsSystem() && m.SenderName != "" && m.SenderName == p.DisplayName:
		return llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	case m.IsSystem():
		return llm.Message{Role: llm.RoleUser, Content: SystemTag + " " + m.Content}
	default:
		name := m.SenderName
		if name == "" {
			name = fallbackSender
		}
		return llm.Message{Role: llm.RoleUser, Content: "[" + name + "] " + m.Content}
	}
}

// FitBudget 按 Token 预算从最旧一端裁剪历史，至少保留最新一条.
func (b *ContextBuilder) FitBudget(model, instructions string, history []llm.Message) []llm.Message {
	if b.tokenBudget <= 0 || len(history) == 0 {
		return history
	}

	tk := b.tokenizer(model)
	fixed, err := tk.CountTokens(instructions)
	if err != nil {
		return history
	}
	msgs := make([]tokenizer.Message, len(history))
	for i, m := range history {
		msgs[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	start, err := tokenizer.FitSuffix(tk, msgs, fixed, b.tokenBudget)
	if err != nil {
		return history
	}
	return history[start:]
}
