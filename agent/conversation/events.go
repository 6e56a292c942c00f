package conversation

import (
	"context"
	"time"

	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/types"
)

// EventSink 接收房间事件；实现应尽快返回，发布失败不影响对话进行.
type EventSink interface {
	Publish(ctx context.Context, roomID uint, ev types.Event) error
}

// BackendResolver 将参与者的后端描述解析为 ModelBackend.
type BackendResolver interface {
	Resolve(ctx context.Context, spec types.BackendSpec) (llm.ModelBackend, error)
}

// modelNamer 由能给出实际模型名称的解析器实现，用于 Token 计数
type modelNamer interface {
	Model(spec types.BackendSpec) string
}

// TurnRecorder 记录每个轮次的结果与耗时.
type TurnRecorder interface {
	RecordTurn(provider, outcome string, duration time.Duration)
}

// 轮次结果
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeAborted = "aborted"
	OutcomePartial = "partial"
)

// FailurePolicy 决定单轮生成失败后的处理方式.
type FailurePolicy string

const (
	// FailureSkip 记录日志后继续下一位参与者
	FailureSkip FailurePolicy = "skip"
	// FailureAbort 发布错误通知并将房间置为 idle
	FailureAbort FailurePolicy = "abort"
)

// Options 编排器运行参数
type Options struct {
	ContextWindow      int
	ContextTokenBudget int
	Pacing             time.Duration
	FailurePolicy      FailurePolicy
	StreamTurns        bool
	WordLimit          int
	StartTemplates     map[types.Mode]string
	EndTemplate        string
	ErrorTemplate      string
}

// DefaultOptions 返回默认运行参数
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultChatConfig())
}

// OptionsFromConfig 由 chat 配置构造运行参数
func OptionsFromConfig(c config.ChatConfig) Options {
	return Options{
		ContextWindow:      c.ContextWindow,
		ContextTokenBudget: c.ContextTokenBudget,
		Pacing:             c.Pacing,
		FailurePolicy:      FailurePolicy(c.FailurePolicy),
		StreamTurns:        c.StreamTurns,
		WordLimit:          c.WordLimit,
		StartTemplates: map[types.Mode]string{
			types.ModeDebate:    c.DebateStartTemplate,
			types.ModeGroupChat: c.GroupChatStartTemplate,
		},
		EndTemplate:   c.EndTemplate,
		ErrorTemplate: c.ErrorTemplate,
	}
}

// startTemplate 未知模式回退到辩论模板
func (o Options) startTemplate(mode types.Mode) string {
	if tpl, ok := o.StartTemplates[mode.Normalize()]; ok && tpl != "" {
		return tpl
	}
	return o.StartTemplates[types.ModeDebate]
}
