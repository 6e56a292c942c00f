package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
}

// 每条消息与整段对话的固定开销
const (
	perMessageOverhead = 4
	conversationEnd    = 3
)

// 全局分词器注册表.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer 为给定的模型名称注册分词器.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer 返回为给定模型注册的分词器。
// 精确匹配失败时取最长的前缀匹配(如 "gpt-4o" 匹配 "gpt-4o-2024-08-06").
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}

	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetTokenizerOrEstimator 返回该模型的注册分词器,
// 如果没有登记,则回到估算器。
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return WithFallback(t, NewEstimatorTokenizer(model, t.MaxTokens()))
}

// fallbackTokenizer 主分词器失败时（例如编码表无法加载）改用备用分词器.
type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

// WithFallback 包装主分词器，计数出错时退回 fallback.
func WithFallback(primary, fallback Tokenizer) Tokenizer {
	return &fallbackTokenizer{primary: primary, fallback: fallback}
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) CountMessages(messages []Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.fallback.CountMessages(messages)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

func (f *fallbackTokenizer) Name() string { return f.primary.Name() }

// FitSuffix 返回在 budget 内能保留的最长后缀的起始下标.
// fixed 为必须保留的前置消息（如系统指令）所占 token.
// 至少保留最后一条消息，budget <= 0 表示不限制。
func FitSuffix(t Tokenizer, messages []Message, fixed, budget int) (int, error) {
	if budget <= 0 || len(messages) == 0 {
		return 0, nil
	}
	used := fixed + conversationEnd
	for i := len(messages) - 1; i >= 0; i-- {
		n, err := t.CountTokens(messages[i].Content)
		if err != nil {
			return 0, err
		}
		used += n + perMessageOverhead
		if used > budget && i < len(messages)-1 {
			return i + 1, nil
		}
	}
	return 0, nil
}
