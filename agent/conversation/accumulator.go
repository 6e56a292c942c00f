package conversation

import (
	"context"
	"strings"

	"github.com/BaSui01/agentroom/llm"
)

// Accumulate 消费流式片段并拼接为完整文本.
// onFragment 用于推送增量；它返回错误后不再推送，但仍继续累积。
// 无论序列正常结束、出错还是 ctx 取消，都返回已累积的前缀，
// 由调用方在处理错误之前先持久化。
func Accumulate(ctx context.Context, fragments <-chan llm.Fragment, onFragment func(string) error) (string, error) {
	var (
		sb        strings.Builder
		forwarded = onFragment != nil
	)
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case f, ok := <-fragments:
			if !ok {
				return sb.String(), nil
			}
			if f.Err != nil {
				return sb.String(), f.Err
			}
			if f.Text == "" {
				continue
			}
			sb.WriteString(f.Text)
			if forwarded {
				if err := onFragment(f.Text); err != nil {
					forwarded = false
				}
			}
		}
	}
}
