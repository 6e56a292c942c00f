package conversation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentroom/types"
)

// DefaultWordLimit 单条回复的默认字数上限
const DefaultWordLimit = 50

const unspecified = "未指定"

var modeStances = map[types.Mode]string{
	types.ModeDebate:    "这是一场辩论：坚持并捍卫你的立场，直接回应并反驳其他人的观点。",
	types.ModeGroupChat: "这是一场轻松的群聊：自然地回应其他人，可以赞同、补充、调侃或引出新话题。",
}

// BuildInstructions 构建参与者的人设指令.
// 依次包含行为约束、属性表、补充设定、房间主题、模式立场与属性推断要求。
func BuildInstructions(room *types.Room, p *types.Participant, wordLimit int) string {
	if wordLimit <= 0 {
		wordLimit = DefaultWordLimit
	}

	var sb strings.Builder
	sb.WriteString("你正在参与一场多人在线对话，请完全以下面的角色身份发言。\n")
	sb.WriteString("规则：\n")
	sb.WriteString("- 回复简短、口语化，像真人聊天一样，始终保持角色设定。\n")
	fmt.Fprintf(&sb, "- 每次发言不超过 %d 字。\n", wordLimit)
	sb.WriteString("- 不要在回复开头写自己的名字或任何说话人标签。\n")
	sb.WriteString("- 其他人的发言以 \"[名字] 内容\" 的形式出现，\"[System]\" 开头的是旁白。\n\n")

	sb.WriteString("角色设定：\n")
	fmt.Fprintf(&sb, "姓名：%s\n", p.DisplayName)
	fmt.Fprintf(&sb, "性别：%s\n", orUnspecified(p.Gender))
	if p.Age > 0 {
		fmt.Fprintf(&sb, "年龄：%d\n", p.Age)
	} else {
		fmt.Fprintf(&sb, "年龄：%s\n", unspecified)
	}
	fmt.Fprintf(&sb, "职业：%s\n", orUnspecified(p.Profession))
	fmt.Fprintf(&sb, "性格：%s\n", orUnspecified(p.Personality))
	fmt.Fprintf(&sb, "攻击性：%d/10（数值越高，语气越尖锐、越愿意反驳）\n", p.EffectiveAggressiveness())

	if extra := strings.TrimSpace(p.SystemPrompt); extra != "" {
		sb.WriteString("\n补充设定：\n")
		sb.WriteString(extra)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\n讨论主题：%s\n", room.Topic)
	sb.WriteString(modeStances[room.Mode.Normalize()])
	sb.WriteString("\n\n")
	sb.WriteString("对于标记为未指定的属性，请根据性格自行推断出合理的设定并保持前后一致，不要留空，也不要提及设定缺失。")

	return sb.String()
}

func orUnspecified(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return unspecified
}

// renderTemplate 替换 {topic} 与 {error} 占位符
func renderTemplate(tpl string, vars map[string]string) string {
	for k, v := range vars {
		tpl = strings.ReplaceAll(tpl, "{"+k+"}", v)
	}
	return tpl
}
