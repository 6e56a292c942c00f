package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/agentroom/testutil/fixtures"
	"github.com/BaSui01/agentroom/types"
)

func TestBuildInstructions_FullPersona(t *testing.T) {
	room := fixtures.DebateRoom(10)
	p := fixtures.DetailedParticipant()

	got := BuildInstructions(room, &p, 80)

	for _, want := range []string{
		"姓名：Alice",
		"性别：女",
		"年龄：32",
		"职业：律师",
		"性格：冷静、善于抓逻辑漏洞",
		"攻击性：8/10",
		"补充设定：\n说话喜欢引用判例",
		"讨论主题：" + room.Topic,
		"不超过 80 字",
		"[System]",
		modeStances[types.ModeDebate],
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "："+unspecified)
}

func TestBuildInstructions_UnspecifiedAttributes(t *testing.T) {
	room := fixtures.GroupChatRoom(2, 5)
	p := types.Participant{DisplayName: "Bob"}

	got := BuildInstructions(room, &p, 0)

	assert.Contains(t, got, "性别："+unspecified)
	assert.Contains(t, got, "年龄："+unspecified)
	assert.Contains(t, got, "职业："+unspecified)
	assert.Contains(t, got, "性格："+unspecified)
	assert.Contains(t, got, "攻击性：5/10")
	assert.Contains(t, got, "不超过 50 字")
	assert.Contains(t, got, modeStances[types.ModeGroupChat])
	assert.NotContains(t, got, "补充设定")
	assert.True(t, strings.HasSuffix(got, "也不要提及设定缺失。"))
}

func TestBuildInstructions_AggressivenessClamped(t *testing.T) {
	room := fixtures.DebateRoom(1)
	tests := []struct {
		value int
		want  string
	}{
		{value: -3, want: "攻击性：1/10"},
		{value: 0, want: "攻击性：5/10"},
		{value: 11, want: "攻击性：10/10"},
	}
	for _, tt := range tests {
		p := types.Participant{DisplayName: "X", Aggressiveness: tt.value}
		assert.Contains(t, BuildInstructions(room, &p, 0), tt.want)
	}
}

func TestBuildInstructions_UnknownModeUsesDebateStance(t *testing.T) {
	room := fixtures.DebateRoom(1)
	room.Mode = "panel"
	p := fixtures.Participant("A")
	assert.Contains(t, BuildInstructions(room, &p, 0), modeStances[types.ModeDebate])
}

func TestRenderTemplate(t *testing.T) {
	assert.Equal(t, "主题：火锅 vs 烧烤！", renderTemplate("主题：{topic}！", map[string]string{"topic": "火锅 vs 烧烤"}))
	assert.Equal(t, "错误：boom {x}", renderTemplate("错误：{error} {x}", map[string]string{"error": "boom"}))
	assert.Equal(t, "", renderTemplate("", map[string]string{"topic": "t"}))
}
