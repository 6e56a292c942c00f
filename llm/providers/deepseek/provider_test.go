package deepseek

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/providers"
)

func TestDeepSeekProvider_Endpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"id":"d1","model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"你好"}}]}`)
	}))
	t.Cleanup(server.Close)

	cfg := providers.DeepSeekConfig{}
	cfg.APIKey = "sk-ds"
	cfg.BaseURL = server.URL
	p := NewDeepSeekProvider(cfg, nil)

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "你好", resp.FirstContent())
	assert.Equal(t, "deepseek", resp.Provider)
}

func TestDeepSeekProvider_DefaultBaseURL(t *testing.T) {
	p := NewDeepSeekProvider(providers.DeepSeekConfig{}, nil)
	assert.Equal(t, "https://api.deepseek.com", p.Cfg.BaseURL)
	assert.Equal(t, "deepseek-chat", p.Cfg.FallbackModel)
}
