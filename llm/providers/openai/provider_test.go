package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/providers"
)

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(providers.OpenAIConfig{}, zap.NewNop())
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultBaseURL, p.Cfg.BaseURL)
	assert.Equal(t, defaultModel, p.Cfg.FallbackModel)
}

func TestOpenAIProvider_OrganizationHeader(t *testing.T) {
	var gotOrg, gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = r.Header.Get("OpenAI-Organization")
		gotAuth = r.Header.Get("Authorization")
		var body providers.OpenAICompatRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			Choices: []providers.OpenAICompatChoice{{Message: providers.OpenAICompatMessage{Content: "hi"}}},
		})
	}))
	t.Cleanup(server.Close)

	cfg := providers.OpenAIConfig{Organization: "org-1"}
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL
	p := NewOpenAIProvider(cfg, nil)

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.FirstContent())
	assert.Equal(t, "org-1", gotOrg)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, defaultModel, gotModel)
}
