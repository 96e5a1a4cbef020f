package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/llm"
)

func TestOllamaBuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		baseURL string
		want    string
	}{
		{"", "http://localhost:11434/v1/chat/completions"},
		{"http://myserver:8080/v1", "http://myserver:8080/v1/chat/completions"},
		{"http://localhost:11434/v1/", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.BuildURL(tt.baseURL), "base %q", tt.baseURL)
	}
}

func TestOllamaBuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}
	temp := 0.7

	body, err := p.BuildRequestBody("qwen2.5:14b", []llm.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
	}, &temp, 2048)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "qwen2.5:14b", req["model"])
	assert.Equal(t, 0.7, req["temperature"])
	assert.Equal(t, float64(2048), req["max_tokens"])

	// The chat completions shape keeps the system prompt as a message.
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOllamaBuildRequestBodyOmitsUnsetParams(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("m", []llm.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"max_tokens"`)
}

func TestOllamaBuildRequestBodyKeepsZeroTemperature(t *testing.T) {
	p := &OllamaProvider{}
	temp := 0.0

	body, err := p.BuildRequestBody("m", []llm.Message{{Role: "user", Content: "hi"}}, &temp, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"temperature":0`)
}

func TestOllamaParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"model": "qwen2.5:14b",
		"choices": [{
			"message": {"role": "assistant", "content": "Hello! How can I help?"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16}
	}`), "m")
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help?", resp.Content)
	assert.Equal(t, "qwen2.5:14b", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 16, resp.TokensUsed)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
}

func TestOllamaParseResponseNoChoices(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"choices": []}`), "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
