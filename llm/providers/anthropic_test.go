package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/llm"
)

func TestAnthropicBuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL(""))
	assert.Equal(t, "https://custom.api.com/v1/messages", p.BuildURL("https://custom.api.com"))
	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL("https://api.anthropic.com/"))
}

func TestAnthropicBuildRequestBodyHoistsSystemPrompt(t *testing.T) {
	p := &AnthropicProvider{}
	temp := 0.7

	body, err := p.BuildRequestBody("claude-3-opus", []llm.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "How are you?"},
	}, &temp, 2048)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "You are helpful.", req["system"])
	assert.Equal(t, "claude-3-opus", req["model"])
	assert.Equal(t, float64(2048), req["max_tokens"])

	// No system role remains in the messages array.
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.NotEqual(t, "system", m.(map[string]any)["role"])
	}
}

func TestAnthropicBuildRequestBodyDefaultMaxTokens(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-3-opus", []llm.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"max_tokens":4096`)
	assert.NotContains(t, string(body), `"temperature"`)
}

func TestAnthropicBuildRequestBodyKeepsZeroTemperature(t *testing.T) {
	p := &AnthropicProvider{}
	temp := 0.0

	body, err := p.BuildRequestBody("claude-3-opus", []llm.Message{{Role: "user", Content: "hi"}}, &temp, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"temperature":0`)
}

func TestAnthropicParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"content": [{"type": "text", "text": "Hello! How can I help you?"}],
		"model": "claude-3-opus-20240229",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 15, "output_tokens": 8}
	}`), "claude-3-opus")
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help you?", resp.Content)
	assert.Equal(t, "claude-3-opus-20240229", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 23, resp.TokensUsed)
	assert.Equal(t, 15, resp.Usage.PromptTokens)
	assert.Equal(t, 8, resp.Usage.CompletionTokens)
}

func TestAnthropicParseResponseConcatenatesTextBlocks(t *testing.T) {
	p := &AnthropicProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"content": [
			{"type": "text", "text": "First part. "},
			{"type": "text", "text": "Second part."}
		],
		"model": "claude-3-opus",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 20}
	}`), "claude-3-opus")
	require.NoError(t, err)
	assert.Equal(t, "First part. Second part.", resp.Content)
}
