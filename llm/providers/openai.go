package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/traceline/llm"
)

// OpenAIProvider targets api.openai.com or an OpenRouter-style proxy.
// The wire format is the shared chat completions shape; only the
// default URL and auth headers differ from the ollama adapter.
type OpenAIProvider struct{}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return chatCompletionsURL(baseURL)
}

func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	// OpenRouter attribution headers, ignored by other backends.
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}

func (o *OpenAIProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return buildChatBody(model, messages, temperature, maxTokens)
}

func (o *OpenAIProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	return parseChatResponse(body)
}
