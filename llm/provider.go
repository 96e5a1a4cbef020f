package llm

import (
	"net/http"
	"sync"
)

// Provider adapts the client to one API dialect. Implementations live
// in the providers package and self-register at init.
type Provider interface {
	// Name is the identifier endpoints select by ("ollama", "openai",
	// "anthropic").
	Name() string

	// BuildURL turns the endpoint base URL (possibly empty) into the
	// full request URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific auth and version headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody renders the request in the provider's wire
	// format. A nil temperature keeps the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse decodes the provider's response body.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providerMu sync.RWMutex
	providers  = make(map[string]Provider)
)

// RegisterProvider makes p selectable by its Name. Later registrations
// under the same name win.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers[p.Name()] = p
}

// GetProvider returns the provider registered under name, or nil.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providers[name]
}
