package llm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "openrouter").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// Provider describes an OpenAI-compatible API endpoint.
type Provider struct {
	Name   string
	APIURL string
	EnvKey string
}

// OpenAICompatibleProviders lists known endpoints that speak the OpenAI
// chat completions wire format.
var OpenAICompatibleProviders = []Provider{
	{Name: "openai", APIURL: "https://api.openai.com/v1", EnvKey: "OPENAI_API_KEY"},
	{Name: "openrouter", APIURL: "https://openrouter.ai/api/v1", EnvKey: "OPENROUTER_API_KEY"},
	{Name: "google", APIURL: "https://generativelanguage.googleapis.com/v1beta/openai", EnvKey: "GEMINI_API_KEY"},
	{Name: "deepseek", APIURL: "https://api.deepseek.com/v1", EnvKey: "DEEPSEEK_API_KEY"},
	{Name: "mistral", APIURL: "https://api.mistral.ai/v1", EnvKey: "MISTRAL_API_KEY"},
	{Name: "groq", APIURL: "https://api.groq.com/openai/v1", EnvKey: "GROQ_API_KEY"},
	{Name: "xai", APIURL: "https://api.x.ai/v1", EnvKey: "XAI_API_KEY"},
	{Name: "together", APIURL: "https://api.together.xyz/v1", EnvKey: "TOGETHER_API_KEY"},
	{Name: "fireworks", APIURL: "https://api.fireworks.ai/inference/v1", EnvKey: "FIREWORKS_API_KEY"},
	{Name: "cerebras", APIURL: "https://api.cerebras.ai/v1", EnvKey: "CEREBRAS_API_KEY"},
}

// FindProvider returns the OpenAI-compatible provider entry for name, or nil.
func FindProvider(name string) *Provider {
	for i := range OpenAICompatibleProviders {
		if OpenAICompatibleProviders[i].Name == name {
			return &OpenAICompatibleProviders[i]
		}
	}
	return nil
}
