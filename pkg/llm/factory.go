package llm

import (
	"fmt"

	"lumina/pkg/config"
)

// New constructs a Client for one configured provider backend.
func New(mc config.ModelConfig) (Client, error) {
	switch mc.Provider {
	case config.ProviderAnthropic:
		if mc.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an api key")
		}
		return NewClaudeClient(mc.APIKey, mc.Model, mc.BaseURL), nil
	case config.ProviderOpenAI:
		if mc.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		return NewOpenAIClient(mc.APIKey, mc.Model, mc.BaseURL), nil
	case config.ProviderOllama:
		host := mc.BaseURL
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaClient(host, mc.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}
