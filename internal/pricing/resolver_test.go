package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		model    string
		provider string
		want     string
	}{
		{"claude-opus-4-6", "anthropic", KeyOpus},
		{"anthropic/claude-opus-4.5", "", KeyOpus},
		{"Claude-Sonnet-4-5-20250929", "", KeySonnet},
		{"claude-haiku-4-5", "anthropic", KeyHaiku},
		{"kimi-k2.5", "moonshot", KeyKimi},
		{"k2-turbo", "moonshot", KeyKimi},
		{"gemini-2.5-pro", "google", KeyGemini},
		{"deepseek-chat", "", KeyDeepSeek},
		{"gpt-5-codex", "openai", KeyGPT},
		{"o3", "openai", KeyGPT},
		{"unknown", "anthropic", KeyOther},
		{"llama-3.1-70b", "ollama", KeyOther},
		{"", "", KeyOther},
	}

	for _, tt := range tests {
		t.Run(tt.model+"/"+tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.model, tt.provider))
		})
	}
}

func TestResolveModelWinsOverProvider(t *testing.T) {
	// An OpenAI-compatible gateway serving a Claude model
	assert.Equal(t, KeySonnet, Resolve("claude-sonnet-4-5", "openai"))
}

func TestResolveFirstRuleWins(t *testing.T) {
	assert.Equal(t, KeyOpus, Resolve("opus-vs-sonnet-eval", ""))
}

func TestRulesCoverPricedKeys(t *testing.T) {
	keys := make(map[string]bool)
	for _, r := range Rules {
		keys[r.Key] = true
	}
	for key := range Embedded() {
		assert.True(t, keys[key], "no rule resolves to %q", key)
	}
}
