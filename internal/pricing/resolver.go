package pricing

import "strings"

// Canonical model keys. Pricing tables and report buckets are keyed by these.
const (
	KeyOpus     = "opus"
	KeySonnet   = "sonnet"
	KeyHaiku    = "haiku"
	KeyKimi     = "kimi"
	KeyGemini   = "gemini"
	KeyDeepSeek = "deepseek"
	KeyGPT      = "gpt"
	KeyOther    = "other"
)

// Rule maps a case-insensitive substring to a canonical key
type Rule struct {
	Pattern string
	Key     string
}

// Rules is the ordered resolution table. The first matching rule wins, so more
// specific patterns must come before broader ones.
var Rules = []Rule{
	{Pattern: "opus", Key: KeyOpus},
	{Pattern: "sonnet", Key: KeySonnet},
	{Pattern: "haiku", Key: KeyHaiku},
	{Pattern: "kimi", Key: KeyKimi},
	{Pattern: "moonshot", Key: KeyKimi},
	{Pattern: "gemini", Key: KeyGemini},
	{Pattern: "deepseek", Key: KeyDeepSeek},
	{Pattern: "codex", Key: KeyGPT},
	{Pattern: "gpt", Key: KeyGPT},
	{Pattern: "openai", Key: KeyGPT},
}

// Resolve maps a raw model and provider identifier to a canonical key.
// The model is matched first, then the provider; anything else is "other".
func Resolve(rawModel, rawProvider string) string {
	if key, ok := match(rawModel); ok {
		return key
	}
	if key, ok := match(rawProvider); ok {
		return key
	}
	return KeyOther
}

func match(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(s)
	for _, r := range Rules {
		if strings.Contains(s, r.Pattern) {
			return r.Key, true
		}
	}
	return "", false
}
