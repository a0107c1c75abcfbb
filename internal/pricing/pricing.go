package pricing

import (
	"fmt"
	"sort"

	"github.com/pikaboard/pikausage/internal/model"
)

// Table is a read-only pricing table keyed by canonical model key
type Table struct {
	entries  map[string]model.PricingEntry
	fallback model.PricingEntry
	top      model.PricingEntry
	empty    bool
}

// Embedded returns the built-in pricing table (USD per million tokens)
func Embedded() map[string]model.PricingEntry {
	return map[string]model.PricingEntry{
		KeyOpus: {
			Name:       "Claude Opus",
			Input:      15.0,
			Output:     75.0,
			CacheRead:  1.5,
			CacheWrite: 18.75,
		},
		KeySonnet: {
			Name:       "Claude Sonnet",
			Input:      3.0,
			Output:     15.0,
			CacheRead:  0.3,
			CacheWrite: 3.75,
		},
		KeyHaiku: {
			Name:       "Claude Haiku",
			Input:      1.0,
			Output:     5.0,
			CacheRead:  0.1,
			CacheWrite: 1.25,
		},
		KeyKimi: {
			Name:      "Kimi K2",
			Input:     0.6,
			Output:    2.5,
			CacheRead: 0.15,
		},
		KeyGemini: {
			Name:      "Gemini Pro",
			Input:     1.25,
			Output:    10.0,
			CacheRead: 0.31,
		},
		KeyDeepSeek: {
			Name:      "DeepSeek",
			Input:     0.28,
			Output:    0.42,
			CacheRead: 0.028,
		},
		KeyGPT: {
			Name:      "GPT",
			Input:     1.25,
			Output:    10.0,
			CacheRead: 0.125,
		},
	}
}

// WithOverrides returns base with every entry in overrides replacing or adding to it
func WithOverrides(base, overrides map[string]model.PricingEntry) map[string]model.PricingEntry {
	merged := make(map[string]model.PricingEntry, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// NewTable builds a table from entries. fallback names the entry used to price
// events whose model is unknown; when empty, the most expensive entry is used.
func NewTable(entries map[string]model.PricingEntry, fallback string) (*Table, error) {
	t := &Table{
		entries: make(map[string]model.PricingEntry, len(entries)),
		empty:   len(entries) == 0,
	}

	keys := make([]string, 0, len(entries))
	for key, e := range entries {
		if e.Input < 0 || e.Output < 0 || e.CacheRead < 0 || e.CacheWrite < 0 {
			return nil, fmt.Errorf("pricing for %q has a negative rate", key)
		}
		e.Key = key
		if e.Name == "" {
			e.Name = key
		}
		t.entries[key] = e
		keys = append(keys, key)
	}

	// Sorted so ties on the most expensive rate resolve the same way every run
	sort.Strings(keys)
	for _, key := range keys {
		e := t.entries[key]
		if t.top.Key == "" || e.Input+e.Output > t.top.Input+t.top.Output {
			t.top = e
		}
	}

	t.fallback = t.top
	if fallback != "" {
		e, ok := t.entries[fallback]
		if !ok {
			return nil, fmt.Errorf("pricing fallback %q is not in the pricing table", fallback)
		}
		t.fallback = e
	}

	return t, nil
}

// Entry returns the pricing for a canonical key
func (t *Table) Entry(key string) (model.PricingEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Entries returns a copy of the table
func (t *Table) Entries() map[string]model.PricingEntry {
	out := make(map[string]model.PricingEntry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Name returns the display name for a key, or the key itself when unpriced
func (t *Table) Name(key string) string {
	if e, ok := t.entries[key]; ok {
		return e.Name
	}
	return key
}

// MostExpensive returns the entry with the highest input+output rate
func (t *Table) MostExpensive() (model.PricingEntry, bool) {
	return t.top, !t.empty
}

// CostOf returns the cost of an event resolved to key.
//
// A cost carried by the event itself is trusted as-is. Otherwise the cost is
// derived from token counts; cache tokens use the entry's cache rates when it
// has them and the input rate otherwise. The boolean is false when no price
// could be found, in which case the cost is zero but the tokens still count.
func (t *Table) CostOf(key string, ev model.UsageEvent) (model.CostBreakdown, bool) {
	if ev.Cost != nil {
		return *ev.Cost, true
	}

	entry, ok := t.entries[key]
	if !ok && ev.Model == model.UnknownModel && !t.empty {
		entry, ok = t.fallback, true
	}
	if !ok {
		return model.CostBreakdown{}, false
	}

	cacheRead := entry.CacheRead
	if cacheRead == 0 {
		cacheRead = entry.Input
	}
	cacheWrite := entry.CacheWrite
	if cacheWrite == 0 {
		cacheWrite = entry.Input
	}

	cost := model.CostBreakdown{
		Input:      perMillion(ev.Tokens.Input, entry.Input),
		Output:     perMillion(ev.Tokens.Output, entry.Output),
		CacheRead:  perMillion(ev.Tokens.CacheRead, cacheRead),
		CacheWrite: perMillion(ev.Tokens.CacheWrite, cacheWrite),
	}
	cost.Total = cost.Input + cost.Output + cost.CacheRead + cost.CacheWrite

	return cost, true
}

// Savings compares actual cost with the cost of the same tokens billed entirely at
// the most expensive model: output tokens at its output rate, every other token at
// its input rate. tokens and outputTokens must come from the same window as actual.
func (t *Table) Savings(tokens, outputTokens int64, actual float64) model.Savings {
	if t.empty {
		return model.Savings{}
	}

	other := tokens - outputTokens
	if other < 0 {
		other = 0
	}
	baseline := perMillion(other, t.top.Input) + perMillion(outputTokens, t.top.Output)

	s := model.Savings{Baseline: baseline}
	if baseline > actual {
		s.Amount = baseline - actual
	}
	if actual > 0 && baseline > 0 {
		s.Percentage = min(max(100*s.Amount/baseline, 0), 100)
	}

	return s
}

func perMillion(tokens int64, rate float64) float64 {
	return float64(tokens) / 1e6 * rate
}
