package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikaboard/pikausage/internal/model"
)

func newTable(t *testing.T, entries map[string]model.PricingEntry, fallback string) *Table {
	t.Helper()
	table, err := NewTable(entries, fallback)
	require.NoError(t, err)
	return table
}

func TestCostOfTrustsPrecomputedCost(t *testing.T) {
	table := newTable(t, Embedded(), "")
	ev := model.UsageEvent{
		Model:  "claude-opus-4-6",
		Tokens: model.TokenCounts{Input: 10, Output: 287, Total: 297},
		Cost:   &model.CostBreakdown{Total: 0.019387},
	}

	cost, ok := table.CostOf(KeyOpus, ev)
	assert.True(t, ok)
	assert.Equal(t, 0.019387, cost.Total)
}

func TestCostOfDerivesFromTokens(t *testing.T) {
	table := newTable(t, Embedded(), "")
	ev := model.UsageEvent{
		Model:  "claude-sonnet-4-5",
		Tokens: model.TokenCounts{Input: 1000, Output: 500, CacheRead: 2000, CacheWrite: 100},
	}

	cost, ok := table.CostOf(KeySonnet, ev)
	require.True(t, ok)
	assert.InDelta(t, 0.003, cost.Input, 1e-12)
	assert.InDelta(t, 0.0075, cost.Output, 1e-12)
	assert.InDelta(t, 0.0006, cost.CacheRead, 1e-12)
	assert.InDelta(t, 0.000375, cost.CacheWrite, 1e-12)
	assert.InDelta(t, 0.011475, cost.Total, 1e-12)
}

func TestCostOfCacheFallsBackToInputRate(t *testing.T) {
	table := newTable(t, map[string]model.PricingEntry{
		KeyKimi: {Input: 0.6, Output: 2.5},
	}, "")
	ev := model.UsageEvent{
		Model:  "kimi-k2.5",
		Tokens: model.TokenCounts{CacheRead: 1_000_000, CacheWrite: 1_000_000},
	}

	cost, ok := table.CostOf(KeyKimi, ev)
	require.True(t, ok)
	assert.InDelta(t, 0.6, cost.CacheRead, 1e-12)
	assert.InDelta(t, 0.6, cost.CacheWrite, 1e-12)
	assert.InDelta(t, 1.2, cost.Total, 1e-12)
}

func TestCostOfUnpriced(t *testing.T) {
	table := newTable(t, Embedded(), "")
	ev := model.UsageEvent{
		Model:  "llama-3.1-70b",
		Tokens: model.TokenCounts{Input: 5000, Total: 5000},
	}

	cost, ok := table.CostOf(KeyOther, ev)
	assert.False(t, ok)
	assert.Equal(t, model.CostBreakdown{}, cost)
}

func TestCostOfUnknownModelUsesMostExpensive(t *testing.T) {
	table := newTable(t, map[string]model.PricingEntry{
		KeyOpus: {Name: "Claude Opus", Input: 15, Output: 75},
	}, "")
	ev := model.UsageEvent{
		Model:  model.UnknownModel,
		Tokens: model.TokenCounts{Input: 1_000_000, Total: 1_000_000},
	}

	cost, ok := table.CostOf(Resolve(ev.Model, ev.Provider), ev)
	require.True(t, ok)
	assert.Equal(t, 15.0, cost.Total)
}

func TestCostOfUnknownModelUsesConfiguredFallback(t *testing.T) {
	table := newTable(t, Embedded(), KeySonnet)
	ev := model.UsageEvent{
		Model:  model.UnknownModel,
		Tokens: model.TokenCounts{Input: 1_000_000},
	}

	cost, ok := table.CostOf(KeyOther, ev)
	require.True(t, ok)
	assert.InDelta(t, 3.0, cost.Total, 1e-12)
}

func TestCostOfEmptyTable(t *testing.T) {
	table := newTable(t, nil, "")
	_, ok := table.CostOf(KeyOther, model.UsageEvent{Model: model.UnknownModel})
	assert.False(t, ok)

	_, ok = table.MostExpensive()
	assert.False(t, ok)
	assert.Equal(t, model.Savings{}, table.Savings(100, 50, 1))
}

func TestNewTableRejectsBadInput(t *testing.T) {
	_, err := NewTable(map[string]model.PricingEntry{KeyGPT: {Input: -1}}, "")
	assert.Error(t, err)

	_, err = NewTable(Embedded(), "nope")
	assert.Error(t, err)
}

func TestNewTableFillsKeyAndName(t *testing.T) {
	table := newTable(t, map[string]model.PricingEntry{"mistral": {Input: 2, Output: 6}}, "")

	entry, ok := table.Entry("mistral")
	require.True(t, ok)
	assert.Equal(t, "mistral", entry.Key)
	assert.Equal(t, "mistral", entry.Name)
	assert.Equal(t, "mistral", table.Name("mistral"))
	assert.Equal(t, KeyOther, table.Name(KeyOther))
}

func TestMostExpensive(t *testing.T) {
	table := newTable(t, Embedded(), "")
	top, ok := table.MostExpensive()
	require.True(t, ok)
	assert.Equal(t, KeyOpus, top.Key)
}

func TestMostExpensiveTieIsDeterministic(t *testing.T) {
	entries := map[string]model.PricingEntry{
		"b": {Input: 1, Output: 2},
		"a": {Input: 2, Output: 1},
		"c": {Input: 1.5, Output: 1.5},
	}
	for range 20 {
		top, _ := newTable(t, entries, "").MostExpensive()
		assert.Equal(t, "a", top.Key)
	}
}

func TestWithOverrides(t *testing.T) {
	merged := WithOverrides(Embedded(), map[string]model.PricingEntry{
		KeyOpus:   {Name: "Opus (discounted)", Input: 5, Output: 25},
		"mistral": {Input: 2, Output: 6},
	})

	assert.Equal(t, 5.0, merged[KeyOpus].Input)
	assert.Contains(t, merged, "mistral")
	assert.Contains(t, merged, KeySonnet)
	assert.Equal(t, 15.0, Embedded()[KeyOpus].Input)
}

func TestSavings(t *testing.T) {
	table := newTable(t, map[string]model.PricingEntry{
		KeyOpus:   {Input: 15, Output: 75},
		KeySonnet: {Input: 3, Output: 15},
	}, "")

	// 1M input + 1M output on sonnet costs 18; on opus it would cost 90
	s := table.Savings(2_000_000, 1_000_000, 18)
	assert.InDelta(t, 90.0, s.Baseline, 1e-9)
	assert.InDelta(t, 72.0, s.Amount, 1e-9)
	assert.InDelta(t, 80.0, s.Percentage, 1e-9)
}

func TestSavingsBounds(t *testing.T) {
	table := newTable(t, Embedded(), "")

	zero := table.Savings(1000, 100, 0)
	assert.Equal(t, 0.0, zero.Percentage)
	assert.GreaterOrEqual(t, zero.Amount, 0.0)

	// Actual cost above the baseline, e.g. from a precomputed cost
	over := table.Savings(1000, 100, 50)
	assert.Equal(t, 0.0, over.Amount)
	assert.Equal(t, 0.0, over.Percentage)

	for _, actual := range []float64{0.0001, 0.01, 0.02, 1} {
		s := table.Savings(1000, 100, actual)
		assert.GreaterOrEqual(t, s.Percentage, 0.0)
		assert.LessOrEqual(t, s.Percentage, 100.0)
	}
}
