package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikaboard/pikausage/internal/model"
)

var (
	wide   = TableOptions{Width: 160}
	narrow = TableOptions{Width: 80}
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "$0.16", FormatCost(0.159387))
	assert.Equal(t, "$1234.50", FormatCost(1234.5))
	assert.Equal(t, "$0.00", FormatCost(0))
	assert.Equal(t, "2.5%", FormatPercent(2.5155))
}

func TestCompact(t *testing.T) {
	assert.False(t, wide.compact())
	assert.True(t, narrow.compact())
	assert.True(t, TableOptions{ForceCompact: true, Width: 200}.compact())
}

func TestPrintSummary(t *testing.T) {
	report := &model.UsageReport{
		Today:     model.Bucket{Cost: 0.159387, Tokens: 2300},
		ThisWeek:  model.Bucket{Cost: 1.5, Tokens: 120000},
		ThisMonth: model.Bucket{Cost: 12.25, Tokens: 1500000},
		Total:     model.Total{Cost: 40, Tokens: 9000000, Sessions: 17},
		Savings:   model.Savings{Amount: 60, Percentage: 60, Baseline: 100},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, report, wide)
	out := buf.String()

	for _, want := range []string{"Today", "This week", "This month", "1,500,000", "$12.25", "9,000,000", "$40.00", "Sessions: 17"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "Savings:  $60.00 (60.0%) against $100.00 on the most expensive model")

	buf.Reset()
	PrintSummary(&buf, report, narrow)
	assert.Contains(t, buf.String(), "Savings:  $60.00 (60.0%)\n")
}

func TestPrintDaily(t *testing.T) {
	daily := []model.DailyEntry{
		{Date: "2026-02-14", ByModel: map[string]model.ModelTotal{}},
		{Date: "2026-02-15", Cost: 0.159387, Tokens: 2300, ByModel: map[string]model.ModelTotal{
			"opus":  {Cost: 0.15, Tokens: 2200, InputTokens: 1000, OutputTokens: 200},
			"haiku": {Cost: 0.009387, Tokens: 100, InputTokens: 60, OutputTokens: 40},
		}},
	}

	var buf bytes.Buffer
	PrintDaily(&buf, daily, wide)
	lines := strings.Split(buf.String(), "\n")

	var day string
	for _, l := range lines {
		if strings.HasPrefix(l, "2026-02-15") {
			day = l
		}
	}
	require.NotEmpty(t, day)
	assert.Contains(t, day, "1,060")
	assert.Contains(t, day, "240")
	assert.Contains(t, day, "$0.16")
	assert.Contains(t, day, "haiku,opus")

	buf.Reset()
	PrintDaily(&buf, daily, narrow)
	assert.Contains(t, buf.String(), "Compact mode")
	assert.NotContains(t, buf.String(), "haiku,opus")
}

func TestPrintModels(t *testing.T) {
	byModel := map[string]model.ModelTotal{
		"other": {Cost: 0, Tokens: 50, Name: "other"},
		"opus":  {Cost: 0.15, Tokens: 2200, InputTokens: 1000, OutputTokens: 200, Name: "Claude Opus"},
		"kimi":  {Cost: 0.02, Tokens: 900, Name: "Kimi K2"},
	}
	pricing := map[string]model.PricingEntry{
		"opus": {Name: "Claude Opus", Input: 15, Output: 75},
		"kimi": {Name: "Kimi K2", Input: 0.6, Output: 2.5},
	}

	var buf bytes.Buffer
	PrintModels(&buf, byModel, pricing, wide)
	out := buf.String()

	opus := strings.Index(out, "Claude Opus")
	kimi := strings.Index(out, "Kimi K2")
	other := strings.Index(out, "other")
	require.True(t, opus >= 0 && kimi >= 0 && other >= 0)
	assert.Less(t, opus, kimi)
	assert.Less(t, kimi, other)
	assert.Contains(t, out, "$15/$75")
	assert.Contains(t, out, "$0.6/$2.5")
	assert.Contains(t, out, "unpriced")
	assert.Contains(t, out, "Rates are USD per million tokens.")

	buf.Reset()
	PrintModels(&buf, nil, pricing, wide)
	assert.Equal(t, "No usage data found.\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"sessions": 3}))
	assert.Equal(t, "{\n  \"sessions\": 3\n}\n", buf.String())
}

func TestPrintDiagnostics(t *testing.T) {
	diag := &model.ScanDiagnostics{
		ID:        "scan-1",
		Duration:  1234567 * time.Microsecond,
		Files:     12,
		Sessions:  11,
		Events:    3400,
		Malformed: 2,
		NonUsage:  900,
		Unpriced:  map[string]int64{"other": 1500, "mistral": 20},
		Errors:    []string{"read session file /x.jsonl: permission denied"},
	}

	var buf bytes.Buffer
	PrintDiagnostics(&buf, diag)
	out := buf.String()

	assert.Contains(t, out, "Scan:       scan-1")
	assert.Contains(t, out, "Duration:   1.235s")
	assert.Contains(t, out, "Files:      12 (11 sessions)")
	assert.Contains(t, out, "Events:     3,400")
	assert.Contains(t, out, "Skipped:    2 malformed, 900 without usage")
	assert.Less(t, strings.Index(out, "mistral"), strings.Index(out, "other"))
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "permission denied")
	assert.NotContains(t, out, "Started:")
}
