package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/pikaboard/pikausage/internal/model"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
	Width        int // zero detects the terminal width
}

func (o TableOptions) compact() bool {
	if o.ForceCompact {
		return true
	}
	width := o.Width
	if width == 0 {
		width = terminalWidth()
	}
	return width < compactThreshold
}

// FormatNumber formats a number with thousand separators
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatCost formats a cost value as currency
func FormatCost(cost float64) string {
	return "$" + decimal.NewFromFloat(cost).StringFixed(2)
}

// FormatPercent formats a percentage with one decimal
func FormatPercent(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(1) + "%"
}

// PrintSummary prints the reporting windows, lifetime totals and savings
func PrintSummary(w io.Writer, report *model.UsageReport, opts TableOptions) {
	const periodWidth = 10
	rows := []struct {
		label  string
		tokens int64
		cost   float64
	}{
		{"Today", report.Today.Tokens, report.Today.Cost},
		{"This week", report.ThisWeek.Tokens, report.ThisWeek.Cost},
		{"This month", report.ThisMonth.Tokens, report.ThisMonth.Cost},
	}

	rule := strings.Repeat("─", periodWidth+2+16+2+12)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-*s  %16s  %12s\n", periodWidth, "Period", "Tokens", "Cost")
	fmt.Fprintln(w, rule)
	for _, r := range rows {
		fmt.Fprintf(w, "%-*s  %16s  %12s\n", periodWidth, r.label, FormatNumber(r.tokens), FormatCost(r.cost))
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-*s  %16s  %12s\n", periodWidth, "Total", FormatNumber(report.Total.Tokens), FormatCost(report.Total.Cost))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %s\n", FormatNumber(int64(report.Total.Sessions)))
	if !opts.compact() {
		fmt.Fprintf(w, "Savings:  %s (%s) against %s on the most expensive model\n",
			FormatCost(report.Savings.Amount),
			FormatPercent(report.Savings.Percentage),
			FormatCost(report.Savings.Baseline))
	} else {
		fmt.Fprintf(w, "Savings:  %s (%s)\n", FormatCost(report.Savings.Amount), FormatPercent(report.Savings.Percentage))
	}
	fmt.Fprintln(w)
}

// PrintDaily prints the trailing daily series, oldest first
func PrintDaily(w io.Writer, daily []model.DailyEntry, opts TableOptions) {
	const dateWidth = 10
	compact := opts.compact()

	fmt.Fprintln(w)
	if compact {
		rule := strings.Repeat("─", dateWidth+2+14+2+10)
		fmt.Fprintf(w, "%-*s  %14s  %10s\n", dateWidth, "Date", "Tokens", "Cost")
		fmt.Fprintln(w, rule)

		var tokens int64
		var cost float64
		for _, d := range daily {
			fmt.Fprintf(w, "%-*s  %14s  %10s\n", dateWidth, d.Date, FormatNumber(d.Tokens), FormatCost(d.Cost))
			tokens += d.Tokens
			cost += d.Cost
		}

		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%-*s  %14s  %10s\n", dateWidth, "Total", FormatNumber(tokens), FormatCost(cost))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "(Compact mode - expand terminal for full view)")
		return
	}

	rule := strings.Repeat("─", dateWidth+2+12+2+12+2+14+2+10+2+20)
	fmt.Fprintf(w, "%-*s  %12s  %12s  %14s  %10s  %-20s\n", dateWidth, "Date", "Input", "Output", "Tokens", "Cost", "Models")
	fmt.Fprintln(w, rule)

	var input, output, tokens int64
	var cost float64
	for _, d := range daily {
		var in, out int64
		for _, mt := range d.ByModel {
			in += mt.InputTokens
			out += mt.OutputTokens
		}
		fmt.Fprintf(w, "%-*s  %12s  %12s  %14s  %10s  %-20s\n",
			dateWidth, d.Date,
			FormatNumber(in),
			FormatNumber(out),
			FormatNumber(d.Tokens),
			FormatCost(d.Cost),
			strings.Join(sortedKeys(d.ByModel), ","))
		input += in
		output += out
		tokens += d.Tokens
		cost += d.Cost
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-*s  %12s  %12s  %14s  %10s\n",
		dateWidth, "Total", FormatNumber(input), FormatNumber(output), FormatNumber(tokens), FormatCost(cost))
	fmt.Fprintln(w)
}

// PrintModels prints the lifetime per-model breakdown, most expensive first
func PrintModels(w io.Writer, byModel map[string]model.ModelTotal, pricing map[string]model.PricingEntry, opts TableOptions) {
	if len(byModel) == 0 {
		fmt.Fprintln(w, "No usage data found.")
		return
	}

	keys := sortedKeys(byModel)
	sort.SliceStable(keys, func(i, j int) bool {
		return byModel[keys[i]].Cost > byModel[keys[j]].Cost
	})

	nameWidth := len("Model")
	for _, k := range keys {
		nameWidth = max(nameWidth, len(displayName(k, byModel[k])))
	}

	fmt.Fprintln(w)
	if opts.compact() {
		nameWidth = min(nameWidth, 14)
		rule := strings.Repeat("─", nameWidth+2+14+2+10)
		fmt.Fprintf(w, "%-*s  %14s  %10s\n", nameWidth, "Model", "Tokens", "Cost")
		fmt.Fprintln(w, rule)
		for _, k := range keys {
			mt := byModel[k]
			name := displayName(k, mt)
			if len(name) > nameWidth {
				name = name[:nameWidth]
			}
			fmt.Fprintf(w, "%-*s  %14s  %10s\n", nameWidth, name, FormatNumber(mt.Tokens), FormatCost(mt.Cost))
		}
		fmt.Fprintln(w)
		return
	}

	rule := strings.Repeat("─", nameWidth+2+12+2+12+2+14+2+10+2+16)
	fmt.Fprintf(w, "%-*s  %12s  %12s  %14s  %10s  %16s\n", nameWidth, "Model", "Input", "Output", "Tokens", "Cost", "Rate (in/out)")
	fmt.Fprintln(w, rule)
	for _, k := range keys {
		mt := byModel[k]
		rate := "unpriced"
		if p, ok := pricing[k]; ok {
			rate = fmt.Sprintf("$%s/$%s", decimal.NewFromFloat(p.Input).String(), decimal.NewFromFloat(p.Output).String())
		}
		fmt.Fprintf(w, "%-*s  %12s  %12s  %14s  %10s  %16s\n",
			nameWidth, displayName(k, mt),
			FormatNumber(mt.InputTokens),
			FormatNumber(mt.OutputTokens),
			FormatNumber(mt.Tokens),
			FormatCost(mt.Cost),
			rate)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Rates are USD per million tokens.")
	fmt.Fprintln(w)
}

// PrintDiagnostics prints a scan summary followed by per-model unpriced tokens
// and any read errors
func PrintDiagnostics(w io.Writer, diag *model.ScanDiagnostics) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scan:       %s\n", diag.ID)
	if !diag.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:    %s (%s)\n", diag.StartedAt.Format(time.RFC3339), humanize.Time(diag.StartedAt))
	}
	fmt.Fprintf(w, "Duration:   %s\n", diag.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Files:      %s (%s sessions)\n", FormatNumber(int64(diag.Files)), FormatNumber(int64(diag.Sessions)))
	fmt.Fprintf(w, "Events:     %s\n", FormatNumber(int64(diag.Events)))
	fmt.Fprintf(w, "Skipped:    %s malformed, %s without usage\n", FormatNumber(int64(diag.Malformed)), FormatNumber(int64(diag.NonUsage)))

	if len(diag.Unpriced) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Unpriced tokens (counted at $0):")
		for _, k := range sortedKeys(diag.Unpriced) {
			fmt.Fprintf(w, "  %-14s %s\n", k, FormatNumber(diag.Unpriced[k]))
		}
	}

	if len(diag.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range diag.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
}

// PrintJSON writes v as indented JSON
func PrintJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func displayName(key string, mt model.ModelTotal) string {
	if mt.Name != "" {
		return mt.Name
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
