package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strconv"
	"time"

	"github.com/pikaboard/pikausage/internal/model"
)

// SkipReason explains why a line produced no usage event
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipBlank
	SkipMalformed
	SkipNoUsage
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "ok"
	case SkipBlank:
		return "blank"
	case SkipMalformed:
		return "malformed"
	case SkipNoUsage:
		return "no-usage"
	}
	return "skip(" + strconv.Itoa(int(r)) + ")"
}

// Outcome is the result of parsing one line: either an event or a skip reason
type Outcome struct {
	Event model.UsageEvent
	Skip  SkipReason
}

// OK reports whether the line produced an event
func (o Outcome) OK() bool {
	return o.Skip == SkipNone
}

// rawLine represents the raw JSON structure of a session log line. Two dialects are
// accepted: agent logs with camelCase usage and a cost object, and Claude Code logs
// with Anthropic API field names.
type rawLine struct {
	Type      string      `json:"type"`
	Timestamp flexTime    `json:"timestamp"`
	Provider  string      `json:"provider"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	Role      string    `json:"role"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	Timestamp flexTime  `json:"timestamp"`
	Usage     *rawUsage `json:"usage"`
}

type rawUsage struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CacheRead   int64 `json:"cacheRead"`
	CacheWrite  int64 `json:"cacheWrite"`
	TotalTokens int64 `json:"totalTokens"`

	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`

	Cost *rawCost `json:"cost"`
}

// rawCost accepts either a cost object or a bare number (the total)
type rawCost struct {
	model.CostBreakdown
}

func (c *rawCost) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return json.Unmarshal(data, &c.Total)
	}
	return json.Unmarshal(data, &c.CostBreakdown)
}

// flexTime accepts RFC 3339 strings or Unix milliseconds. Values it cannot read
// decode to the zero time instead of failing the whole line.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = ts
		}
		return nil
	}
	if ms, err := strconv.ParseFloat(string(data), 64); err == nil && ms > 0 {
		t.Time = time.UnixMilli(int64(ms))
	}
	return nil
}

// ParseLine turns one log line into an outcome. It never fails: lines that are not
// JSON objects are SkipMalformed, lines without message.usage are SkipNoUsage.
func ParseLine(line []byte) Outcome {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Outcome{Skip: SkipBlank}
	}

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Outcome{Skip: SkipMalformed}
	}

	// Only assistant messages carry usage; tool calls and system events do not
	if raw.Message == nil || raw.Message.Usage == nil {
		return Outcome{Skip: SkipNoUsage}
	}
	msg := raw.Message
	usage := msg.Usage

	ts := raw.Timestamp.Time
	if ts.IsZero() {
		ts = msg.Timestamp.Time
	}
	if !ts.IsZero() {
		ts = ts.UTC()
	}

	modelName := msg.Model
	if modelName == "" {
		modelName = model.UnknownModel
	}
	provider := msg.Provider
	if provider == "" {
		provider = raw.Provider
	}

	tokens := model.TokenCounts{
		Input:      nonNegative(first(usage.Input, usage.InputTokens)),
		Output:     nonNegative(first(usage.Output, usage.OutputTokens)),
		CacheRead:  nonNegative(first(usage.CacheRead, usage.CacheReadInputTokens)),
		CacheWrite: nonNegative(first(usage.CacheWrite, usage.CacheCreationInputTokens)),
	}
	tokens.Total = nonNegative(usage.TotalTokens)
	if tokens.Total == 0 {
		tokens.Total = tokens.Input + tokens.Output + tokens.CacheRead + tokens.CacheWrite
	}

	event := model.UsageEvent{
		Timestamp: ts,
		Model:     modelName,
		Provider:  provider,
		Tokens:    tokens,
	}
	if usage.Cost != nil {
		cost := clampCost(usage.Cost.CostBreakdown)
		event.Cost = &cost
	}

	return Outcome{Event: event}
}

// Parse returns a lazy sequence of outcomes, one per line of data.
// The sequence may be ranged over any number of times.
func Parse(data []byte) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		for line := range bytes.Lines(data) {
			if !yield(ParseLine(line)) {
				return
			}
		}
	}
}

// ParseFile reads one session file and calls fn for every usage event in it.
// The returned diagnostics count malformed and non-usage lines; only a failure to
// read the file is returned as an error.
func ParseFile(file model.SessionFile, fn func(model.UsageEvent)) (model.FileDiagnostics, error) {
	diag := model.FileDiagnostics{Agent: file.Agent, Path: file.Path}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		diag.Error = err.Error()
		return diag, fmt.Errorf("read session file: %w", err)
	}

	for outcome := range Parse(data) {
		switch outcome.Skip {
		case SkipBlank:
			continue
		case SkipMalformed:
			diag.Malformed++
		case SkipNoUsage:
			diag.NonUsage++
		case SkipNone:
			diag.Events++
			fn(outcome.Event)
		}
		diag.Lines++
	}

	return diag, nil
}

func first(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func clampCost(c model.CostBreakdown) model.CostBreakdown {
	for _, f := range []*float64{&c.Input, &c.Output, &c.CacheRead, &c.CacheWrite, &c.Total} {
		if *f < 0 {
			*f = 0
		}
	}
	if c.Total == 0 {
		c.Total = c.Input + c.Output + c.CacheRead + c.CacheWrite
	}
	return c
}
