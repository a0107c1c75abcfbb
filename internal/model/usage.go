package model

import "time"

// UnknownModel is the model identifier given to usage lines without a model field
const UnknownModel = "unknown"

// SessionFile is one agent session log discovered on disk
type SessionFile struct {
	Agent   string
	Path    string
	ModTime time.Time
}

// TokenCounts contains token counts from one assistant turn
type TokenCounts struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cacheRead"`
	CacheWrite int64 `json:"cacheWrite"`
	Total      int64 `json:"total"`
}

// CostBreakdown is a monetary cost split by token class
type CostBreakdown struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// UsageEvent represents a single usage entry from an agent session log.
// Cost is nil when the log line carried no precomputed cost.
type UsageEvent struct {
	Timestamp time.Time
	Model     string
	Provider  string
	Tokens    TokenCounts
	Cost      *CostBreakdown
}

// PricingEntry contains pricing info for a canonical model key, in USD per million tokens.
// CacheRead and CacheWrite are zero when the model has no distinct cache rate.
type PricingEntry struct {
	Key        string  `json:"-" yaml:"-"`
	Name       string  `json:"name" yaml:"name"`
	Input      float64 `json:"input" yaml:"input"`
	Output     float64 `json:"output" yaml:"output"`
	CacheRead  float64 `json:"cacheRead,omitempty" yaml:"cache_read"`
	CacheWrite float64 `json:"cacheWrite,omitempty" yaml:"cache_write"`
}

// ModelTotal is a per-model sub-total inside a bucket
type ModelTotal struct {
	Cost         float64 `json:"cost"`
	Tokens       int64   `json:"tokens"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	Name         string  `json:"name,omitempty"`
}

// Bucket is a time- or model-scoped accumulator of cost and token sums
type Bucket struct {
	Cost    float64               `json:"total"`
	Tokens  int64                 `json:"tokens"`
	ByModel map[string]ModelTotal `json:"byModel"`
}

// NewBucket returns an empty bucket
func NewBucket() Bucket {
	return Bucket{ByModel: make(map[string]ModelTotal)}
}

// DailyEntry is one local calendar day in the trailing reporting window
type DailyEntry struct {
	Date    string                `json:"date"` // "2026-02-15"
	Cost    float64               `json:"cost"`
	Tokens  int64                 `json:"tokens"`
	ByModel map[string]ModelTotal `json:"byModel"`
}

// Total holds lifetime sums across every scanned file
type Total struct {
	Cost     float64 `json:"cost"`
	Tokens   int64   `json:"tokens"`
	Sessions int     `json:"sessions"`
}

// Savings compares actual cost against the most-expensive-model baseline
type Savings struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Baseline   float64 `json:"baseline"`
}

// UsageReport is the finalized snapshot served by GET /usage.
// It is never mutated once built; the next scan supersedes it.
type UsageReport struct {
	Today       Bucket                  `json:"today"`
	ThisWeek    Bucket                  `json:"thisWeek"`
	ThisMonth   Bucket                  `json:"thisMonth"`
	Daily       []DailyEntry            `json:"daily"`
	ByModel     map[string]ModelTotal   `json:"byModel"`
	Total       Total                   `json:"total"`
	Savings     Savings                 `json:"savings"`
	Pricing     map[string]PricingEntry `json:"pricing"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// FileDiagnostics counts what happened while parsing one session file
type FileDiagnostics struct {
	Agent     string `json:"agent"`
	Path      string `json:"path"`
	Lines     int    `json:"lines"`
	Events    int    `json:"events"`
	Malformed int    `json:"malformed"`
	NonUsage  int    `json:"nonUsage"`
	Unpriced  int    `json:"unpriced"`
	Error     string `json:"error,omitempty"`
}

// ScanDiagnostics summarizes one full recomputation
type ScanDiagnostics struct {
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
	Roots     []string         `json:"roots"`
	Files     int              `json:"files"`
	Sessions  int              `json:"sessions"`
	Events    int              `json:"events"`
	Malformed int              `json:"malformed"`
	NonUsage  int              `json:"nonUsage"`
	Unpriced  map[string]int64 `json:"unpriced"` // model key -> tokens counted without a price
	Errors    []string         `json:"errors,omitempty"`
}
