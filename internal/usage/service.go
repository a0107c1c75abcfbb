package usage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pikaboard/pikausage/internal/aggregator"
	"github.com/pikaboard/pikausage/internal/model"
	"github.com/pikaboard/pikausage/internal/parser"
	"github.com/pikaboard/pikausage/internal/pricing"
)

const maxDefaultWorkers = 8

// Scanner discovers session files under a set of agent roots
type Scanner interface {
	Scan(roots []string) ([]model.SessionFile, []string, error)
}

// ScanRecorder persists the diagnostics of each recomputation
type ScanRecorder interface {
	RecordScan(ctx context.Context, diag model.ScanDiagnostics) error
}

// Options configures a Service
type Options struct {
	Roots    []string
	Location *time.Location
	Table    *pricing.Table
	Workers  int
	MaxAge   time.Duration

	// Optional collaborators
	Scanner Scanner
	Now     func() time.Time
	Metrics *Metrics
	Journal ScanRecorder
	Logger  *slog.Logger
}

// Service answers report requests from the cache, recomputing on a miss
type Service struct {
	roots   []string
	loc     *time.Location
	table   *pricing.Table
	workers int
	maxAge  time.Duration

	scanner Scanner
	now     func() time.Time
	metrics *Metrics
	journal ScanRecorder
	logger  *slog.Logger
	cache   *Cache

	mu   sync.RWMutex
	last *model.ScanDiagnostics
}

// NewService creates a report service
func NewService(opts Options) (*Service, error) {
	if opts.Table == nil {
		return nil, fmt.Errorf("usage service needs a pricing table")
	}

	s := &Service{
		roots:   opts.Roots,
		loc:     opts.Location,
		table:   opts.Table,
		workers: opts.Workers,
		maxAge:  opts.MaxAge,
		scanner: opts.Scanner,
		now:     opts.Now,
		metrics: opts.Metrics,
		journal: opts.Journal,
		logger:  opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.workers < 1 {
		s.workers = min(runtime.NumCPU(), maxDefaultWorkers)
	}
	if s.scanner == nil {
		s.scanner = parser.DirScanner{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "usage")
	s.cache = NewCache(s.now, s.metrics)

	return s, nil
}

// Report returns a report no older than the configured max age
func (s *Service) Report(ctx context.Context) (*model.UsageReport, error) {
	return s.cache.GetOrCompute(ctx, s.maxAge, s.compute)
}

// Refresh forces a recomputation and returns its report
func (s *Service) Refresh(ctx context.Context) (*model.UsageReport, error) {
	return s.cache.Recompute(ctx, s.compute)
}

// Invalidate drops the cached report so the next request recomputes
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// LastScan returns the diagnostics of the most recent recomputation
func (s *Service) LastScan() (model.ScanDiagnostics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return model.ScanDiagnostics{}, false
	}
	return *s.last, true
}

// Table returns the pricing table reports are computed with
func (s *Service) Table() *pricing.Table {
	return s.table
}

type fileResult struct {
	partial  *aggregator.Partial
	diag     model.FileDiagnostics
	unpriced map[string]int64
	err      error
}

// compute scans every root, parses the files on a bounded pool and merges the
// per-file partials in path order.
func (s *Service) compute(ctx context.Context) (*model.UsageReport, error) {
	start := s.now()
	diag := model.ScanDiagnostics{
		ID:        uuid.NewString(),
		StartedAt: start,
		Roots:     s.roots,
		Unpriced:  make(map[string]int64),
	}

	files, scanErrs, err := s.scanner.Scan(s.roots)
	diag.Errors = append(diag.Errors, scanErrs...)
	if err != nil {
		diag.Duration = s.now().Sub(start)
		s.finish(ctx, diag, nil, err)
		return nil, fmt.Errorf("scan agent roots: %w", err)
	}
	diag.Files = len(files)

	results := make([]fileResult, len(files))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, file := range files {
		g.Go(func() error {
			results[i] = s.parseFile(file)
			return nil
		})
	}
	_ = g.Wait()

	merged := aggregator.New(s.loc)
	for _, r := range results {
		diag.Malformed += r.diag.Malformed
		diag.NonUsage += r.diag.NonUsage
		diag.Events += r.diag.Events
		if r.err != nil {
			diag.Errors = append(diag.Errors, r.err.Error())
			continue
		}
		for key, tokens := range r.unpriced {
			diag.Unpriced[key] += tokens
		}
		merged.Merge(r.partial)
	}
	diag.Sessions = merged.Sessions()

	report := merged.Finalize(start, s.table)
	diag.Duration = s.now().Sub(start)
	s.finish(ctx, diag, &report, nil)

	return &report, nil
}

func (s *Service) parseFile(file model.SessionFile) fileResult {
	partial := aggregator.New(s.loc)
	unpriced := make(map[string]int64)
	unpricedEvents := 0

	diag, err := parser.ParseFile(file, func(ev model.UsageEvent) {
		key := pricing.Resolve(ev.Model, ev.Provider)
		cost, ok := s.table.CostOf(key, ev)
		if !ok {
			unpriced[key] += ev.Tokens.Total
			unpricedEvents++
		}
		partial.Add(key, ev, cost)
	})
	diag.Unpriced = unpricedEvents
	if err != nil {
		return fileResult{diag: diag, err: fmt.Errorf("%s: %w", file.Path, err)}
	}

	// Only files that contributed usage count as sessions
	if diag.Events > 0 {
		partial.MarkSession()
	}
	return fileResult{partial: partial, diag: diag, unpriced: unpriced}
}

func (s *Service) finish(ctx context.Context, diag model.ScanDiagnostics, report *model.UsageReport, err error) {
	s.mu.Lock()
	s.last = &diag
	s.mu.Unlock()

	s.metrics.RecordScan(diag, report, err)

	if err != nil {
		s.logger.Error("usage scan failed", "scan_id", diag.ID, "error", err)
	} else {
		s.logger.Info("usage scan completed",
			"scan_id", diag.ID,
			"files", diag.Files,
			"events", diag.Events,
			"malformed", diag.Malformed,
			"duration", diag.Duration,
		)
		if len(diag.Unpriced) > 0 {
			s.logger.Warn("usage counted without a price", "scan_id", diag.ID, "tokens_by_model", diag.Unpriced)
		}
	}

	if s.journal != nil {
		if jerr := s.journal.RecordScan(ctx, diag); jerr != nil {
			s.logger.Warn("failed to record scan", "scan_id", diag.ID, "error", jerr)
		}
	}
}
