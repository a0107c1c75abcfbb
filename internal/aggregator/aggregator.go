package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/pikaboard/pikausage/internal/model"
	"github.com/pikaboard/pikausage/internal/pricing"
)

const (
	dateLayout = "2006-01-02"
	// DailyDays is the length of the daily series in a report
	DailyDays = 30
	weekDays  = 7
)

// Partial accumulates usage for some subset of session files. Partials merge
// associatively and commutatively; reporting windows are derived only when the
// merged result is finalized, so a partial never depends on the current time.
type Partial struct {
	loc      *time.Location
	lifetime model.Bucket
	days     map[string]model.Bucket // local date -> bucket
	sessions int
}

// New returns an empty partial that assigns events to days in loc
func New(loc *time.Location) *Partial {
	if loc == nil {
		loc = time.Local
	}
	return &Partial{
		loc:      loc,
		lifetime: model.NewBucket(),
		days:     make(map[string]model.Bucket),
	}
}

// Add folds one costed event into the partial under its canonical model key.
// Events without a timestamp count toward lifetime totals only.
func (p *Partial) Add(key string, ev model.UsageEvent, cost model.CostBreakdown) {
	addEvent(p.lifetime, key, ev, cost)

	if ev.Timestamp.IsZero() {
		return
	}
	day := ev.Timestamp.In(p.loc).Format(dateLayout)
	b, ok := p.days[day]
	if !ok {
		b = model.NewBucket()
		p.days[day] = b
	}
	addEvent(b, key, ev, cost)
}

// MarkSession counts one session file
func (p *Partial) MarkSession() {
	p.sessions++
}

// Sessions returns the number of session files counted so far
func (p *Partial) Sessions() int {
	return p.sessions
}

// Merge folds src into p. src is left unchanged.
func (p *Partial) Merge(src *Partial) {
	if src == nil {
		return
	}
	p.sessions += src.sessions
	mergeModels(p.lifetime.ByModel, src.lifetime.ByModel)
	for day, b := range src.days {
		dst, ok := p.days[day]
		if !ok {
			dst = model.NewBucket()
			p.days[day] = dst
		}
		mergeModels(dst.ByModel, b.ByModel)
	}
}

// Finalize derives the report windows relative to now and returns an immutable
// report. Every bucket total is recomputed from its per-model sub-totals.
func (p *Partial) Finalize(now time.Time, table *pricing.Table) model.UsageReport {
	local := now.In(p.loc)
	today := dayOffset(local, 0)
	weekStart := dayOffset(local, -(weekDays - 1))
	monthPrefix := local.Format("2006-01")

	week := model.NewBucket()
	month := model.NewBucket()

	// Sorted so floating point sums come out identical on every run
	days := make([]string, 0, len(p.days))
	for day := range p.days {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if day > today {
			continue
		}
		b := p.days[day]
		if day >= weekStart {
			mergeModels(week.ByModel, b.ByModel)
		}
		if strings.HasPrefix(day, monthPrefix) {
			mergeModels(month.ByModel, b.ByModel)
		}
	}

	daily := make([]model.DailyEntry, 0, DailyDays)
	for i := DailyDays - 1; i >= 0; i-- {
		day := dayOffset(local, -i)
		b := model.NewBucket()
		if src, ok := p.days[day]; ok {
			mergeModels(b.ByModel, src.ByModel)
		}
		b = finish(b)
		daily = append(daily, model.DailyEntry{
			Date:    day,
			Cost:    b.Cost,
			Tokens:  b.Tokens,
			ByModel: b.ByModel,
		})
	}

	todayBucket := model.NewBucket()
	if b, ok := p.days[today]; ok {
		mergeModels(todayBucket.ByModel, b.ByModel)
	}

	lifetime := model.NewBucket()
	mergeModels(lifetime.ByModel, p.lifetime.ByModel)
	lifetime = finish(lifetime)

	var outputTokens int64
	for key, mt := range lifetime.ByModel {
		mt.Name = table.Name(key)
		lifetime.ByModel[key] = mt
		outputTokens += mt.OutputTokens
	}

	return model.UsageReport{
		Today:     finish(todayBucket),
		ThisWeek:  finish(week),
		ThisMonth: finish(month),
		Daily:     daily,
		ByModel:   lifetime.ByModel,
		Total: model.Total{
			Cost:     lifetime.Cost,
			Tokens:   lifetime.Tokens,
			Sessions: p.sessions,
		},
		Savings:     table.Savings(lifetime.Tokens, outputTokens, lifetime.Cost),
		Pricing:     table.Entries(),
		GeneratedAt: now.UTC(),
	}
}

func addEvent(b model.Bucket, key string, ev model.UsageEvent, cost model.CostBreakdown) {
	mt := b.ByModel[key]
	mt.Cost += cost.Total
	mt.Tokens += ev.Tokens.Total
	mt.InputTokens += ev.Tokens.Input
	mt.OutputTokens += ev.Tokens.Output
	b.ByModel[key] = mt
}

func mergeModels(dst, src map[string]model.ModelTotal) {
	for key, s := range src {
		d := dst[key]
		d.Cost += s.Cost
		d.Tokens += s.Tokens
		d.InputTokens += s.InputTokens
		d.OutputTokens += s.OutputTokens
		dst[key] = d
	}
}

// finish sets the bucket totals to the sum of its per-model sub-totals
func finish(b model.Bucket) model.Bucket {
	keys := make([]string, 0, len(b.ByModel))
	for key := range b.ByModel {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b.Cost, b.Tokens = 0, 0
	for _, key := range keys {
		b.Cost += b.ByModel[key].Cost
		b.Tokens += b.ByModel[key].Tokens
	}
	return b
}

// dayOffset returns the local date n days from t. Noon avoids DST gaps at midnight.
func dayOffset(t time.Time, n int) string {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 12, 0, 0, 0, t.Location()).Format(dateLayout)
}
