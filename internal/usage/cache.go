package usage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pikaboard/pikausage/internal/model"
)

const flightKey = "report"

// ComputeFunc builds a fresh report
type ComputeFunc func(ctx context.Context) (*model.UsageReport, error)

// Cache holds the most recent report and guarantees at most one computation in
// flight. Concurrent callers that miss share the in-flight result.
type Cache struct {
	mu       sync.RWMutex
	report   *model.UsageReport
	storedAt time.Time

	// computeMu serializes computations, including a forced one queued behind a
	// flight it detached from
	computeMu sync.Mutex

	now     func() time.Time
	group   singleflight.Group
	metrics *Metrics
}

// NewCache returns an empty cache. now defaults to time.Now.
func NewCache(now func() time.Time, metrics *Metrics) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now, metrics: metrics}
}

// Get returns the stored report if it is younger than maxAge
func (c *Cache) Get(maxAge time.Duration) (*model.UsageReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.report == nil {
		return nil, false
	}
	if c.now().Sub(c.storedAt) >= maxAge {
		return nil, false
	}
	return c.report, true
}

// Put stores a report. A report generated before the stored one is ignored, so a
// slow computation cannot overwrite the result of a later forced refresh.
func (c *Cache) Put(report *model.UsageReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.report != nil && report.GeneratedAt.Before(c.report.GeneratedAt) {
		return
	}
	c.report = report
	c.storedAt = c.now()
}

// Invalidate drops the stored report
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report = nil
	c.storedAt = time.Time{}
}

// GetOrCompute returns the stored report when fresh, otherwise joins or starts a
// computation. If ctx is done first the caller gets ctx.Err(), but the computation
// keeps running and stores its result for the next caller.
func (c *Cache) GetOrCompute(ctx context.Context, maxAge time.Duration, fn ComputeFunc) (*model.UsageReport, error) {
	if report, ok := c.Get(maxAge); ok {
		c.metrics.RecordCache("hit")
		return report, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.computeMu.Lock()
		defer c.computeMu.Unlock()

		// A computation that finished while this one waited may already have stored one
		if report, ok := c.Get(maxAge); ok {
			return report, nil
		}
		return c.compute(ctx, fn)
	})
	return c.wait(ctx, ch)
}

// Recompute runs a new computation regardless of the stored report's age. It
// starts only after any running computation has finished, so its result never
// predates the call. Callers already waiting on the older flight keep waiting on it.
func (c *Cache) Recompute(ctx context.Context, fn ComputeFunc) (*model.UsageReport, error) {
	c.group.Forget(flightKey)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.computeMu.Lock()
		defer c.computeMu.Unlock()
		return c.compute(ctx, fn)
	})
	return c.wait(ctx, ch)
}

// compute must be called with computeMu held
func (c *Cache) compute(ctx context.Context, fn ComputeFunc) (any, error) {
	report, err := fn(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	c.Put(report)
	return report, nil
}

func (c *Cache) wait(ctx context.Context, ch <-chan singleflight.Result) (*model.UsageReport, error) {
	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordCache("shared")
		} else {
			c.metrics.RecordCache("miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.UsageReport), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
