package handlers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCollapsesBurst(t *testing.T) {
	var runs atomic.Int32
	d := NewRefreshDebouncer(20*time.Millisecond, func() { runs.Add(1) })

	for range 10 {
		d.Schedule()
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())
	assert.Never(t, func() bool { return runs.Load() > 1 }, 60*time.Millisecond, 10*time.Millisecond)
}

func TestDebouncerRunsAgainAfterQuietPeriod(t *testing.T) {
	var runs atomic.Int32
	d := NewRefreshDebouncer(5*time.Millisecond, func() { runs.Add(1) })

	d.Schedule()
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 2*time.Millisecond)

	d.Schedule()
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 2*time.Millisecond)
}
