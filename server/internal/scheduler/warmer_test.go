package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikaboard/pikausage/internal/model"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) (*model.UsageReport, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &model.UsageReport{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWarmerDisabled(t *testing.T) {
	svc := &countingRefresher{}
	w := NewWarmer(svc, "", testLogger())

	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.IsRunning())
	assert.Nil(t, w.NextRun())
	assert.Never(t, func() bool { return svc.calls.Load() > 0 }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestWarmerInvalidSchedule(t *testing.T) {
	w := NewWarmer(&countingRefresher{}, "whenever", testLogger())
	assert.Error(t, w.Start(context.Background()))
	assert.False(t, w.IsRunning())
}

func TestWarmerWarmsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &countingRefresher{}
	w := NewWarmer(svc, "@every 1h", testLogger())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.True(t, w.IsRunning())
	assert.Eventually(t, func() bool { return svc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	next := w.NextRun()
	require.NotNil(t, next)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *next, time.Minute)
}

func TestWarmerSurvivesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &countingRefresher{err: errors.New("no roots")}
	w := NewWarmer(svc, "@every 1h", testLogger())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Eventually(t, func() bool { return svc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.IsRunning())
}

func TestWarmerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	w := NewWarmer(&countingRefresher{}, "@every 1h", testLogger())
	require.NoError(t, w.Start(ctx))
	require.True(t, w.IsRunning())

	cancel()
	assert.Eventually(t, func() bool { return !w.IsRunning() }, time.Second, 5*time.Millisecond)
}
