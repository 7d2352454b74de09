package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

// scriptedRefresher returns errs in order, then succeeds, and reports each
// call on calls.
type scriptedRefresher struct {
	errs  []error
	calls chan time.Time
	clock clockwork.Clock
}

func (r *scriptedRefresher) Refresh(context.Context, pipeline.RefreshOptions) (*pipeline.Session, error) {
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	r.calls <- r.clock.Now()
	if err != nil {
		return nil, err
	}
	return &pipeline.Session{}, nil
}

func waitCall(t *testing.T, calls <-chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-calls:
		return at
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
		return time.Time{}
	}
}

func TestScheduler_RefreshesAtEachBoundary(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC))
	ref := &scriptedRefresher{calls: make(chan time.Time, 4), clock: clock}
	s := pipeline.NewScheduler(ref, domain.DefaultCycleSchedule(), clock, discardLogger(),
		observability.NewMetricsForTesting(), time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCall(t, ref.calls)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour) // 19:00, evening boundary
	at := waitCall(t, ref.calls)
	assert.Equal(t, time.Date(2024, 1, 10, 19, 0, 0, 0, time.UTC), at)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(12 * time.Hour) // 07:00 next morning
	at = waitCall(t, ref.calls)
	assert.Equal(t, time.Date(2024, 1, 11, 7, 0, 0, 0, time.UTC), at)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_BacksOffOnFailure(t *testing.T) {
	start := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	boom := errors.New("boom")
	ref := &scriptedRefresher{
		errs:  []error{boom, boom, boom},
		calls: make(chan time.Time, 8),
		clock: clock,
	}
	s := pipeline.NewScheduler(ref, domain.DefaultCycleSchedule(), clock, discardLogger(),
		observability.NewMetricsForTesting(), time.Second, 3*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCall(t, ref.calls)
	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
		waitCall(t, ref.calls)
	}
	assert.Equal(t, start.Add(6*time.Second), clock.Now())

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ref := &scriptedRefresher{calls: make(chan time.Time, 1), clock: clock}
	metrics := observability.NewMetricsForTesting()
	s := pipeline.NewScheduler(ref, domain.DefaultCycleSchedule(), clock, discardLogger(),
		metrics, time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCall(t, ref.calls)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
