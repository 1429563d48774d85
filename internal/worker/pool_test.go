package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/services"
)

type step struct {
	out   models.Outcome
	err   error
	panic bool
}

// scriptedRunner replays steps in order, repeating the last one.
type scriptedRunner struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedRunner) Run(context.Context, models.Tier, string) (models.Outcome, error) {
	s.mu.Lock()
	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	s.mu.Unlock()
	if st.panic {
		panic("boom")
	}
	return st.out, st.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type hookRecorder struct {
	mu   sync.Mutex
	seen []*models.MatchRequest
}

func (h *hookRecorder) hook(_ context.Context, r *models.MatchRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, r)
}

func newTestPool(t *testing.T, runner Runner) (*Pool, *services.MemoryMatchRequestService, *Dispatcher, *clock, *hookRecorder) {
	t.Helper()
	clk := &clock{t: time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)}
	queue := services.NewMemoryMatchRequestService()
	hooks := &hookRecorder{}
	pool := NewPool(queue, runner, Options{
		Lease:      time.Minute,
		JobTimeout: time.Second,
		RetryDelay: 10 * time.Second,
		Hook:       hooks.hook,
		Now:        clk.Now,
		Logger:     zap.NewNop(),
	})
	return pool, queue, NewDispatcher(queue, time.Millisecond, clk.Now, nil), clk, hooks
}

func submit(t *testing.T, d *Dispatcher, tier models.Tier, user string) *models.MatchRequest {
	t.Helper()
	r, created, err := d.Submit(context.Background(), Submission{Tier: tier, UserID: user})
	require.NoError(t, err)
	require.True(t, created)
	return r
}

func TestProcessNextOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		tier       models.Tier
		step       step
		wantStatus models.RequestStatus
		wantHooks  int
	}{
		{
			name:       "completed",
			tier:       models.TierPriority,
			step:       step{out: models.Outcome{MatchIDs: []string{"m1"}, TopScore: 88}},
			wantStatus: models.RequestCompleted,
		},
		{
			name:       "priority exhausted",
			tier:       models.TierPriority,
			step:       step{err: apperrors.ErrNoSuitableMatches},
			wantStatus: models.RequestNoCandidates,
			wantHooks:  1,
		},
		{
			name:       "standard exhausted",
			tier:       models.TierStandard,
			step:       step{err: apperrors.ErrNoSuitableMatches},
			wantStatus: models.RequestNoCandidates,
		},
		{
			name:       "precondition is not retried",
			tier:       models.TierPriority,
			step:       step{err: apperrors.ErrProfileIncomplete},
			wantStatus: models.RequestFailed,
			wantHooks:  1,
		},
		{
			name:       "transient is requeued",
			tier:       models.TierPriority,
			step:       step{err: errors.New("connection reset")},
			wantStatus: models.RequestQueued,
		},
		{
			name:       "panic is requeued",
			tier:       models.TierVIP,
			step:       step{panic: true},
			wantStatus: models.RequestQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, queue, dispatcher, _, hooks := newTestPool(t, &scriptedRunner{steps: []step{tt.step}})
			r := submit(t, dispatcher, tt.tier, "u1")

			worked, err := pool.ProcessNext(context.Background())
			require.NoError(t, err)
			assert.True(t, worked)

			got, err := queue.Get(context.Background(), r.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, 1, got.Attempts)
			assert.Len(t, hooks.seen, tt.wantHooks)
		})
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	runner := &scriptedRunner{steps: []step{
		{err: errors.New("index timeout")},
		{out: models.Outcome{MatchIDs: []string{"m9"}}},
	}}
	pool, queue, dispatcher, clk, _ := newTestPool(t, runner)
	r := submit(t, dispatcher, models.TierPriority, "u1")
	ctx := context.Background()

	worked, err := pool.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	got, err := queue.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "index timeout", got.LastError)

	// Backoff holds the request back.
	worked, err = pool.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, worked)

	clk.Advance(10 * time.Second)
	worked, err = pool.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	got, err = queue.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "m9", got.MatchID)
}

func TestRetriesExhausted(t *testing.T) {
	outage := apperrors.Wrap(errors.New("unavailable"), apperrors.KindTransient, apperrors.ErrPoolUnavailable.Message)
	pool, queue, dispatcher, clk, hooks := newTestPool(t, &scriptedRunner{steps: []step{{err: outage}}})
	r := submit(t, dispatcher, models.TierPriority, "u1")
	ctx := context.Background()

	for i := 0; i < models.DefaultMaxAttempts; i++ {
		worked, err := pool.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, worked, "attempt %d", i+1)
		clk.Advance(time.Hour)
	}

	got, err := queue.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestFailed, got.Status)
	assert.True(t, got.Terminal())
	assert.Equal(t, models.DefaultMaxAttempts, got.Attempts)
	assert.Equal(t, string(apperrors.KindTransient), got.ErrorKind)
	assert.Equal(t, "transient: candidate pool unavailable: unavailable", got.LastError)
	require.Len(t, hooks.seen, 1)
	assert.Equal(t, r.ID, hooks.seen[0].ID)
}

func TestAbandonedPriorityRequestIsReaped(t *testing.T) {
	pool, queue, _, clk, hooks := newTestPool(t, &scriptedRunner{steps: []step{{}}})
	ctx := context.Background()

	req := models.NewMatchRequest("r1", "u1", models.TierPriority, clk.Now())
	req.MaxAttempts = 1
	_, _, err := queue.Enqueue(ctx, req)
	require.NoError(t, err)

	// A worker that crashes after leasing.
	_, err = queue.Lease(ctx, clk.Now(), time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	worked, err := pool.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, worked)

	got, err := queue.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestFailed, got.Status)
	require.Len(t, hooks.seen, 1)
}

func TestDrainAndAwait(t *testing.T) {
	runner := &scriptedRunner{steps: []step{{out: models.Outcome{MatchIDs: []string{"m1"}}}}}
	pool, _, dispatcher, _, _ := newTestPool(t, runner)
	ctx := context.Background()

	first := submit(t, dispatcher, models.TierStandard, "u1")
	submit(t, dispatcher, models.TierStandard, "u2")

	pending, err := dispatcher.Await(ctx, first.ID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, pending.Terminal())

	n, err := pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	done, err := dispatcher.Await(ctx, first.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, done.Status)

	_, err = dispatcher.Await(ctx, "missing", time.Second)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
}

func TestRunStopsWithContext(t *testing.T) {
	runner := &scriptedRunner{steps: []step{{out: models.Outcome{MatchIDs: []string{"m1"}}}}}
	queue := services.NewMemoryMatchRequestService()
	dispatcher := NewDispatcher(queue, time.Millisecond, nil, nil)
	pool := NewPool(queue, runner, Options{Concurrency: 3, PollInterval: 5 * time.Millisecond, Lease: time.Minute})

	for _, u := range []string{"a", "b", "c", "d"} {
		submit(t, dispatcher, models.TierPriority, u)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 4
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}
