package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowplan/internal/store"
	"github.com/rendis/flowplan/pkg/schema"
)

// mockPlanStore satisfies store.PlanStore for scheduler tests.
type mockPlanStore struct {
	store.PlanStore
	mu       sync.Mutex
	cutoffs  []time.Time
	pruned   int64
	pruneErr error
	vacuums  int
}

func (m *mockPlanStore) PrunePlans(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.pruned, m.pruneErr
}

func (m *mockPlanStore) Vacuum(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, st store.PlanStore, cfg Config) *Scheduler {
	t.Helper()
	s, err := NewScheduler(st, cfg, testLogger())
	require.NoError(t, err)
	return s
}

func TestNewSchedulerDefaults(t *testing.T) {
	before := time.Now().UTC()
	s := newTestScheduler(t, &mockPlanStore{}, DefaultConfig())

	assert.Equal(t, []string{JobPrune, JobVacuum}, s.Jobs())

	next, ok := s.NextRun(JobPrune)
	require.True(t, ok)
	assert.True(t, next.After(before))
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())

	_, ok = s.NextRun("missing")
	assert.False(t, ok)
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(&mockPlanStore{}, Config{PruneCron: "not a cron", Retention: time.Hour}, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler(&mockPlanStore{}, Config{PruneCron: "0 3 * * *"}, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler(&mockPlanStore{}, Config{VacuumCron: "* * *"}, testLogger())
	assert.Error(t, err)
}

func TestDisabledJobs(t *testing.T) {
	s := newTestScheduler(t, &mockPlanStore{}, Config{VacuumCron: "0 0 * * *"})
	assert.Equal(t, []string{JobVacuum}, s.Jobs())

	s = newTestScheduler(t, &mockPlanStore{}, Config{})
	assert.Empty(t, s.Jobs())
	assert.Equal(t, 60*time.Second, s.cfg.TickInterval)
}

func TestCalculateNextRun(t *testing.T) {
	s := newTestScheduler(t, &mockPlanStore{}, Config{})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 3 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), next)

	next, err = s.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("bogus", from)
	assert.Error(t, err)
}

func TestTickSkipsNotDueJobs(t *testing.T) {
	ms := &mockPlanStore{}
	s := newTestScheduler(t, ms, DefaultConfig())

	results := s.tick(context.Background())
	assert.Empty(t, results)
	assert.Empty(t, ms.cutoffs)
	assert.Zero(t, ms.vacuums)
}

func TestTickRunsDueJobs(t *testing.T) {
	ms := &mockPlanStore{pruned: 4}
	s := newTestScheduler(t, ms, DefaultConfig())

	future := time.Now().UTC().Add(8 * 24 * time.Hour)
	s.now = func() time.Time { return future }

	results := s.tick(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, JobPrune, results[0].Job)
	assert.Equal(t, int64(4), results[0].Removed)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, JobVacuum, results[1].Job)

	require.Len(t, ms.cutoffs, 1)
	assert.Equal(t, future.Add(-30*24*time.Hour), ms.cutoffs[0])
	assert.Equal(t, 1, ms.vacuums)

	next, _ := s.NextRun(JobPrune)
	assert.True(t, next.After(future))

	// Nothing is due again until the clock passes the new next run.
	assert.Empty(t, s.tick(context.Background()))
}

func TestJobFailureIsReported(t *testing.T) {
	ms := &mockPlanStore{pruneErr: errors.New("disk full")}
	s := newTestScheduler(t, ms, Config{PruneCron: "0 3 * * *", Retention: time.Hour})

	res, err := s.RunNow(context.Background(), JobPrune)
	require.NoError(t, err)
	assert.EqualError(t, res.Err, "disk full")

	// A failed run still advances the schedule.
	next, _ := s.NextRun(JobPrune)
	assert.True(t, next.After(time.Now().UTC()))
}

func TestRunNow(t *testing.T) {
	ms := &mockPlanStore{pruned: 2}
	s := newTestScheduler(t, ms, DefaultConfig())

	res, err := s.RunNow(context.Background(), JobPrune)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Job: JobPrune, Removed: 2}, res)

	_, err = s.RunNow(context.Background(), "compact")
	assert.Error(t, err)
}

func TestDedupPreventsDoubleRun(t *testing.T) {
	ms := &mockPlanStore{}
	s := newTestScheduler(t, ms, DefaultConfig())
	s.now = func() time.Time { return time.Now().UTC().Add(8 * 24 * time.Hour) }

	require.True(t, s.tryAcquire(JobPrune))

	results := s.tick(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, JobVacuum, results[0].Job)
	assert.Empty(t, ms.cutoffs)

	_, err := s.RunNow(context.Background(), JobPrune)
	assert.Error(t, err)

	s.releaseJob(JobPrune)
	_, err = s.RunNow(context.Background(), JobPrune)
	assert.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, &mockPlanStore{}, Config{TickInterval: 10 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestPruneAgainstLibSQL(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now().UTC()
	for id, age := range map[string]time.Duration{
		"stale": 45 * 24 * time.Hour,
		"fresh": time.Hour,
	} {
		rec := store.NewPlanRecord(&schema.ExecutionPlan{ID: id}, "hash-"+id)
		rec.CreatedAt = now.Add(-age)
		require.NoError(t, st.SavePlan(ctx, rec))
	}

	s := newTestScheduler(t, st, DefaultConfig())

	res, err := s.RunNow(ctx, JobPrune)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(1), res.Removed)

	_, err = st.GetPlan(ctx, "stale")
	assert.Error(t, err)
	_, err = st.GetPlan(ctx, "fresh")
	assert.NoError(t, err)

	res, err = s.RunNow(ctx, JobVacuum)
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}
