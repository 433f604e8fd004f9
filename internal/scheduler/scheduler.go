// Package scheduler runs periodic maintenance against the plan store:
// pruning plans past their retention window and compacting the database.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowplan/internal/store"
)

// Job names.
const (
	JobPrune  = "prune"
	JobVacuum = "vacuum"
)

// Config controls which maintenance jobs run and when. An empty cron
// expression disables the job.
type Config struct {
	PruneCron  string
	Retention  time.Duration
	VacuumCron string

	// TickInterval is how often due jobs are checked. Defaults to 60s.
	TickInterval time.Duration
}

// DefaultConfig prunes plans older than 30 days every night and vacuums weekly.
func DefaultConfig() Config {
	return Config{
		PruneCron:    "0 3 * * *",
		Retention:    30 * 24 * time.Hour,
		VacuumCron:   "30 3 * * 0",
		TickInterval: 60 * time.Second,
	}
}

// RunResult reports the outcome of one job run.
type RunResult struct {
	Job     string
	Removed int64
	Err     error
}

type job struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) (int64, error)
	nextRun  time.Time
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	store  store.PlanStore
	cfg    Config
	parser cron.Parser
	logger *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	jobsMu sync.Mutex
	jobs   []*job

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewScheduler validates the cron expressions in cfg and returns a Scheduler.
func NewScheduler(st store.PlanStore, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	s := &Scheduler{
		store:    st,
		cfg:      cfg,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}

	if cfg.PruneCron != "" {
		if cfg.Retention <= 0 {
			return nil, fmt.Errorf("prune job needs a positive retention, got %s", cfg.Retention)
		}
		if err := s.addJob(JobPrune, cfg.PruneCron, s.prune); err != nil {
			return nil, err
		}
	}
	if cfg.VacuumCron != "" {
		if err := s.addJob(JobVacuum, cfg.VacuumCron, s.vacuum); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) addJob(name, expr string, run func(context.Context) (int64, error)) error {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q for job %s: %w", expr, name, err)
	}
	s.jobs = append(s.jobs, &job{
		name:     name,
		schedule: schedule,
		run:      run,
		nextRun:  schedule.Next(s.now()),
	})
	return nil
}

// Jobs returns the configured job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.name
	}
	return names
}

// NextRun returns when the named job runs next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.nextRun, true
		}
	}
	return time.Time{}, false
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Any("jobs", s.Jobs()))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run time has passed.
func (s *Scheduler) tick(ctx context.Context) []RunResult {
	now := s.now()

	s.jobsMu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
		}
	}
	s.jobsMu.Unlock()

	results := make([]RunResult, 0, len(due))
	for _, j := range due {
		if !s.tryAcquire(j.name) {
			continue
		}
		results = append(results, s.runJob(ctx, j, now))
		s.releaseJob(j.name)
	}
	return results
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (RunResult, error) {
	s.jobsMu.Lock()
	var target *job
	for _, j := range s.jobs {
		if j.name == name {
			target = j
		}
	}
	s.jobsMu.Unlock()
	if target == nil {
		return RunResult{}, fmt.Errorf("unknown job %q", name)
	}
	if !s.tryAcquire(name) {
		return RunResult{}, fmt.Errorf("job %q is already running", name)
	}
	defer s.releaseJob(name)
	return s.runJob(ctx, target, s.now()), nil
}

func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) RunResult {
	removed, err := j.run(ctx)

	s.jobsMu.Lock()
	j.nextRun = j.schedule.Next(now)
	s.jobsMu.Unlock()

	if err != nil {
		s.logger.Error("maintenance job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("maintenance job finished",
			slog.String("job", j.name),
			slog.Int64("removed", removed),
		)
	}
	return RunResult{Job: j.name, Removed: removed, Err: err}
}

func (s *Scheduler) prune(ctx context.Context) (int64, error) {
	return s.store.PrunePlans(ctx, s.now().Add(-s.cfg.Retention))
}

func (s *Scheduler) vacuum(ctx context.Context) (int64, error) {
	return 0, s.store.Vacuum(ctx)
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
