package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"unityops/internal/pipeline"
	logx "unityops/pkg/logx"
)

// Executor runs one job to completion. Implementations must fold all stage
// failures into the result instead of returning them.
type Executor interface {
	Execute(ctx context.Context, job pipeline.Job) pipeline.JobResult
}

// ResultHook observes every finished job. Called after the job completes,
// from the dispatching goroutine; keep it cheap or hand off internally.
type ResultHook func(ctx context.Context, scheduleID string, job pipeline.Job, res pipeline.JobResult)

type Option func(*Scheduler)

func WithResultHook(fn ResultHook) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

// Scheduler owns the schedule collection and drives the poll loop.
// The collection is explicit instance state; there is no ambient registry.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*Schedule

	exec     Executor
	log      logx.Logger
	onResult ResultHook
}

func New(exec Executor, log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		schedules: map[string]*Schedule{},
		exec:      exec,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add upserts the schedule by id. The expression was already validated by
// NewSchedule, so registration cannot fail here.
func (s *Scheduler) Add(sch *Schedule) {
	s.mu.Lock()
	s.schedules[sch.ID] = sch
	s.mu.Unlock()
	s.log.Debug("schedule registered",
		logx.String("id", sch.ID), logx.String("expr", sch.Expression),
		logx.Int("assets", len(sch.Assets)), logx.Bool("enabled", sch.Enabled))
}

// Remove drops the schedule. No-op when the id is unknown.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	_, ok := s.schedules[id]
	delete(s.schedules, id)
	s.mu.Unlock()
	if ok {
		s.log.Debug("schedule removed", logx.String("id", id))
	}
}

// SetEnabled toggles a schedule. Returns false when the id is unknown.
func (s *Scheduler) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return false
	}
	sch.Enabled = enabled
	return true
}

// Apply replaces the schedule set with next, preserving last-run markers of
// schedules that keep their id. Used by config hot reload.
func (s *Scheduler) Apply(next []*Schedule) {
	s.mu.Lock()
	fresh := make(map[string]*Schedule, len(next))
	for _, sch := range next {
		if prev, ok := s.schedules[sch.ID]; ok {
			sch.LastRun = prev.LastRun
		}
		fresh[sch.ID] = sch
	}
	dropped := len(s.schedules) - len(fresh)
	s.schedules = fresh
	s.mu.Unlock()
	s.log.Info("schedules applied", logx.Int("count", len(next)), logx.Int("dropped", max(dropped, 0)))
}

type firing struct {
	sch  *Schedule
	jobs []pipeline.Job
}

// RunOnce is one scheduler tick: evaluate due-ness for every schedule,
// expand due schedules into jobs (one per asset), dispatch the whole batch
// concurrently, wait for it, then advance last-run markers to now.
//
// Failures never escape as errors; they live inside the returned results.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) []pipeline.JobResult {
	s.mu.Lock()
	var fired []firing
	seen := map[string]int{}
	for _, sch := range s.schedules {
		if !sch.Due(now) {
			continue
		}
		f := firing{sch: sch}
		for _, spec := range sch.Assets {
			f.jobs = append(f.jobs, pipeline.Job{
				JobID: uniqueJobID(seen, sch.ID, spec.AssetID, now),
				Spec:  spec,
				Run:   sch.Run,
			})
		}
		fired = append(fired, f)
	}
	s.mu.Unlock()

	if len(fired) == 0 {
		return nil
	}
	// Stable ordering of the result list; dispatch order itself carries no
	// guarantee.
	sort.Slice(fired, func(i, j int) bool { return fired[i].sch.ID < fired[j].sch.ID })

	total := 0
	for _, f := range fired {
		total += len(f.jobs)
	}
	s.log.Info("tick firing",
		logx.Int("schedules", len(fired)), logx.Int("jobs", total), logx.Time("now", now))

	// Fan out every job of the tick, then barrier-join.
	results := make([]pipeline.JobResult, total)
	var wg sync.WaitGroup
	idx := 0
	for _, f := range fired {
		for _, job := range f.jobs {
			wg.Add(1)
			go func(slot int, scheduleID string, job pipeline.Job) {
				defer wg.Done()
				res := s.exec.Execute(ctx, job)
				results[slot] = res
				if s.onResult != nil {
					s.onResult(ctx, scheduleID, job, res)
				}
			}(idx, f.sch.ID, job)
			idx++
		}
	}
	wg.Wait()

	s.mu.Lock()
	for _, f := range fired {
		// LastRun only moves forward even if a caller hands RunOnce an
		// older clock than a previous tick saw.
		if now.After(f.sch.LastRun) {
			f.sch.LastRun = now
		}
	}
	s.mu.Unlock()

	return results
}

// Fire runs one schedule immediately, bypassing the due check. The last-run
// marker still advances so the regular cadence restarts from this firing.
func (s *Scheduler) Fire(ctx context.Context, id string) ([]pipeline.JobResult, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	sch, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown schedule %q", id)
	}
	seen := map[string]int{}
	jobs := make([]pipeline.Job, 0, len(sch.Assets))
	for _, spec := range sch.Assets {
		jobs = append(jobs, pipeline.Job{
			JobID: uniqueJobID(seen, sch.ID, spec.AssetID, now),
			Spec:  spec,
			Run:   sch.Run,
		})
	}
	s.mu.Unlock()

	results := make([]pipeline.JobResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(slot int, job pipeline.Job) {
			defer wg.Done()
			res := s.exec.Execute(ctx, job)
			results[slot] = res
			if s.onResult != nil {
				s.onResult(ctx, id, job, res)
			}
		}(i, job)
	}
	wg.Wait()

	s.mu.Lock()
	if now.After(sch.LastRun) {
		sch.LastRun = now
	}
	s.mu.Unlock()

	return results, nil
}

// RunForever polls at the given interval until ctx is cancelled.
// Cancellation takes effect between ticks; in-flight jobs run to completion.
func (s *Scheduler) RunForever(ctx context.Context, poll time.Duration) {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	s.log.Info("scheduler started", logx.Duration("poll", poll))
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx, time.Now().UTC())
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// uniqueJobID derives the deterministic job id and de-duplicates collisions
// within one tick with a sequence suffix.
func uniqueJobID(seen map[string]int, scheduleID, assetID string, now time.Time) string {
	id := fmt.Sprintf("%s-%s-%d", scheduleID, assetID, now.Unix())
	n := seen[id]
	seen[id] = n + 1
	if n > 0 {
		id = fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

// ---- reporting ----

type ScheduleInfo struct {
	ID         string    `json:"id"`
	Expression string    `json:"expression"`
	Enabled    bool      `json:"enabled"`
	Assets     int       `json:"assets"`
	LastRun    time.Time `json:"last_run,omitzero"`
	NextFire   time.Time `json:"next_fire,omitzero"`
}

// Snapshot returns the schedule collection for status reporting, sorted by id.
func (s *Scheduler) Snapshot(now time.Time) []ScheduleInfo {
	s.mu.Lock()
	out := make([]ScheduleInfo, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, ScheduleInfo{
			ID:         sch.ID,
			Expression: sch.Expression,
			Enabled:    sch.Enabled,
			Assets:     len(sch.Assets),
			LastRun:    sch.LastRun,
			NextFire:   sch.NextFire(now),
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
