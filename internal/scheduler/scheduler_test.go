package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"unityops/internal/pipeline"
	logx "unityops/pkg/logx"
)

// fakeExecutor records dispatched jobs and answers per a canned plan.
type fakeExecutor struct {
	mu   sync.Mutex
	jobs []pipeline.Job

	failFor map[string]error // keyed by asset id
}

func (f *fakeExecutor) Execute(ctx context.Context, job pipeline.Job) pipeline.JobResult {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	if err, ok := f.failFor[job.Spec.AssetID]; ok {
		return pipeline.JobResult{JobID: job.JobID, Status: pipeline.StatusFailed, Error: err.Error()}
	}
	return pipeline.JobResult{JobID: job.JobID, Status: pipeline.StatusSuccess}
}

func (f *fakeExecutor) dispatched() []pipeline.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Job(nil), f.jobs...)
}

func mustSchedule(t *testing.T, id, expr string, assets []pipeline.AssetSpec) *Schedule {
	t.Helper()
	sch, err := NewSchedule(id, expr, assets, pipeline.DefaultRunConfig())
	if err != nil {
		t.Fatalf("NewSchedule(%s): %v", id, err)
	}
	return sch
}

func TestRunOnceDispatchesOneJobPerAsset(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{}
	s := New(exec, logx.Nop())

	due := mustSchedule(t, "due", "@every 1h", []pipeline.AssetSpec{
		{AssetID: "a1", Name: "One"},
		{AssetID: "a2", Name: "Two"},
		{AssetID: "a3", Name: "Three"},
	})
	due.LastRun = now.Add(-2 * time.Hour)

	notDue := mustSchedule(t, "not-due", "@every 1h", []pipeline.AssetSpec{{AssetID: "b1", Name: "Other"}})
	notDue.LastRun = now.Add(-10 * time.Minute)

	s.Add(due)
	s.Add(notDue)

	results := s.RunOnce(context.Background(), now)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if got := len(exec.dispatched()); got != 3 {
		t.Fatalf("dispatched = %d, want 3", got)
	}

	snap := s.Snapshot(now)
	for _, info := range snap {
		switch info.ID {
		case "due":
			if !info.LastRun.Equal(now) {
				t.Fatalf("due.LastRun = %v, want %v", info.LastRun, now)
			}
		case "not-due":
			if info.LastRun.Equal(now) {
				t.Fatal("not-due schedule must not advance LastRun")
			}
		}
	}
}

func TestRunOnceJobIDsUniqueAcrossSchedules(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{}
	s := New(exec, logx.Nop())

	// Same asset id in both schedules, firing in the same tick second.
	s.Add(mustSchedule(t, "alpha", "@every 1h", []pipeline.AssetSpec{{AssetID: "shared", Name: "A"}}))
	s.Add(mustSchedule(t, "beta", "@every 1h", []pipeline.AssetSpec{{AssetID: "shared", Name: "B"}}))
	// One schedule carrying a duplicate asset id twice.
	s.Add(mustSchedule(t, "gamma", "@every 1h", []pipeline.AssetSpec{
		{AssetID: "dup", Name: "C1"},
		{AssetID: "dup", Name: "C2"},
	}))

	results := s.RunOnce(context.Background(), now)
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	ids := map[string]bool{}
	for _, r := range results {
		if ids[r.JobID] {
			t.Fatalf("duplicate job id %q in one tick", r.JobID)
		}
		ids[r.JobID] = true
	}
}

func TestRunOnceFailureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{failFor: map[string]error{"bad": errors.New("backend down")}}
	s := New(exec, logx.Nop())

	s.Add(mustSchedule(t, "mixed", "@every 1h", []pipeline.AssetSpec{
		{AssetID: "bad", Name: "Doomed"},
		{AssetID: "good", Name: "Fine"},
	}))

	results := s.RunOnce(context.Background(), now)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	var failed, succeeded int
	for _, r := range results {
		if r.Failed() {
			failed++
			if r.Error == "" {
				t.Fatal("failed result must carry an error description")
			}
		} else {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("failed=%d succeeded=%d, want 1/1", failed, succeeded)
	}

	// The schedule still advanced: failure is not a scheduling error.
	snap := s.Snapshot(now)
	if len(snap) != 1 || !snap[0].LastRun.Equal(now) {
		t.Fatalf("LastRun = %+v, want advance to %v", snap, now)
	}
}

func TestRunOnceSkipsEverythingWhenNothingDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{}
	s := New(exec, logx.Nop())

	sch := mustSchedule(t, "idle", "@every 1h", testAssets())
	sch.LastRun = now.Add(-time.Minute)
	s.Add(sch)

	if results := s.RunOnce(context.Background(), now); results != nil {
		t.Fatalf("results = %v, want nil", results)
	}
	if got := len(exec.dispatched()); got != 0 {
		t.Fatalf("dispatched = %d, want 0", got)
	}
}

func TestAddUpsertsAndRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := New(&fakeExecutor{}, logx.Nop())

	s.Add(mustSchedule(t, "job", "@every 1h", testAssets()))
	replacement := mustSchedule(t, "job", "@every 2h", testAssets())
	s.Add(replacement)

	snap := s.Snapshot(now)
	if len(snap) != 1 {
		t.Fatalf("schedules = %d, want 1 after upsert", len(snap))
	}
	if snap[0].Expression != "@every 2h" {
		t.Fatalf("expression = %q, want replacement to win", snap[0].Expression)
	}

	s.Remove("job")
	s.Remove("job") // absent: no-op
	if snap := s.Snapshot(now); len(snap) != 0 {
		t.Fatalf("schedules = %d, want 0", len(snap))
	}
}

func TestApplyPreservesLastRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := New(&fakeExecutor{}, logx.Nop())

	old := mustSchedule(t, "keep", "@every 1h", testAssets())
	old.LastRun = now.Add(-10 * time.Minute)
	s.Add(old)
	s.Add(mustSchedule(t, "drop", "@every 1h", testAssets()))

	s.Apply([]*Schedule{
		mustSchedule(t, "keep", "@every 2h", testAssets()),
		mustSchedule(t, "new", "@every 1h", testAssets()),
	})

	snap := s.Snapshot(now)
	if len(snap) != 2 {
		t.Fatalf("schedules = %d, want 2", len(snap))
	}
	for _, info := range snap {
		switch info.ID {
		case "keep":
			if !info.LastRun.Equal(old.LastRun) {
				t.Fatalf("keep.LastRun = %v, want preserved %v", info.LastRun, old.LastRun)
			}
		case "new":
			if !info.LastRun.IsZero() {
				t.Fatalf("new.LastRun = %v, want zero", info.LastRun)
			}
		default:
			t.Fatalf("unexpected schedule %q", info.ID)
		}
	}
}

func TestFire(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{}
	s := New(exec, logx.Nop())
	s.Add(mustSchedule(t, "manual", "@every 1h", testAssets()))

	results, err := s.Fire(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if !strings.HasPrefix(results[0].JobID, "manual-a1-") {
		t.Fatalf("job id = %q, want manual-a1- prefix", results[0].JobID)
	}

	if _, err := s.Fire(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown schedule")
	}
}

func TestResultHookSeesEveryJob(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{}

	var mu sync.Mutex
	got := map[string]string{} // job id -> schedule id
	hook := func(_ context.Context, scheduleID string, job pipeline.Job, res pipeline.JobResult) {
		mu.Lock()
		got[res.JobID] = scheduleID
		mu.Unlock()
		if job.JobID != res.JobID {
			t.Errorf("hook job id mismatch: %q vs %q", job.JobID, res.JobID)
		}
	}

	s := New(exec, logx.Nop(), WithResultHook(hook))
	s.Add(mustSchedule(t, "hooked", "@every 1h", []pipeline.AssetSpec{
		{AssetID: "a1", Name: "One"},
		{AssetID: "a2", Name: "Two"},
	}))

	s.RunOnce(context.Background(), now)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("hook saw %d jobs, want 2", len(got))
	}
	for id, sched := range got {
		if sched != "hooked" {
			t.Fatalf("job %q attributed to %q, want hooked", id, sched)
		}
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(&fakeExecutor{}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not stop after cancellation")
	}
}
