package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"unityops/internal/config"
	"unityops/internal/httpapi"
	"unityops/internal/pipeline"
	"unityops/internal/scheduler"
	"unityops/internal/storage"
	logx "unityops/pkg/logx"
)

// App wires config, logging, storage, the pipeline executor, the scheduler
// and the status API together, and keeps them in sync across config reloads.
type App struct {
	manager *config.Manager
	logSvc  *logx.Service
	log     logx.Logger

	store storage.Store
	sched *scheduler.Scheduler
	api   *httpapi.Server

	poll time.Duration

	wg sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	manager.SetLogger(log.With(logx.String("comp", "config")))
	manager.SetValidator(func(_ context.Context, next *config.Config) error {
		// Reject reloads carrying unparseable schedule expressions before
		// they reach the scheduler.
		_, err := buildSchedules(next)
		return err
	})

	a := &App{
		manager: manager,
		logSvc:  logSvc,
		log:     log,
	}

	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.store = store
	}

	ws, err := pipeline.NewWorkspace(pipeline.WorkspaceConfig{
		ArtifactsDir:     cfg.Pipeline.ArtifactsDir,
		UnityProjectPath: cfg.Pipeline.UnityProjectPath,
		UnityEditorPath:  cfg.Pipeline.UnityEditorPath,
		MLAgentsBin:      cfg.Pipeline.MLAgentsBin,
	}, log.With(logx.String("comp", "pipeline")))
	if err != nil {
		return nil, err
	}

	exec := pipeline.NewWorkspaceExecutor(ws, log.With(logx.String("comp", "executor")),
		pipeline.WithLaunchRate(cfg.Scheduler.LaunchRatePerSec))

	a.sched = scheduler.New(exec, log.With(logx.String("comp", "scheduler")),
		scheduler.WithResultHook(a.recordResult))

	schedules, err := buildSchedules(cfg)
	if err != nil {
		return nil, err
	}
	a.sched.Apply(schedules)

	a.poll, err = config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 30*time.Second)
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.Enabled {
		a.api = &httpapi.Server{
			Addr:  cfg.HTTP.Addr,
			Sched: a.sched,
			Store: a.store,
			Log:   log.With(logx.String("comp", "httpapi")),
		}
	}

	return a, nil
}

// Scheduler exposes the schedule collection, mainly for tests and embedding.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Start launches the poll loop, the config watcher and the status API.
// Everything winds down when ctx is cancelled; call Stop afterwards to
// flush and close resources.
func (a *App) Start(ctx context.Context) {
	if a.api != nil {
		a.api.Start(ctx)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.manager.Watch(ctx)
	}()

	updates := a.manager.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.manager.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.RunForever(ctx, a.poll)
	}()
}

// Wait blocks until all background loops exit.
func (a *App) Wait() { a.wg.Wait() }

func (a *App) Stop() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
}

// applyConfig handles a hot reload. Logging and schedules apply live; poll
// interval and storage/API wiring changes take a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logConfig(cfg.Logging))

	schedules, err := buildSchedules(cfg)
	if err != nil {
		// The watch validator already vetted this; a failure here means the
		// config changed between validation and apply. Keep the old set.
		a.log.Warn("reloaded config rejected", logx.Err(err))
		return
	}
	a.sched.Apply(schedules)
}

// recordResult persists one finished job into the run-history store.
func (a *App) recordResult(ctx context.Context, scheduleID string, job pipeline.Job, res pipeline.JobResult) {
	if a.store == nil {
		return
	}
	rec := storage.RunRecord{
		At:         res.Finished,
		JobID:      res.JobID,
		ScheduleID: scheduleID,
		AssetID:    job.Spec.AssetID,
		AssetName:  job.Spec.Name,
		Status:     res.Status,
		ScriptPath: res.ScriptPath,
		BuildPath:  res.BuildPath,
		ModelPath:  res.ModelPath,
		RegistryID: res.RegistryID,
		Simulated:  res.Simulated,
		Error:      res.Error,
		TookMS:     res.Finished.Sub(res.Started).Milliseconds(),
	}
	if err := a.store.AppendRun(ctx, rec); err != nil {
		a.log.Warn("run record append failed", logx.String("job", res.JobID), logx.Err(err))
	}
}

func logConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console || (!lc.File.Enabled), // always keep at least one sink
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

// buildSchedules turns config schedule blocks into validated schedules.
// Any invalid expression fails the whole set; partial application would
// leave the collection in a state the config no longer describes.
func buildSchedules(cfg *config.Config) ([]*scheduler.Schedule, error) {
	out := make([]*scheduler.Schedule, 0, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		assets := make([]pipeline.AssetSpec, 0, len(sc.Assets))
		for _, ac := range sc.Assets {
			assets = append(assets, pipeline.AssetSpec{
				AssetID:          ac.AssetID,
				Name:             ac.Name,
				AssetType:        ac.AssetType,
				Description:      ac.Description,
				ObservationSpace: ac.ObservationSpace,
				ActionSpace:      ac.ActionSpace,
			})
		}

		run := pipeline.DefaultRunConfig()
		if rc := sc.Run; rc != nil {
			if rc.Algorithm != "" {
				run.Algorithm = rc.Algorithm
			}
			if rc.MaxSteps > 0 {
				run.MaxSteps = rc.MaxSteps
			}
			if rc.NumEnvs > 0 {
				run.NumEnvs = rc.NumEnvs
			}
			if rc.TimeScale > 0 {
				run.TimeScale = rc.TimeScale
			}
			if rc.BatchSize > 0 {
				run.BatchSize = rc.BatchSize
			}
			if rc.BufferSize > 0 {
				run.BufferSize = rc.BufferSize
			}
			if rc.LearningRate > 0 {
				run.LearningRate = rc.LearningRate
			}
			run.OfflineDatasetPath = rc.OfflineDatasetPath
		}

		sch, err := scheduler.NewSchedule(sc.ID, sc.Expression, assets, run)
		if err != nil {
			return nil, err
		}
		if sc.Enabled != nil {
			sch.Enabled = *sc.Enabled
		}
		out = append(out, sch)
	}
	return out, nil
}
