package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	logx "unityops/pkg/logx"
)

// Executor drives one job through the four stages in order.
//
// Execute never returns a Go error for stage failures; any failure is folded
// into the JobResult so concurrent sibling jobs are unaffected. The only
// shared state between concurrent Execute calls is the artifacts root, whose
// paths are partitioned by asset/job identifiers.
type Executor struct {
	gen   GenerateBackend
	build BuildBackend
	train TrainBackend
	reg   RegistryBackend

	log logx.Logger

	// limiter caps pipeline launches per second. Spawning the Unity editor
	// is expensive; a wide tick should not start every job at once.
	limiter *rate.Limiter
}

type ExecutorOption func(*Executor)

// WithLaunchRate limits how many jobs per second may begin executing.
// Zero or negative disables the cap.
func WithLaunchRate(perSec float64) ExecutorOption {
	return func(e *Executor) {
		if perSec > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// NewExecutor builds an executor from the four stage backends.
// A *Workspace satisfies all four.
func NewExecutor(gen GenerateBackend, build BuildBackend, train TrainBackend, reg RegistryBackend, log logx.Logger, opts ...ExecutorOption) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Executor{gen: gen, build: build, train: train, reg: reg, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWorkspaceExecutor wires all four stages to one local workspace.
func NewWorkspaceExecutor(ws *Workspace, log logx.Logger, opts ...ExecutorOption) *Executor {
	return NewExecutor(ws, ws, ws, ws, log, opts...)
}

// Execute runs the job end to end and reports the outcome.
func (e *Executor) Execute(ctx context.Context, job Job) JobResult {
	res := JobResult{JobID: job.JobID, Started: time.Now().UTC()}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.fail(job, res, err)
		}
	}

	log := e.log.With(logx.String("job", job.JobID), logx.String("asset", job.Spec.Name))
	log.Info("job started")

	script, err := e.gen.Generate(ctx, job.Spec)
	if err != nil {
		return e.fail(job, res, err)
	}
	res.ScriptPath = script.Path

	build, err := e.build.Build(ctx, job.Spec, script)
	if err != nil {
		return e.fail(job, res, err)
	}
	res.BuildPath = build.Path

	model, err := e.train.Train(ctx, job, build)
	if err != nil {
		return e.fail(job, res, err)
	}
	res.ModelPath = model.Path

	registryID, err := e.reg.Register(ctx, job, model)
	if err != nil {
		return e.fail(job, res, err)
	}
	res.RegistryID = registryID

	res.Status = StatusSuccess
	res.Simulated = script.Simulated || build.Simulated || model.Simulated
	res.Finished = time.Now().UTC()

	log.Info("job finished",
		logx.Duration("took", res.Finished.Sub(res.Started)),
		logx.Bool("simulated", res.Simulated))
	return res
}

func (e *Executor) fail(job Job, res JobResult, err error) JobResult {
	res.Status = StatusFailed
	res.Error = err.Error()
	// A failed job carries no success references.
	res.ScriptPath, res.BuildPath, res.ModelPath, res.RegistryID = "", "", "", ""
	res.Simulated = false
	res.Finished = time.Now().UTC()

	e.log.Warn("job failed",
		logx.String("job", job.JobID), logx.String("asset", job.Spec.Name), logx.Err(err))
	return res
}
