package pipeline

import (
	"context"
	"time"
)

// AssetSpec describes a Unity behavior asset to generate, build and train.
// Immutable once constructed; safe to share between schedules and jobs.
type AssetSpec struct {
	AssetID          string         `json:"asset_id"`
	Name             string         `json:"name"`
	AssetType        string         `json:"asset_type"`
	Description      string         `json:"description"`
	ObservationSpace map[string]any `json:"observation_space,omitempty"`
	ActionSpace      map[string]any `json:"action_space,omitempty"`
}

// RunConfig holds the ML-Agents training knobs shared by all jobs spawned
// from one schedule. Immutable value object.
type RunConfig struct {
	Algorithm          string  `json:"algorithm"`
	MaxSteps           int     `json:"max_steps"`
	NumEnvs            int     `json:"num_envs"`
	TimeScale          float64 `json:"time_scale"`
	BatchSize          int     `json:"batch_size"`
	BufferSize         int     `json:"buffer_size"`
	LearningRate       float64 `json:"learning_rate"`
	OfflineDatasetPath string  `json:"offline_dataset_path,omitempty"`
}

// DefaultRunConfig mirrors the PPO defaults used by the trainer templates.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Algorithm:    "PPO",
		MaxSteps:     1_000_000,
		NumEnvs:      16,
		TimeScale:    20.0,
		BatchSize:    1024,
		BufferSize:   10240,
		LearningRate: 3e-4,
	}
}

// Job is one executable training run. Created fresh per dispatch, never reused.
type Job struct {
	JobID string
	Spec  AssetSpec
	Run   RunConfig
}

// ArtifactRef points at an artifact produced by a stage.
type ArtifactRef struct {
	// Path is a real, addressable filesystem path under the artifacts root.
	Path string
	// Summary is an optional human-readable description of the content.
	Summary string
	// Simulated is true when the backing tool was unavailable and the
	// artifact is a placeholder produced by the stub path.
	Simulated bool
}

// JobResult is the outcome of one job. Exactly one of the success references
// or Error is populated.
type JobResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"` // "success" or "failed"

	ScriptPath string `json:"script_path,omitempty"`
	BuildPath  string `json:"build_path,omitempty"`
	ModelPath  string `json:"model_path,omitempty"`
	RegistryID string `json:"registry_id,omitempty"`

	// Simulated is true when at least one stage ran its stub path instead of
	// the real external tool.
	Simulated bool `json:"simulated,omitempty"`

	Error string `json:"error,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func (r JobResult) Failed() bool { return r.Status == StatusFailed }

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Backend contracts for the four pipeline stages. Each stage may block on
// I/O; within one job the executor invokes them strictly in order.

type GenerateBackend interface {
	// Generate writes a behavior script for the spec and returns its reference.
	// Re-running with the same asset name overwrites the previous output.
	Generate(ctx context.Context, spec AssetSpec) (ArtifactRef, error)
}

type BuildBackend interface {
	// Build produces a headless environment build from the generated script
	// and persists a manifest next to it.
	Build(ctx context.Context, spec AssetSpec, script ArtifactRef) (ArtifactRef, error)
}

type TrainBackend interface {
	// Train runs the training tool against the build and returns the model
	// artifact. The returned path is always real and addressable, even when
	// the tool was unavailable and a placeholder was produced.
	Train(ctx context.Context, job Job, build ArtifactRef) (ArtifactRef, error)
}

type RegistryBackend interface {
	// Register persists a registry record for the trained model and returns
	// its id. Ids are unique even under duplicate job submission.
	Register(ctx context.Context, job Job, model ArtifactRef) (string, error)
}
