package config

import (
	"fmt"
	"strings"
)

// Config is the top-level unityops configuration.
//
// The file may be YAML or JSON; YAML is coerced to JSON and both go through
// a strict decoder, so unknown fields are rejected.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// HTTP controls the optional status API server.
	HTTP HTTPConfig `json:"http,omitempty"`

	// Storage controls the optional run-history layer.
	Storage *StorageConfig `json:"storage,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`
	Pipeline  PipelineConfig  `json:"pipeline"`

	// Schedules are applied (upserted by id) on start and on every hot
	// reload; last-run markers survive a reload for ids that persist.
	Schedules []ScheduleConfig `json:"schedules"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // TRACE/DEBUG/INFO/WARN/ERROR
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8750"
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./unityops.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the poll loop and job dispatch.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// PollInterval between ticks. Default "30s".
	PollInterval string `json:"poll_interval,omitempty"`

	// LaunchRatePerSec caps how many pipeline jobs may start per second
	// across one tick. 0 disables the cap.
	LaunchRatePerSec float64 `json:"launch_rate_per_sec,omitempty"`
}

// PipelineConfig points the stage backends at the artifacts root and the
// external tools. Missing tools are tolerated: those stages run their stub
// path and mark results simulated.
type PipelineConfig struct {
	ArtifactsDir     string `json:"artifacts_dir,omitempty"` // default: "./unityops_artifacts"
	UnityProjectPath string `json:"unity_project_path,omitempty"`
	UnityEditorPath  string `json:"unity_editor_path,omitempty"` // default: "Unity"
	MLAgentsBin      string `json:"mlagents_bin,omitempty"`      // default: "mlagents-learn"
}

// ScheduleConfig is one declarative recurring-training schedule.
type ScheduleConfig struct {
	ID         string `json:"id"`
	Expression string `json:"expression"` // cron spec or "@every <interval>"

	// Enabled is a pointer so "omitted" (default true) is distinguishable
	// from an explicit false.
	Enabled *bool `json:"enabled,omitempty"`

	Assets []AssetConfig `json:"assets"`

	// Run overrides training defaults; omitted fields keep the PPO defaults.
	Run *RunConfigBlock `json:"run,omitempty"`
}

type AssetConfig struct {
	AssetID          string         `json:"asset_id"`
	Name             string         `json:"name"`
	AssetType        string         `json:"asset_type,omitempty"`
	Description      string         `json:"description,omitempty"`
	ObservationSpace map[string]any `json:"observation_space,omitempty"`
	ActionSpace      map[string]any `json:"action_space,omitempty"`
}

type RunConfigBlock struct {
	Algorithm          string  `json:"algorithm,omitempty"`
	MaxSteps           int     `json:"max_steps,omitempty"`
	NumEnvs            int     `json:"num_envs,omitempty"`
	TimeScale          float64 `json:"time_scale,omitempty"`
	BatchSize          int     `json:"batch_size,omitempty"`
	BufferSize         int     `json:"buffer_size,omitempty"`
	LearningRate       float64 `json:"learning_rate,omitempty"`
	OfflineDatasetPath string  `json:"offline_dataset_path,omitempty"`
}

// Validate checks structural invariants that don't need the scheduler
// (expression syntax is validated where schedules are built).
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, sch := range c.Schedules {
		id := strings.TrimSpace(sch.ID)
		if id == "" {
			return fmt.Errorf("schedules[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("schedules[%d]: duplicate schedule id %q", i, id)
		}
		seen[id] = true
		if strings.TrimSpace(sch.Expression) == "" {
			return fmt.Errorf("schedule %s: expression is required", id)
		}
		if len(sch.Assets) == 0 {
			return fmt.Errorf("schedule %s: at least one asset is required", id)
		}
		for j, a := range sch.Assets {
			if strings.TrimSpace(a.AssetID) == "" {
				return fmt.Errorf("schedule %s: assets[%d]: asset_id is required", id, j)
			}
			if strings.TrimSpace(a.Name) == "" {
				return fmt.Errorf("schedule %s: assets[%d]: name is required", id, j)
			}
		}
	}
	return nil
}
