package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	logx "unityops/pkg/logx"
)

// trainerDoc is the ML-Agents trainer configuration document written next
// to every run. Field layout follows the mlagents-learn YAML schema.
type trainerDoc struct {
	Behaviors map[string]trainerBehavior `yaml:"behaviors"`
}

type trainerBehavior struct {
	TrainerType     string          `yaml:"trainer_type"`
	MaxSteps        int             `yaml:"max_steps"`
	Hyperparameters trainerHyperset `yaml:"hyperparameters"`
	DemoPath        string          `yaml:"demo_path,omitempty"`
}

type trainerHyperset struct {
	BatchSize    int     `yaml:"batch_size"`
	BufferSize   int     `yaml:"buffer_size"`
	LearningRate float64 `yaml:"learning_rate"`
}

// runSummary records what a training run did; persisted alongside the model.
type runSummary struct {
	JobID       string    `json:"job_id"`
	Algorithm   string    `json:"algorithm"`
	MaxSteps    int       `json:"max_steps"`
	NumEnvs     int       `json:"num_envs"`
	TimeScale   float64   `json:"time_scale"`
	BuildPath   string    `json:"build_path"`
	Simulated   bool      `json:"simulated"`
	CompletedAt time.Time `json:"completed_at"`
}

func trainerConfig(job Job) trainerDoc {
	cfg := job.Run
	return trainerDoc{
		Behaviors: map[string]trainerBehavior{
			job.Spec.Name: {
				TrainerType: strings.ToLower(cfg.Algorithm),
				MaxSteps:    cfg.MaxSteps,
				Hyperparameters: trainerHyperset{
					BatchSize:    cfg.BatchSize,
					BufferSize:   cfg.BufferSize,
					LearningRate: cfg.LearningRate,
				},
				DemoPath: cfg.OfflineDatasetPath,
			},
		},
	}
}

// Train runs mlagents-learn against the build output.
//
// The model path is namespaced by job id, so retraining the same asset under
// a new job never clobbers an earlier model. When the trainer binary is
// missing a placeholder model is written instead and the artifact is marked
// Simulated.
func (w *Workspace) Train(ctx context.Context, job Job, build ArtifactRef) (ArtifactRef, error) {
	model := w.modelPath(job)
	base := strings.TrimSuffix(model, ".onnx")

	doc, err := yaml.Marshal(trainerConfig(job))
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("train %s: trainer config: %w", job.JobID, err)
	}
	trainerYAML := base + ".trainer.yaml"
	if err := writeFile(trainerYAML, doc); err != nil {
		return ArtifactRef{}, fmt.Errorf("train %s: trainer config: %w", job.JobID, err)
	}

	argv := []string{
		w.MLAgentsBin,
		trainerYAML,
		"--run-id=" + job.Spec.Name + "_" + job.JobID,
		"--env=" + build.Path,
		"--no-graphics",
		fmt.Sprintf("--num-envs=%d", job.Run.NumEnvs),
	}
	ran, err := runOptionalCommand(ctx, w.log, "mlagents training", argv)
	if err != nil {
		return ArtifactRef{}, err
	}

	// The real trainer is expected to drop the model at this path. If it
	// did not (or the stub path ran), write an empty placeholder so the
	// reference is always addressable.
	if _, statErr := os.Stat(model); statErr != nil {
		if err := writeFile(model, nil); err != nil {
			return ArtifactRef{}, fmt.Errorf("train %s: placeholder model: %w", job.JobID, err)
		}
	}

	sum := runSummary{
		JobID:       job.JobID,
		Algorithm:   job.Run.Algorithm,
		MaxSteps:    job.Run.MaxSteps,
		NumEnvs:     job.Run.NumEnvs,
		TimeScale:   job.Run.TimeScale,
		BuildPath:   build.Path,
		Simulated:   !ran,
		CompletedAt: time.Now().UTC(),
	}
	sb, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("train %s: run summary: %w", job.JobID, err)
	}
	if err := writeFile(base+".run.json", sb); err != nil {
		return ArtifactRef{}, fmt.Errorf("train %s: run summary: %w", job.JobID, err)
	}

	w.log.Debug("training finished",
		logx.String("job", job.JobID), logx.String("model", model), logx.Bool("simulated", !ran))

	return ArtifactRef{Path: model, Simulated: !ran}, nil
}
