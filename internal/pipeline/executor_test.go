package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	logx "unityops/pkg/logx"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(WorkspaceConfig{ArtifactsDir: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}

func testJob(id string) Job {
	return Job{
		JobID: id,
		Spec: AssetSpec{
			AssetID:     "a1",
			Name:        "SimpleAgent",
			AssetType:   "behavior",
			Description: "Reach target",
		},
		Run: DefaultRunConfig(),
	}
}

func TestExecuteProducesAllArtifacts(t *testing.T) {
	t.Parallel()
	ws := testWorkspace(t)
	exec := NewWorkspaceExecutor(ws, logx.Nop())

	res := exec.Execute(context.Background(), testJob("job-1"))
	if res.Failed() {
		t.Fatalf("job failed: %s", res.Error)
	}
	if res.JobID != "job-1" {
		t.Fatalf("job id = %q", res.JobID)
	}

	wantFiles := []string{
		filepath.Join(ws.ArtifactsDir, "generated_scripts", "SimpleAgent.cs"),
		filepath.Join(ws.ArtifactsDir, "unity_builds", "SimpleAgent_a1", "build_manifest.json"),
		filepath.Join(ws.ArtifactsDir, "trained_models", "SimpleAgent_job-1.onnx"),
		filepath.Join(ws.ArtifactsDir, "trained_models", "SimpleAgent_job-1.trainer.yaml"),
		filepath.Join(ws.ArtifactsDir, "trained_models", "SimpleAgent_job-1.run.json"),
	}
	for _, path := range wantFiles {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing artifact %q: %v", path, err)
		}
	}

	if !strings.HasPrefix(res.RegistryID, "vertex-model-job-1-") {
		t.Fatalf("registry id = %q, want vertex-model-job-1- prefix", res.RegistryID)
	}
	record := filepath.Join(ws.ArtifactsDir, "model_registry", res.RegistryID+".json")
	if _, err := os.Stat(record); err != nil {
		t.Fatalf("missing registry record: %v", err)
	}

	// No Unity editor or trainer on the test machine: stub paths ran.
	if !res.Simulated {
		t.Fatal("expected simulated result without external tools installed")
	}
}

func TestExecuteIsOverwriteSafePerAssetName(t *testing.T) {
	t.Parallel()
	ws := testWorkspace(t)
	exec := NewWorkspaceExecutor(ws, logx.Nop())

	first := exec.Execute(context.Background(), testJob("job-1"))
	second := exec.Execute(context.Background(), testJob("job-2"))
	if first.Failed() || second.Failed() {
		t.Fatalf("unexpected failure: %q / %q", first.Error, second.Error)
	}

	// Same script path both times; distinct models per job.
	if first.ScriptPath != second.ScriptPath {
		t.Fatalf("script paths differ: %q vs %q", first.ScriptPath, second.ScriptPath)
	}
	if first.ModelPath == second.ModelPath {
		t.Fatalf("model paths collide across jobs: %q", first.ModelPath)
	}
}

func TestRegistryIDsUniqueForDuplicateJobSubmission(t *testing.T) {
	t.Parallel()
	ws := testWorkspace(t)
	exec := NewWorkspaceExecutor(ws, logx.Nop())

	a := exec.Execute(context.Background(), testJob("same-id"))
	b := exec.Execute(context.Background(), testJob("same-id"))
	if a.Failed() || b.Failed() {
		t.Fatalf("unexpected failure: %q / %q", a.Error, b.Error)
	}
	if a.RegistryID == b.RegistryID {
		t.Fatalf("registry ids collide: %q", a.RegistryID)
	}
}

// failingTrainer stands in for a broken training backend.
type failingTrainer struct{}

func (failingTrainer) Train(ctx context.Context, job Job, build ArtifactRef) (ArtifactRef, error) {
	return ArtifactRef{}, errors.New("training backend unavailable")
}

func TestExecuteFoldsStageErrorIntoResult(t *testing.T) {
	t.Parallel()
	ws := testWorkspace(t)
	exec := NewExecutor(ws, ws, failingTrainer{}, ws, logx.Nop())

	res := exec.Execute(context.Background(), testJob("doomed"))
	if !res.Failed() {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Error, "training backend unavailable") {
		t.Fatalf("error = %q, want backend error folded in", res.Error)
	}
	// Failure results carry no success references.
	if res.ScriptPath != "" || res.BuildPath != "" || res.ModelPath != "" || res.RegistryID != "" {
		t.Fatalf("failure result carries references: %+v", res)
	}
}

func TestConcurrentJobsDoNotInterfere(t *testing.T) {
	t.Parallel()
	ws := testWorkspace(t)

	// One executor with a broken trainer, one healthy; both against the
	// same artifacts root, simulating a mixed tick.
	broken := NewExecutor(ws, ws, failingTrainer{}, ws, logx.Nop())
	healthy := NewWorkspaceExecutor(ws, logx.Nop())

	var wg sync.WaitGroup
	var bad, good JobResult
	wg.Add(2)
	go func() {
		defer wg.Done()
		bad = broken.Execute(context.Background(), testJob("bad-job"))
	}()
	go func() {
		defer wg.Done()
		good = healthy.Execute(context.Background(), testJob("good-job"))
	}()
	wg.Wait()

	if !bad.Failed() {
		t.Fatal("broken executor should fail")
	}
	if good.Failed() {
		t.Fatalf("healthy job affected by sibling failure: %s", good.Error)
	}
	if _, err := os.Stat(good.ModelPath); err != nil {
		t.Fatalf("healthy job artifact missing: %v", err)
	}
}

func TestTrainerConfigDocument(t *testing.T) {
	t.Parallel()
	job := testJob("job-9")
	job.Run.Algorithm = "SAC"
	job.Run.OfflineDatasetPath = "/data/demos.demo"

	doc := trainerConfig(job)
	b, ok := doc.Behaviors["SimpleAgent"]
	if !ok {
		t.Fatalf("behaviors missing asset entry: %+v", doc.Behaviors)
	}
	if b.TrainerType != "sac" {
		t.Fatalf("trainer_type = %q, want lowercased algorithm", b.TrainerType)
	}
	if b.DemoPath != "/data/demos.demo" {
		t.Fatalf("demo_path = %q", b.DemoPath)
	}
	if b.Hyperparameters.BatchSize != job.Run.BatchSize {
		t.Fatalf("batch_size = %d, want %d", b.Hyperparameters.BatchSize, job.Run.BatchSize)
	}
}
