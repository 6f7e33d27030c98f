package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "unityops/pkg/logx"
)

// Workspace is the local filesystem implementation of all four stage
// backends. It roots every artifact under ArtifactsDir:
//
//	generated_scripts/<asset_name>.cs
//	unity_builds/<asset_name>_<asset_id>/
//	trained_models/<asset_name>_<job_id>.onnx
//	model_registry/<registry_id>.json
//
// The Unity editor and mlagents-learn binaries are optional: when a tool
// is not installed the corresponding stage still produces a valid,
// addressable placeholder artifact and marks it Simulated.
type Workspace struct {
	ArtifactsDir     string
	UnityProjectPath string
	UnityEditorPath  string
	MLAgentsBin      string

	log logx.Logger
}

type WorkspaceConfig struct {
	ArtifactsDir     string
	UnityProjectPath string
	UnityEditorPath  string
	MLAgentsBin      string
}

func NewWorkspace(cfg WorkspaceConfig, log logx.Logger) (*Workspace, error) {
	root := strings.TrimSpace(cfg.ArtifactsDir)
	if root == "" {
		root = "./unityops_artifacts"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	ws := &Workspace{
		ArtifactsDir:     root,
		UnityProjectPath: strings.TrimSpace(cfg.UnityProjectPath),
		UnityEditorPath:  strings.TrimSpace(cfg.UnityEditorPath),
		MLAgentsBin:      strings.TrimSpace(cfg.MLAgentsBin),
		log:              log,
	}
	if ws.UnityProjectPath == "" {
		ws.UnityProjectPath = "./UnityProject"
	}
	if ws.UnityEditorPath == "" {
		ws.UnityEditorPath = "Unity"
	}
	if ws.MLAgentsBin == "" {
		ws.MLAgentsBin = "mlagents-learn"
	}
	return ws, nil
}

func (w *Workspace) scriptPath(spec AssetSpec) string {
	return filepath.Join(w.ArtifactsDir, "generated_scripts", spec.Name+".cs")
}

func (w *Workspace) buildDir(spec AssetSpec) string {
	// Namespaced by name AND id so two assets sharing a name cannot collide.
	return filepath.Join(w.ArtifactsDir, "unity_builds", spec.Name+"_"+spec.AssetID)
}

func (w *Workspace) modelPath(job Job) string {
	// Namespaced by job id so re-runs of one asset never overwrite each other.
	return filepath.Join(w.ArtifactsDir, "trained_models", job.Spec.Name+"_"+job.JobID+".onnx")
}

func (w *Workspace) registryPath(registryID string) string {
	return filepath.Join(w.ArtifactsDir, "model_registry", registryID+".json")
}

// writeFile creates parent directories as needed and writes content,
// overwriting any previous artifact at the same path.
func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
