package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	logx "unityops/pkg/logx"
)

// buildManifest is persisted next to every build output so downstream
// tooling can trace a binary back to the script that produced it.
type buildManifest struct {
	AssetID    string    `json:"asset_id"`
	AssetName  string    `json:"asset_name"`
	AssetType  string    `json:"asset_type"`
	ScriptPath string    `json:"script_path"`
	Simulated  bool      `json:"simulated"`
	BuiltAt    time.Time `json:"built_at"`
}

// Build produces a headless Linux build of the asset's environment.
//
// When the Unity editor is not installed, the stage still creates the build
// directory, a placeholder binary and a valid manifest, and marks the
// artifact Simulated.
func (w *Workspace) Build(ctx context.Context, spec AssetSpec, script ArtifactRef) (ArtifactRef, error) {
	dir := w.buildDir(spec)
	binary := filepath.Join(dir, spec.Name)

	argv := []string{
		w.UnityEditorPath,
		"-quit",
		"-batchmode",
		"-projectPath", w.UnityProjectPath,
		"-executeMethod", "BuildScript.BuildLinuxHeadless",
		"-buildOutput", binary,
		"-assetScript", script.Path,
	}
	ran, err := runOptionalCommand(ctx, w.log, "unity build", argv)
	if err != nil {
		return ArtifactRef{}, err
	}
	if !ran {
		if err := writeFile(binary, nil); err != nil {
			return ArtifactRef{}, fmt.Errorf("build %s: placeholder: %w", spec.Name, err)
		}
	}

	m := buildManifest{
		AssetID:    spec.AssetID,
		AssetName:  spec.Name,
		AssetType:  spec.AssetType,
		ScriptPath: script.Path,
		Simulated:  !ran,
		BuiltAt:    time.Now().UTC(),
	}
	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("build %s: manifest: %w", spec.Name, err)
	}
	if err := writeFile(filepath.Join(dir, "build_manifest.json"), mb); err != nil {
		return ArtifactRef{}, fmt.Errorf("build %s: manifest: %w", spec.Name, err)
	}

	w.log.Debug("environment built",
		logx.String("asset", spec.Name), logx.String("path", binary), logx.Bool("simulated", !ran))

	return ArtifactRef{Path: binary, Simulated: !ran}, nil
}
