package pipeline

import (
	"context"
	"fmt"

	logx "unityops/pkg/logx"
)

// Generate writes a Unity C# behavior script derived from the spec.
//
// The template is deliberately minimal; swap this for an LLM-backed
// generator without touching the rest of the pipeline.
func (w *Workspace) Generate(ctx context.Context, spec AssetSpec) (ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return ArtifactRef{}, err
	}
	if spec.Name == "" {
		return ArtifactRef{}, fmt.Errorf("generate: asset name is required")
	}

	path := w.scriptPath(spec)
	body := fmt.Sprintf(`using Unity.MLAgents;
using Unity.MLAgents.Actuators;
using Unity.MLAgents.Sensors;

public class %s : Agent
{
    // Auto-generated behavior: %s
    public override void Initialize() { }
    public override void CollectObservations(VectorSensor sensor) { }
    public override void OnActionReceived(ActionBuffers actions) { }
}
`, spec.Name, spec.Description)

	// Same asset name always maps to the same path; re-runs overwrite.
	if err := writeFile(path, []byte(body)); err != nil {
		return ArtifactRef{}, fmt.Errorf("generate %s: %w", spec.Name, err)
	}

	w.log.Debug("behavior script generated",
		logx.String("asset", spec.Name), logx.String("path", path))

	return ArtifactRef{
		Path:    path,
		Summary: fmt.Sprintf("Agent %s: %s", spec.Name, spec.Description),
	}, nil
}
