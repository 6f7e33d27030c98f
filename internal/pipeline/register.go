package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	logx "unityops/pkg/logx"
)

// registryRecord is the on-disk model registry entry.
type registryRecord struct {
	RegistryID   string    `json:"registry_id"`
	JobID        string    `json:"job_id"`
	DisplayName  string    `json:"display_name"`
	ModelPath    string    `json:"model_path"`
	Algorithm    string    `json:"algorithm"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Register persists a registry record for the trained model.
//
// The id embeds the job id for traceability plus a short random
// disambiguator, so even a duplicate submission of the same job id yields
// a distinct registry entry.
func (w *Workspace) Register(ctx context.Context, job Job, model ArtifactRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	registryID := fmt.Sprintf("vertex-model-%s-%s", job.JobID, uuid.NewString()[:8])
	rec := registryRecord{
		RegistryID:   registryID,
		JobID:        job.JobID,
		DisplayName:  fmt.Sprintf("unity-%s-%s", job.Spec.Name, time.Now().UTC().Format("20060102150405")),
		ModelPath:    model.Path,
		Algorithm:    job.Run.Algorithm,
		RegisteredAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("register %s: %w", job.JobID, err)
	}
	if err := writeFile(w.registryPath(registryID), b); err != nil {
		return "", fmt.Errorf("register %s: %w", job.JobID, err)
	}

	w.log.Debug("model registered",
		logx.String("job", job.JobID), logx.String("registry_id", registryID))

	return registryID, nil
}
