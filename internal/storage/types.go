package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one finished training job.
// Keep it compact and schema-stable.
type RunRecord struct {
	At         time.Time `json:"at"`
	JobID      string    `json:"job_id"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	AssetID    string    `json:"asset_id,omitempty"`
	AssetName  string    `json:"asset_name,omitempty"`
	Status     string    `json:"status"`
	ScriptPath string    `json:"script_path,omitempty"`
	BuildPath  string    `json:"build_path,omitempty"`
	ModelPath  string    `json:"model_path,omitempty"`
	RegistryID string    `json:"registry_id,omitempty"`
	Simulated  bool      `json:"simulated,omitempty"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}
