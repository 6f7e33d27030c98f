package scheduler

import (
	"fmt"
	"strings"
	"time"

	"unityops/internal/pipeline"
)

// Schedule binds a recurrence expression to a set of asset specs and a
// shared run config. LastRun, once set, only moves forward; the Scheduler
// is the sole mutator while ticks are in flight.
type Schedule struct {
	ID         string
	Expression string
	Assets     []pipeline.AssetSpec
	Run        pipeline.RunConfig
	Enabled    bool
	LastRun    time.Time // zero value means never fired

	timer DueTimer
}

// NewSchedule validates the expression eagerly and returns a schedule with
// its due-time strategy resolved. Enabled defaults to true.
func NewSchedule(id, expression string, assets []pipeline.AssetSpec, run pipeline.RunConfig) (*Schedule, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("schedule id is required")
	}
	timer, err := ParseExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", id, err)
	}
	return &Schedule{
		ID:         id,
		Expression: expression,
		Assets:     assets,
		Run:        run,
		Enabled:    true,
		timer:      timer,
	}, nil
}

// Due reports whether the schedule should fire at now.
//
// Disabled schedules are never due. A schedule that has never fired is
// always due. Otherwise the next fire time computed strictly after LastRun
// must have arrived.
func (s *Schedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastRun.IsZero() {
		return true
	}
	next := s.timer.Next(s.LastRun)
	return !next.After(now)
}

// NextFire returns the next time the schedule would fire, for reporting.
// For a never-fired schedule this is relative to now.
func (s *Schedule) NextFire(now time.Time) time.Time {
	if !s.Enabled {
		return time.Time{}
	}
	if s.LastRun.IsZero() {
		return now
	}
	return s.timer.Next(s.LastRun)
}
