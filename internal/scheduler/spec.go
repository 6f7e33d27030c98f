package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DueTimer computes the next fire time strictly after a reference instant.
// The implementation is chosen once, when the expression is parsed.
type DueTimer interface {
	Next(after time.Time) time.Time
}

type cronTimer struct {
	sched cron.Schedule
}

func (t cronTimer) Next(after time.Time) time.Time { return t.sched.Next(after) }

type intervalTimer struct {
	every time.Duration
}

func (t intervalTimer) Next(after time.Time) time.Time { return after.Add(t.every) }

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var intervalRe = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)

// ParseExpression resolves a schedule expression into its due-time strategy.
//
// "@every ..." always takes the interval path; everything else must be a
// valid cron spec or descriptor. Unparseable expressions are a configuration
// error surfaced to the caller; schedules are never silently treated as
// never-due.
func ParseExpression(raw string) (DueTimer, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}

	if rest, ok := strings.CutPrefix(expr, "@every"); ok {
		every, err := parseInterval(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval expression %q: %w", raw, err)
		}
		return intervalTimer{every: every}, nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", raw, err)
	}
	return cronTimer{sched: sched}, nil
}

// parseInterval accepts Go duration strings ("1h", "2h30m") and the
// spelled-out form "<N><unit>" with unit in seconds/minutes/hours/days.
func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("missing interval")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive")
		}
		return d, nil
	}

	m := intervalRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, fmt.Errorf("unrecognized interval %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("interval count must be a positive integer")
	}

	var unit time.Duration
	switch m[2] {
	case "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown interval unit %q", m[2])
	}
	return time.Duration(n) * unit, nil
}
