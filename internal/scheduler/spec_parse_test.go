package scheduler

import (
	"testing"
	"time"
)

func TestParseExpressionVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		interval bool
		every    time.Duration
	}{
		{name: "five field cron", raw: "*/5 * * * *"},
		{name: "six field cron", raw: "0 30 2 * * *"},
		{name: "descriptor", raw: "@hourly"},
		{name: "every duration", raw: "@every 1h", interval: true, every: time.Hour},
		{name: "every compound duration", raw: "@every 2h30m", interval: true, every: 150 * time.Minute},
		{name: "every spelled seconds", raw: "@every 30 seconds", interval: true, every: 30 * time.Second},
		{name: "every spelled days", raw: "@every 2days", interval: true, every: 48 * time.Hour},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			timer, err := ParseExpression(tt.raw)
			if err != nil {
				t.Fatalf("ParseExpression(%q) error: %v", tt.raw, err)
			}
			it, isInterval := timer.(intervalTimer)
			if isInterval != tt.interval {
				t.Fatalf("interval = %v, want %v", isInterval, tt.interval)
			}
			if tt.interval && it.every != tt.every {
				t.Fatalf("every = %v, want %v", it.every, tt.every)
			}
		})
	}
}

func TestParseExpressionInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "@every", "@every banana", "@every -5m", "* * *"} {
		if _, err := ParseExpression(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestIntervalTimerNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	timer := intervalTimer{every: time.Hour}
	if got, want := timer.Next(base), base.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestCronTimerNext(t *testing.T) {
	t.Parallel()
	timer, err := ParseExpression("0 0 * * *")
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
	after := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	next := timer.Next(after)
	if !next.After(after) {
		t.Fatalf("Next = %v, want strictly after %v", next, after)
	}
	if next.Sub(after) > 24*time.Hour {
		t.Fatalf("daily spec fired more than a day out: %v", next)
	}
}
