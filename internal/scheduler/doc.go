// Package scheduler owns the recurring-training schedule collection and the
// poll loop that fires due schedules.
//
// # Schedule formats
//
// Each schedule carries one expression, parsed once at construction:
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "55 * * * *" or "0 */5 * * * *".
//   - Cron descriptors: "@hourly", "@daily".
//   - Interval fallback: "@every 1h", "@every 30m", "@every 2days".
//     Intervals are fixed offsets from the last fire time.
//
// Anything else is rejected when the schedule is built, never at tick time.
//
// # Tick model
//
// RunOnce evaluates every schedule independently, expands each due schedule
// into one job per asset spec, dispatches all jobs of the tick concurrently,
// waits for the whole batch, then advances last-run markers. Job failures
// surface only inside the returned results; nothing a job does can abort the
// tick or a sibling schedule. RunForever repeats RunOnce at a fixed poll
// interval and honors context cancellation between ticks.
package scheduler
