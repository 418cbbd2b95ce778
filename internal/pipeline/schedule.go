// Package pipeline runs the resolver's background jobs: directory
// reconciliation on an interval and cold-storage archival on a cron
// schedule.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Schedule yields the next run time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) (time.Time, error)
}

// Every is a fixed-interval schedule.
type Every time.Duration

// Next implements Schedule.
func (e Every) Next(after time.Time) (time.Time, error) {
	if e <= 0 {
		return time.Time{}, fmt.Errorf("interval must be positive, got %s", time.Duration(e))
	}
	return after.Add(time.Duration(e)), nil
}

// Cron is a parsed five-field cron expression: minute, hour, day of month,
// month, day of week (0 is Sunday). Each field accepts "*", "n", "a-b" and
// a "/step" suffix, comma separated. As in Vixie cron, a day matches when
// either day field matches if both are restricted.
type Cron struct {
	expr                          string
	minute, hour, dom, month, dow uint64
	domAny, dowAny                bool
}

var cronFields = [5]struct {
	name   string
	lo, hi int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

// ParseCron parses expr.
func ParseCron(expr string) (*Cron, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("cron %q: want %d fields, got %d", expr, len(cronFields), len(parts))
	}
	var set [5]uint64
	for i, f := range cronFields {
		b, err := parseCronField(parts[i], f.lo, f.hi)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s: %w", expr, f.name, err)
		}
		set[i] = b
	}
	return &Cron{
		expr:   expr,
		minute: set[0], hour: set[1], dom: set[2], month: set[3], dow: set[4],
		domAny: parts[2] == "*",
		dowAny: parts[4] == "*",
	}, nil
}

func parseCronField(field string, lo, hi int) (uint64, error) {
	var set uint64
	for _, term := range strings.Split(field, ",") {
		span, stepText, hasStep := strings.Cut(term, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepText)
			if err != nil || n < 1 {
				return 0, fmt.Errorf("bad step in %q", term)
			}
			step = n
		}

		from, to := lo, hi
		if span != "*" {
			a, b, isRange := strings.Cut(span, "-")
			first, err := strconv.Atoi(a)
			if err != nil {
				return 0, fmt.Errorf("bad value %q", span)
			}
			from, to = first, first
			if isRange {
				if to, err = strconv.Atoi(b); err != nil || to < from {
					return 0, fmt.Errorf("bad range %q", span)
				}
			} else if hasStep {
				to = hi
			}
		}
		if from < lo || to > hi {
			return 0, fmt.Errorf("%q outside %d-%d", term, lo, hi)
		}
		for v := from; v <= to; v += step {
			set |= 1 << uint(v)
		}
	}
	if bits.OnesCount64(set) == 0 {
		return 0, fmt.Errorf("empty field %q", field)
	}
	return set, nil
}

func has(set uint64, v int) bool { return set&(1<<uint(v)) != 0 }

func (c *Cron) dayMatches(t time.Time) bool {
	dom, dow := has(c.dom, t.Day()), has(c.dow, int(t.Weekday()))
	switch {
	case c.domAny && c.dowAny:
		return true
	case c.domAny:
		return dow
	case c.dowAny:
		return dom
	}
	return dom || dow
}

// Next implements Schedule. Non-matching months, days and hours are skipped
// whole; an expression that never fires within five years is an error.
func (c *Cron) Next(after time.Time) (time.Time, error) {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		y, mo, d := t.Date()
		switch {
		case !has(c.month, int(mo)):
			t = time.Date(y, mo+1, 1, 0, 0, 0, 0, loc)
		case !c.dayMatches(t):
			t = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
		case !has(c.hour, t.Hour()):
			t = time.Date(y, mo, d, t.Hour()+1, 0, 0, 0, loc)
		case !has(c.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron %q never fires", c.expr)
}

func (c *Cron) String() string { return c.expr }

// NextCronTime returns the first minute after after that matches expr.
func NextCronTime(expr string, after time.Time) (time.Time, error) {
	c, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return c.Next(after)
}

// runScheduled calls fn at every time sched yields until ctx ends, and once
// up front when immediate is set. fn errors are logged, not returned.
func runScheduled(ctx context.Context, sched Schedule, immediate bool, now func() time.Time, logger *slog.Logger, fn func(context.Context) error) error {
	if immediate {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Error("job run failed", slog.String("error", err.Error()))
		}
	}
	for {
		next, err := sched.Next(now())
		if err != nil {
			return err
		}
		wait := next.Sub(now())
		logger.Debug("next job run scheduled", slog.Time("at", next), slog.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Error("job run failed", slog.String("error", err.Error()))
		}
	}
}
