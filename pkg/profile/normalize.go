package profile

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Fixed difficulty ratios applied when a platform reports only a total.
const (
	EasyRatio   = 0.4
	MediumRatio = 0.4
	HardRatio   = 0.2
)

// DateLayout is the calendar-day key format used in contribution data.
const DateLayout = "2006-01-02"

// EstimateBreakdown splits total using the fixed ratios, flooring each share
// independently. The shares may sum to less than total.
func EstimateBreakdown(total int) (easy, medium, hard int) {
	t := float64(total)
	return int(math.Floor(t * EasyRatio)), int(math.Floor(t * MediumRatio)), int(math.Floor(t * HardRatio))
}

// DayKey returns the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Policy decides what happens when a day is observed more than once.
type Policy int

// Merge policies.
const (
	// FirstWriteWins keeps the earliest observation for a day.
	FirstWriteWins Policy = iota
	// LastWriteWins replaces the count with the latest observation.
	LastWriteWins
	// Accumulate adds every observation to the day's count.
	Accumulate
)

// Heatmap collects per-day counts with unique date keys, remembering the
// order in which each date was first seen.
type Heatmap struct {
	counts map[string]int
	order  []string
	policy Policy
}

// NewHeatmap returns an empty heat map using policy.
func NewHeatmap(policy Policy) *Heatmap {
	return &Heatmap{counts: make(map[string]int), policy: policy}
}

// Observe records count for date according to the heat map's policy.
// It reports whether the stored value changed.
func (h *Heatmap) Observe(date string, count int) bool {
	old, seen := h.counts[date]
	if !seen {
		h.order = append(h.order, date)
		h.counts[date] = count
		return true
	}
	switch h.policy {
	case FirstWriteWins:
		return false
	case LastWriteWins:
		h.counts[date] = count
	case Accumulate:
		h.counts[date] = old + count
	}
	return h.counts[date] != old
}

// Count returns the recorded count for date, or 0.
func (h *Heatmap) Count(date string) int {
	return h.counts[date]
}

// Len returns the number of distinct days.
func (h *Heatmap) Len() int {
	return len(h.order)
}

// Days returns the recorded days in first-seen order.
func (h *Heatmap) Days() []Day {
	days := make([]Day, 0, len(h.order))
	for _, d := range h.order {
		days = append(days, Day{Date: d, Count: h.counts[d]})
	}
	return days
}

// BestEffort runs an optional sub-operation. On failure it logs a warning and
// returns fallback together with the error, so callers can record the
// degradation without aborting.
func BestEffort[T any](ctx context.Context, logger *slog.Logger, name string, fallback T, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "optional lookup failed, using fallback", "lookup", name, "fallback", fallback, "error", err)
		}
		return fallback, err
	}
	return v, nil
}
