package tui

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// formatPrice formats a price as X.XX, or "-" for zero.
func formatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// formatChange formats a fractional change as "+X.XX%" / "-X.XX%".
// Drops decimals for moves of 100% or more to keep width compact.
func formatChange(c float64) string {
	pct := c * 100
	switch {
	case math.Abs(pct) >= 100:
		return fmt.Sprintf("%+.0f%%", pct)
	default:
		return fmt.Sprintf("%+.2f%%", pct)
	}
}

// formatVolume formats share volume with comma separators.
func formatVolume(v int64) string {
	return humanize.Comma(v)
}

// formatTurnover formats a dollar value with B/M/K suffixes.
func formatTurnover(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// formatAge renders t relative to now ("3 hours ago").
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
