package report

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TREND CHART
// ══════════════════════════════════════════════════════════════════════════════

const chartHeight = 8

// RenderTrend draws the trailing lessons-per-day window as an ASCII chart,
// oldest day on the left.
func RenderTrend(window []progress.DayLessons) string {
	if len(window) == 0 {
		return "no activity in the window"
	}
	values := make([]float64, len(window))
	for i, day := range window {
		values[i] = float64(day.Lessons)
	}
	return asciigraph.Plot(values,
		asciigraph.Height(chartHeight),
		asciigraph.Caption(fmt.Sprintf("lessons/day, last %d days", len(window))),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// TERMINAL STATUS
// ══════════════════════════════════════════════════════════════════════════════

// RenderStatus formats the snapshot for terminal output: the same figures
// the markdown document carries, plus the trend chart.
func RenderStatus(snap *progress.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course progress, %s\n", timeutil.FormatDateStr(snap.GeneratedFor))
	fmt.Fprintf(&b, "  Units:      %d / %d (%d remaining)\n",
		snap.CompletedUnits, snap.TotalUnits, snap.RemainingUnits)
	fmt.Fprintf(&b, "  Lessons:    %.0f remaining, %d lifetime\n",
		snap.LessonsRemaining, snap.TotalLifetimeLessons)
	fmt.Fprintf(&b, "  Pace:       required %.1f/day, actual %.1f/day, %s\n",
		snap.RequiredDailyPace, snap.ActualDailyPace, paceLine(snap))
	fmt.Fprintf(&b, "  Today:      %d of %d lessons\n",
		snap.DailyLessonsCompleted, snap.DailyGoalLessons)
	fmt.Fprintf(&b, "  Projection: %s\n", projectionLine(snap))
	fmt.Fprintf(&b, "  Confidence: %s\n", snap.Confidence)
	b.WriteString("\n")
	b.WriteString(RenderTrend(snap.Window))
	b.WriteString("\n")
	return b.String()
}
