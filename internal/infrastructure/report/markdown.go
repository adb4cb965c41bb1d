// Package report writes progress into the operator-facing artifacts: the
// tracked markdown document and the terminal.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARKDOWN UPDATER
// ══════════════════════════════════════════════════════════════════════════════

// Trend block markers. Everything between them is regenerated on every run;
// everything outside them belongs to the operator.
const (
	trendOpen  = "<!-- trend -->"
	trendClose = "<!-- /trend -->"
)

var trendPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(trendOpen) + `.*?` + regexp.QuoteMeta(trendClose))

// statLine is one rewritable line of the stats section.
type statLine struct {
	name    string
	prefix  string
	pattern *regexp.Regexp
	render  func(u *MarkdownUpdater, snap *progress.Snapshot) string
}

func line(name, prefix string, render func(u *MarkdownUpdater, snap *progress.Snapshot) string) statLine {
	return statLine{
		name:    name,
		prefix:  prefix,
		pattern: regexp.MustCompile(`(?m)^(` + regexp.QuoteMeta(prefix) + `).*$`),
		render:  render,
	}
}

var statLines = []statLine{
	line("units_completed", "- **Units completed**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return fmt.Sprintf("%d / %d", s.CompletedUnits, s.TotalUnits)
		}),
	line("lessons_remaining", "- **Lessons remaining**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return fmt.Sprintf("%.0f", s.LessonsRemaining)
		}),
	line("required_pace", "- **Required pace**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return fmt.Sprintf("%.1f lessons/day", s.RequiredDailyPace)
		}),
	line("actual_pace", "- **Actual pace (7-day)**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return fmt.Sprintf("%.1f lessons/day", s.ActualDailyPace)
		}),
	line("daily_time", "- **Daily time**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return formatDailyTime(s.RequiredDailyPace * u.config.MinutesPerLesson)
		}),
	line("pace_status", "- **Pace**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return paceLine(s)
		}),
	line("projected_finish", "- **Projected finish**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return projectionLine(s)
		}),
	line("last_updated", "- **Last updated**: ",
		func(u *MarkdownUpdater, s *progress.Snapshot) string {
			return timeutil.FormatDateStr(s.GeneratedFor)
		}),
}

// UpdaterConfig configures the markdown updater.
type UpdaterConfig struct {
	// Path is the progress document location.
	Path string

	// MinutesPerLesson converts the required pace into a time estimate.
	MinutesPerLesson float64

	// Logger receives fail-soft warnings.
	Logger *slog.Logger
}

// MarkdownUpdater rewrites the stat lines of the progress document in place.
// The document belongs to the operator: unknown content is preserved, and a
// line whose pattern is missing is warned about and left alone, never
// recreated elsewhere in the file.
type MarkdownUpdater struct {
	config UpdaterConfig
	logger *slog.Logger
}

// NewMarkdownUpdater creates the updater.
func NewMarkdownUpdater(config UpdaterConfig) *MarkdownUpdater {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MarkdownUpdater{config: config, logger: config.Logger}
}

// Path returns the document location.
func (u *MarkdownUpdater) Path() string {
	return u.config.Path
}

// Update rewrites the stat lines and the trend block from the snapshot.
// A missing document is created from the built-in skeleton.
func (u *MarkdownUpdater) Update(snap *progress.Snapshot) error {
	data, err := os.ReadFile(u.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		u.logger.Info("progress document missing, creating it",
			slog.String("path", u.config.Path))
		return u.writeFresh(snap)
	}
	if err != nil {
		return fmt.Errorf("read progress document: %w", err)
	}

	text := string(data)
	for _, l := range statLines {
		if !l.pattern.MatchString(text) {
			u.logger.Warn("stat line not found in progress document, leaving it alone",
				slog.String("line", l.name))
			continue
		}
		text = l.pattern.ReplaceAllString(text, "${1}"+l.render(u, snap))
	}

	if trendPattern.MatchString(text) {
		text = trendPattern.ReplaceAllString(text, trendBlock(snap))
	} else {
		u.logger.Warn("trend markers not found in progress document, chart skipped")
	}

	if err := os.WriteFile(u.config.Path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write progress document: %w", err)
	}
	return nil
}

// writeFresh lays out a new progress document with every stat line and the
// trend block in their expected places.
func (u *MarkdownUpdater) writeFresh(snap *progress.Snapshot) error {
	var b strings.Builder
	b.WriteString("# Course Progress\n\n## Stats\n\n")
	for _, l := range statLines {
		b.WriteString(l.prefix)
		b.WriteString(l.render(u, snap))
		b.WriteString("\n")
	}
	b.WriteString("\n## Trend\n\n")
	b.WriteString(trendBlock(snap))
	b.WriteString("\n")

	if err := os.WriteFile(u.config.Path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write progress document: %w", err)
	}
	return nil
}

func trendBlock(snap *progress.Snapshot) string {
	return trendOpen + "\n```text\n" + RenderTrend(snap.Window) + "\n```\n" + trendClose
}

// ══════════════════════════════════════════════════════════════════════════════
// LINE FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

func paceLine(snap *progress.Snapshot) string {
	delta := snap.ActualDailyPace - snap.RequiredDailyPace
	switch {
	case snap.Pace == progress.PaceBehind:
		return fmt.Sprintf("⚠️ BEHIND by %.1f lessons/day", -delta)
	case delta > 0.05:
		return fmt.Sprintf("✅ AHEAD by %.1f lessons/day", delta)
	default:
		return "🎯 ON TRACK"
	}
}

func projectionLine(snap *progress.Snapshot) string {
	if !snap.ProjectionDefined {
		return "not enough recent activity to project"
	}
	return fmt.Sprintf("%s (%s)",
		timeutil.FormatDateStr(snap.ProjectedCompletion), monthsPhrase(snap.MonthsDelta))
}

func monthsPhrase(delta float64) string {
	switch {
	case math.Abs(delta) < 0.05:
		return "right on the goal date"
	case delta < 0:
		return fmt.Sprintf("%.1f months early", -delta)
	default:
		return fmt.Sprintf("%.1f months late", delta)
	}
}

// formatDailyTime renders a minutes-per-day estimate as "~H hours M minutes".
func formatDailyTime(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 1 {
		return "under a minute"
	}
	h, m := total/60, total%60
	switch {
	case h == 0:
		return fmt.Sprintf("~%d %s", m, plural(m, "minute"))
	case m == 0:
		return fmt.Sprintf("~%d %s", h, plural(h, "hour"))
	default:
		return fmt.Sprintf("~%d %s %d %s", h, plural(h, "hour"), m, plural(m, "minute"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
