package feed

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAGE PARSER
// ══════════════════════════════════════════════════════════════════════════════

var (
	// timestampPattern anchors record extraction: every activity entry leads
	// with a full feed timestamp.
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

	// xpPattern matches the XP amount glued to the entry trailer ("52XP").
	xpPattern = regexp.MustCompile(`(\d+)XP`)

	// skillHrefPattern pulls the unit name out of a linked skill path,
	// "/skill/fr/Greetings-2" style.
	skillHrefPattern = regexp.MustCompile(`/skill/[^/"'\s]+/([^/"'\s?#]+)`)

	// xpTrailerPattern is the fallback unit hint for entries without a skill
	// link: the word glued between the XP amount and the separator dot.
	xpTrailerPattern = regexp.MustCompile(`\d+XP([A-Za-z]+)·`)

	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// maxLabelLen bounds the label carried off one entry. Labels are metadata;
// anything longer is page noise, not signal.
const maxLabelLen = 80

// ParseResult carries everything extracted from one page.
type ParseResult struct {
	// Records in page order.
	Records []session.RawRecord

	// Skipped counts entries dropped for a missing XP amount.
	Skipped int
}

// Parser extracts raw activity records from fetched page text.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a page parser.
func NewParser(log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{logger: log}
}

// Parse splits the page at timestamp boundaries and extracts one record per
// segment. An entry missing its XP amount is counted and skipped; the batch
// never aborts. Only a page with no timestamps at all is an error, because
// that means the page shape changed under us.
func (p *Parser) Parse(page []byte) (*ParseResult, error) {
	text := string(page)
	marks := timestampPattern.FindAllStringIndex(text, -1)
	if len(marks) == 0 {
		return nil, shared.ErrFeedInvalidResponse
	}

	result := &ParseResult{Records: make([]session.RawRecord, 0, len(marks))}
	for i, mark := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		segment := text[mark[0]:end]
		timestamp := text[mark[0]:mark[1]]

		xp := xpPattern.FindStringSubmatchIndex(segment)
		if xp == nil {
			result.Skipped++
			p.logger.Debug("activity entry without XP amount, skipping",
				slog.String("timestamp", timestamp))
			continue
		}

		result.Records = append(result.Records, session.RawRecord{
			Timestamp: timestamp,
			XP:        segment[xp[2]:xp[3]],
			Label:     extractLabel(segment[:xp[0]], timestamp),
			UnitHint:  extractUnitHint(segment),
		})
	}

	p.logger.Debug("activity page parsed",
		slog.Int("records", len(result.Records)),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// extractUnitHint prefers the linked skill path, with hyphens restored to
// spaces; entries without a link fall back to the trailer word.
func extractUnitHint(segment string) string {
	if m := skillHrefPattern.FindStringSubmatch(segment); m != nil {
		return strings.TrimSpace(strings.ReplaceAll(m[1], "-", " "))
	}
	if m := xpTrailerPattern.FindStringSubmatch(segment); m != nil {
		return m[1]
	}
	return ""
}

// extractLabel reduces the entry text before the XP amount to a short
// human-readable label: markup stripped, timestamp and separators removed.
func extractLabel(prefix, timestamp string) string {
	s := tagPattern.ReplaceAllString(prefix, " ")
	s = strings.TrimPrefix(s, timestamp)
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ·")
	if r := []rune(s); len(r) > maxLabelLen {
		s = string(r[:maxLabelLen])
	}
	return s
}
