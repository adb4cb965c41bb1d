package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

const samplePage = `<html><head><title>activity</title></head><body>
<ul id="activity">
<li>2026-08-19 10:15:42 · <a href="/skill/fr/Greetings-2">lesson</a> · 12XP</li>
<li>2026-08-19 21:03:11 practice · 10XPBasics·</li>
<li>2026-08-20 08:45:03 levelled up</li>
<li>2026-08-20 09:02:54 · <a href="/skill/fr/Food">lesson</a> · 15XP</li>
<li>2026-08-20 10:00:00 story · 20XP</li>
</ul></body></html>`

func TestParser_Parse_ExtractsRecords(t *testing.T) {
	result, err := NewParser(discardLogger()).Parse([]byte(samplePage))
	assert.NoError(t, err)

	assert.Len(t, result.Records, 4)
	assert.Equal(t, 1, result.Skipped)

	first := result.Records[0]
	assert.Equal(t, "2026-08-19 10:15:42", first.Timestamp)
	assert.Equal(t, "12", first.XP)
	assert.Equal(t, "lesson", first.Label)
	assert.Equal(t, "Greetings 2", first.UnitHint)
}

func TestParser_Parse_PreservesPageOrder(t *testing.T) {
	result, err := NewParser(discardLogger()).Parse([]byte(samplePage))
	assert.NoError(t, err)

	assert.Equal(t, "2026-08-19 10:15:42", result.Records[0].Timestamp)
	assert.Equal(t, "2026-08-19 21:03:11", result.Records[1].Timestamp)
	assert.Equal(t, "2026-08-20 09:02:54", result.Records[2].Timestamp)
	assert.Equal(t, "2026-08-20 10:00:00", result.Records[3].Timestamp)
}

func TestParser_Parse_SkipsEntriesWithoutXP(t *testing.T) {
	page := `2026-08-20 08:45:03 levelled up
2026-08-20 09:02:54 lesson 15XP`

	result, err := NewParser(discardLogger()).Parse([]byte(page))
	assert.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "15", result.Records[0].XP)
}

func TestParser_Parse_UnitHintFromSkillLink(t *testing.T) {
	page := `2026-08-19 10:15:42 <a href="/skill/de/Essen-und-Trinken">lesson</a> 9XP`

	result, err := NewParser(discardLogger()).Parse([]byte(page))
	assert.NoError(t, err)
	assert.Equal(t, "Essen und Trinken", result.Records[0].UnitHint)
}

func TestParser_Parse_UnitHintFallbackFromTrailer(t *testing.T) {
	result, err := NewParser(discardLogger()).Parse([]byte(samplePage))
	assert.NoError(t, err)

	// No skill link on the second entry; the trailer word is the hint.
	assert.Equal(t, "Basics", result.Records[1].UnitHint)
}

func TestParser_Parse_NoUnitHint(t *testing.T) {
	result, err := NewParser(discardLogger()).Parse([]byte(samplePage))
	assert.NoError(t, err)

	assert.Equal(t, "", result.Records[3].UnitHint)
	assert.Equal(t, "story", result.Records[3].Label)
}

func TestParser_Parse_LabelStripsMarkup(t *testing.T) {
	page := `2026-08-19 10:15:42 · <b>unit</b> <i>review</i> · 40XP`

	result, err := NewParser(discardLogger()).Parse([]byte(page))
	assert.NoError(t, err)
	assert.Equal(t, "unit review", result.Records[0].Label)
}

func TestParser_Parse_IgnoresPreamble(t *testing.T) {
	page := `<h1>Profile of alice, last seen 2026</h1>
2026-08-19 10:15:42 lesson 12XP`

	result, err := NewParser(discardLogger()).Parse([]byte(page))
	assert.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 0, result.Skipped)
}

func TestParser_Parse_PageWithoutTimestamps(t *testing.T) {
	_, err := NewParser(discardLogger()).Parse([]byte("<html>maintenance</html>"))
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestParser_Parse_EmptyPage(t *testing.T) {
	_, err := NewParser(discardLogger()).Parse(nil)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
