package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCron_FieldForms(t *testing.T) {
	cs, err := ParseCron("*/15 9-17 1 6 0,3")
	assert.NoError(t, err)

	assert.Equal(t, []int{0, 15, 30, 45}, cs.minutes)
	assert.Equal(t, []int{9, 10, 11, 12, 13, 14, 15, 16, 17}, cs.hours)
	assert.Equal(t, []int{1}, cs.days)
	assert.Equal(t, []int{6}, cs.months)
	assert.Equal(t, []int{0, 3}, cs.weekdays)
}

func TestParseCron_StepFromValue(t *testing.T) {
	cs, err := ParseCron("5/20 * * * *")
	assert.NoError(t, err)
	assert.Equal(t, []int{5, 25, 45}, cs.minutes)
}

func TestParseCron_RangeWithStep(t *testing.T) {
	cs, err := ParseCron("10-50/20 * * * *")
	assert.NoError(t, err)
	assert.Equal(t, []int{10, 30, 50}, cs.minutes)
}

func TestParseCron_ListDeduplicates(t *testing.T) {
	cs, err := ParseCron("30,0,30 * * * *")
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 30}, cs.minutes)
}

func TestParseCron_Rejects(t *testing.T) {
	_, err := ParseCron("* * * *") // four fields
	assert.Error(t, err)

	_, err = ParseCron("60 * * * *") // minute out of range
	assert.Error(t, err)

	_, err = ParseCron("*/0 * * * *") // zero step
	assert.Error(t, err)

	_, err = ParseCron("30-10 * * * *") // reversed range
	assert.Error(t, err)

	_, err = ParseCron("a * * * *")
	assert.Error(t, err)

	_, err = ParseCron("* * 0 * *") // day of month starts at 1
	assert.Error(t, err)
}

func TestCronSchedule_NextDaily(t *testing.T) {
	daily := MustParseCron("30 3 * * *")

	afterDawn := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 21, 3, 30, 0, 0, time.UTC), daily.Next(afterDawn))

	beforeDawn := time.Date(2026, 8, 20, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 20, 3, 30, 0, 0, time.UTC), daily.Next(beforeDawn))
}

func TestCronSchedule_NextSkipsToWeekday(t *testing.T) {
	sundays := MustParseCron("0 21 * * 0")

	tuesday := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	next := sundays.Next(tuesday)

	assert.Equal(t, time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestCronSchedule_NextNeverReturnsSameMinute(t *testing.T) {
	every30 := MustParseCron("*/30 * * * *")

	midSlot := time.Date(2026, 8, 20, 10, 5, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC), every30.Next(midSlot))

	onSlot := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), every30.Next(onSlot))
}

func TestCronSchedule_String(t *testing.T) {
	assert.Equal(t, "30 3 * * *", MustParseCron("30 3 * * *").String())
}

func TestMustParseCron_PanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { MustParseCron("not a cron") })
}
