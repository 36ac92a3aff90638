package nlu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDate(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// Thursday, June 4 2026, mid-afternoon local time.
	now := time.Date(2026, 6, 4, 15, 30, 0, 0, loc)

	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	tests := []struct {
		name    string
		message string
		want    time.Time
		ok      bool
	}{
		{name: "today", message: "can you do today?", want: day(2026, time.June, 4), ok: true},
		{name: "tomorrow", message: "tomorrow would be great", want: day(2026, time.June, 5), ok: true},
		{name: "tmrw shorthand", message: "tmrw?", want: day(2026, time.June, 5), ok: true},
		{name: "upcoming weekday", message: "how about friday", want: day(2026, time.June, 5), ok: true},
		{name: "same weekday means today", message: "thursday works", want: day(2026, time.June, 4), ok: true},
		{name: "this weekday", message: "this saturday", want: day(2026, time.June, 6), ok: true},
		{name: "next same weekday", message: "next thursday", want: day(2026, time.June, 11), ok: true},
		{name: "next weekday skips a week", message: "next friday", want: day(2026, time.June, 12), ok: true},
		{name: "ordinal later this month", message: "the 20th", want: day(2026, time.June, 20), ok: true},
		{name: "ordinal already past rolls a month", message: "the 3rd", want: day(2026, time.July, 3), ok: true},
		{name: "month and ordinal", message: "aug 2nd", want: day(2026, time.August, 2), ok: true},
		{name: "past month rolls a year", message: "jan 2nd", want: day(2027, time.January, 2), ok: true},
		{name: "bare the-day phrasing", message: "the 15", want: day(2026, time.June, 15), ok: true},

		// The time-of-day guard: anything reading as a time is not a date.
		{name: "clock time", message: "3:00", ok: false},
		{name: "meridiem time", message: "3pm", ok: false},
		{name: "at-hour phrasing", message: "at 3", ok: false},
		{name: "weekday with time still guarded", message: "friday at 3pm", ok: false},

		{name: "no date at all", message: "sounds good", ok: false},
		{name: "empty", message: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractDate(tt.message, now, loc)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestExtractWeekday(t *testing.T) {
	wd, ok := ExtractWeekday("do you have anything on friday instead")
	require.True(t, ok)
	assert.Equal(t, time.Friday, wd)

	wd, ok = ExtractWeekday("what about tues")
	require.True(t, ok)
	assert.Equal(t, time.Tuesday, wd)

	_, ok = ExtractWeekday("whenever works")
	assert.False(t, ok)
}
