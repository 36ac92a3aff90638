package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type fakeFreeBusy struct {
	busy  []BusyBlock
	err   error
	calls int
}

func (f *fakeFreeBusy) BusyBlocks(_ context.Context, _, _ time.Time) ([]BusyBlock, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.busy, nil
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func newTestGenerator(t *testing.T, fb *fakeFreeBusy, now time.Time, opts ...GeneratorOption) *Generator {
	t.Helper()
	opts = append([]GeneratorOption{WithClock(func() time.Time { return now })}, opts...)
	return NewGenerator(fb, "America/Chicago", logging.New("error"), opts...)
}

func TestGenerateOffersPairFromEarliestDays(t *testing.T) {
	loc := chicago(t)
	// Thursday, June 4 2026.
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)
	g := newTestGenerator(t, &fakeFreeBusy{}, now)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.NoError(t, err)
	require.Len(t, slots, 2)

	// Default lead time skips three days: the first open day is Sunday the 7th.
	assert.Equal(t, "Sunday at 12:00 PM", slots[0].Label)
	assert.Equal(t, "Sunday at 3:00 PM", slots[1].Label)
	assert.True(t, slots[0].Start.Before(slots[1].Start))
}

func TestGenerateSkipsBusyWindows(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)

	// Sunday's noon window is fully booked; an overlap at the edge of the
	// afternoon window knocks that one out too.
	fb := &fakeFreeBusy{busy: []BusyBlock{
		{Start: At(loc, 2026, time.June, 7, 12, 0), End: At(loc, 2026, time.June, 7, 15, 0)},
		{Start: At(loc, 2026, time.June, 7, 17, 30), End: At(loc, 2026, time.June, 7, 19, 0)},
	}}
	g := newTestGenerator(t, fb, now)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Monday at 12:00 PM", slots[0].Label)
	assert.Equal(t, "Monday at 3:00 PM", slots[1].Label)
}

func TestGenerateZeroOffsetDropsElapsedWindows(t *testing.T) {
	loc := chicago(t)
	// 4 PM: the noon window is already over, the 3-6 window is still running.
	now := time.Date(2026, 6, 4, 16, 0, 0, 0, loc)
	g := newTestGenerator(t, &fakeFreeBusy{}, now)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: 0, MaxSlots: 2})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	// The in-progress window survives; the elapsed noon window does not.
	assert.Equal(t, "Thursday at 3:00 PM", slots[0].Label)
	assert.Equal(t, "Friday at 12:00 PM", slots[1].Label)
}

func TestGenerateExcludesWeekdays(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)
	g := newTestGenerator(t, &fakeFreeBusy{}, now)

	slots, err := g.Generate(context.Background(), SearchOptions{
		StartOffsetDays: -1,
		ExcludeDays:     map[string]bool{"sunday": true},
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Monday at 12:00 PM", slots[0].Label)
}

func TestGenerateFallbackWidensRange(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)

	// Everything in the primary 5-day range is busy; day 9 out is open.
	fb := &fakeFreeBusy{busy: []BusyBlock{
		{Start: At(loc, 2026, time.June, 7, 0, 0), End: At(loc, 2026, time.June, 12, 0, 0)},
	}}
	g := newTestGenerator(t, fb, now)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Friday at 12:00 PM", slots[0].Label)
	assert.GreaterOrEqual(t, fb.calls, 2, "expected the fallback range query")
}

func TestGenerateEmptyWhenFullyBooked(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)

	fb := &fakeFreeBusy{busy: []BusyBlock{
		{Start: At(loc, 2026, time.June, 1, 0, 0), End: At(loc, 2026, time.July, 31, 0, 0)},
	}}
	g := newTestGenerator(t, fb, now)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateForcedDate(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)
	g := newTestGenerator(t, &fakeFreeBusy{}, now)

	forced := time.Date(2026, 6, 13, 0, 0, 0, 0, loc) // a Saturday
	slots, err := g.Generate(context.Background(), SearchOptions{ForcedDate: forced})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Saturday at 12:00 PM", slots[0].Label)
	assert.Equal(t, "Saturday at 3:00 PM", slots[1].Label)
}

func TestGenerateForcedDateBackfillsSecondSlot(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)

	// Saturday afternoon is booked, so only the noon window survives there;
	// the pair is completed from the next open day.
	fb := &fakeFreeBusy{busy: []BusyBlock{
		{Start: At(loc, 2026, time.June, 13, 15, 0), End: At(loc, 2026, time.June, 13, 18, 0)},
	}}
	g := newTestGenerator(t, fb, now)

	forced := time.Date(2026, 6, 13, 0, 0, 0, 0, loc)
	slots, err := g.Generate(context.Background(), SearchOptions{ForcedDate: forced})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Saturday at 12:00 PM", slots[0].Label)
	assert.Equal(t, "Sunday at 12:00 PM", slots[1].Label)
}

func TestGenerateForcedDateFullyBookedStaysEmpty(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)

	fb := &fakeFreeBusy{busy: []BusyBlock{
		{Start: At(loc, 2026, time.June, 13, 0, 0), End: At(loc, 2026, time.June, 14, 0, 0)},
	}}
	g := newTestGenerator(t, fb, now)

	forced := time.Date(2026, 6, 13, 0, 0, 0, 0, loc)
	slots, err := g.Generate(context.Background(), SearchOptions{ForcedDate: forced})
	require.NoError(t, err)
	// A fully booked requested day does not borrow other days; the caller
	// treats the empty result as "that day is gone".
	assert.Empty(t, slots)
}

func TestGenerateFreeBusyError(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)
	fb := &fakeFreeBusy{err: errors.New("calendar down")}
	g := newTestGenerator(t, fb, now)

	_, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free/busy")
}

func TestCustomWindowsAndStartOffset(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 6, 4, 9, 0, 0, 0, loc)
	g := newTestGenerator(t, &fakeFreeBusy{}, now,
		WithWindows([]Window{{StartHour: 9, EndHour: 11}}),
		WithStartOffset(1),
	)

	slots, err := g.Generate(context.Background(), SearchOptions{StartOffsetDays: -1})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Friday at 9:00 AM", slots[0].Label)
	assert.Equal(t, "Saturday at 9:00 AM", slots[1].Label)
}

func TestOverlaps(t *testing.T) {
	loc := chicago(t)
	a1 := At(loc, 2026, time.June, 7, 12, 0)
	a2 := At(loc, 2026, time.June, 7, 15, 0)

	assert.True(t, Overlaps(a1, a2, a1.Add(-time.Hour), a1.Add(time.Hour)))
	assert.True(t, Overlaps(a1, a2, a1.Add(time.Hour), a2.Add(time.Hour)))
	// Touching endpoints do not overlap: [12,15) vs [15,18).
	assert.False(t, Overlaps(a1, a2, a2, a2.Add(3*time.Hour)))
	assert.False(t, Overlaps(a1, a2, a1.Add(-2*time.Hour), a1))
}
