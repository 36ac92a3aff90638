package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Window is one entry of the daily catalog, expressed as local wall-clock
// start/end. Windows never span midnight.
type Window struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// DefaultWindows is the reference catalog: two 3-hour windows per day.
var DefaultWindows = []Window{
	{StartHour: 12, EndHour: 15},
	{StartHour: 15, EndHour: 18},
}

const (
	// maxOffered caps how many slots a single turn presents.
	maxOffered = 2

	// backfillDays bounds the forward search when a forced date yields only
	// one slot and we borrow a second from a later day.
	backfillDays = 14

	// DefaultStartOffsetDays skips today and the following two days so the
	// operator always has lead time.
	DefaultStartOffsetDays = 3
)

// FreeBusySource answers a free/busy query for the configured resource.
type FreeBusySource interface {
	BusyBlocks(ctx context.Context, rangeStart, rangeEnd time.Time) ([]BusyBlock, error)
}

// Generator enumerates offerable appointment windows against a free/busy
// feed. It is stateless between calls; all cross-turn memory lives with the
// caller.
type Generator struct {
	freeBusy      FreeBusySource
	loc           *time.Location
	windows       []Window
	defaultOffset int
	logger        *logging.Logger
	now           func() time.Time
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithWindows overrides the daily window catalog.
func WithWindows(windows []Window) GeneratorOption {
	return func(g *Generator) {
		if len(windows) > 0 {
			g.windows = windows
		}
	}
}

// WithStartOffset overrides the default lead-time offset applied when a
// search does not name its own.
func WithStartOffset(days int) GeneratorOption {
	return func(g *Generator) {
		if days >= 0 {
			g.defaultOffset = days
		}
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator builds a Generator for the business timezone.
func NewGenerator(freeBusy FreeBusySource, timezone string, logger *logging.Logger, opts ...GeneratorOption) *Generator {
	if freeBusy == nil {
		panic("schedule: free/busy source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &Generator{
		freeBusy:      freeBusy,
		loc:           Location(timezone),
		windows:       DefaultWindows,
		defaultOffset: DefaultStartOffsetDays,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SearchOptions shape one generation request.
type SearchOptions struct {
	// DaysPrimary and DaysFallback are the two search ranges; the fallback
	// range is the superset retried when the primary range yields fewer than
	// two slots. Zero values take the defaults.
	DaysPrimary  int
	DaysFallback int

	// StartOffsetDays is how many days from now the search begins. Negative
	// means "use the default lead-time offset"; zero starts today.
	StartOffsetDays int

	// ForcedDate, when non-zero, restricts the search to that calendar date
	// first, backfilling a second slot from later days if exactly one
	// survives.
	ForcedDate time.Time

	// ExcludeDays suppresses whole weekdays, lowercase names ("saturday").
	ExcludeDays map[string]bool

	// MaxSlots caps the result; zero means the standard pair.
	MaxSlots int
}

func (o *SearchOptions) normalize() {
	if o.DaysPrimary <= 0 {
		o.DaysPrimary = 5
	}
	if o.DaysFallback < o.DaysPrimary {
		o.DaysFallback = o.DaysPrimary * 2
	}
	if o.MaxSlots <= 0 || o.MaxSlots > maxOffered {
		o.MaxSlots = maxOffered
	}
}

// Generate returns 0..MaxSlots offerable slots, most imminent first. An
// empty result is a valid outcome, not an error: the caller is expected to
// fall back to an open-ended question.
func (g *Generator) Generate(ctx context.Context, opts SearchOptions) ([]Slot, error) {
	opts.normalize()
	now := g.now()

	if !opts.ForcedDate.IsZero() {
		return g.generateForDate(ctx, now, opts)
	}

	offset := opts.StartOffsetDays
	if offset < 0 {
		offset = g.defaultOffset
	}

	slots, err := g.searchRange(ctx, now, offset, opts.DaysPrimary, opts.ExcludeDays, opts.MaxSlots)
	if err != nil {
		return nil, err
	}
	if len(slots) >= opts.MaxSlots {
		return slots, nil
	}

	// Fewer than the full pair survived the primary range; widen to the
	// fallback range, which re-covers the primary days.
	slots, err = g.searchRange(ctx, now, offset, opts.DaysFallback, opts.ExcludeDays, opts.MaxSlots)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		g.logger.Info("no availability in search window",
			"days_fallback", opts.DaysFallback, "offset", offset)
	}
	return slots, nil
}

// generateForDate searches the forced date, then borrows later days to fill
// the pair when exactly one slot survives.
func (g *Generator) generateForDate(ctx context.Context, now time.Time, opts SearchOptions) ([]Slot, error) {
	day := opts.ForcedDate.In(g.loc)
	dayStart := At(g.loc, day.Year(), day.Month(), day.Day(), 0, 0)
	rangeEnd := dayStart.AddDate(0, 0, backfillDays+1)

	busy, err := g.freeBusy.BusyBlocks(ctx, dayStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("schedule: free/busy query failed: %w", err)
	}

	slots := g.slotsForDay(dayStart, now, busy, nil, opts.MaxSlots)
	if len(slots) == 0 || len(slots) >= opts.MaxSlots {
		return slots, nil
	}

	// Exactly one slot on the requested day: extend forward day-by-day so
	// the presentation still carries two options.
	for i := 1; i <= backfillDays && len(slots) < opts.MaxSlots; i++ {
		next := dayStart.AddDate(0, 0, i)
		for _, s := range g.slotsForDay(next, now, busy, opts.ExcludeDays, opts.MaxSlots) {
			if !containsSlot(slots, s) {
				slots = append(slots, s)
				if len(slots) >= opts.MaxSlots {
					break
				}
			}
		}
	}
	return slots, nil
}

// searchRange walks days days starting offset days from now. One free/busy
// query covers the whole range.
func (g *Generator) searchRange(ctx context.Context, now time.Time, offset, days int, exclude map[string]bool, max int) ([]Slot, error) {
	local := now.In(g.loc)
	first := At(g.loc, local.Year(), local.Month(), local.Day(), 0, 0).AddDate(0, 0, offset)
	rangeEnd := first.AddDate(0, 0, days)

	busy, err := g.freeBusy.BusyBlocks(ctx, first, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("schedule: free/busy query failed: %w", err)
	}

	var slots []Slot
	for i := 0; i < days && len(slots) < max; i++ {
		day := first.AddDate(0, 0, i)
		for _, s := range g.slotsForDay(day, now, busy, exclude, max) {
			if !containsSlot(slots, s) {
				slots = append(slots, s)
				if len(slots) >= max {
					break
				}
			}
		}
	}
	return slots, nil
}

// slotsForDay builds the catalog windows for one local day and drops windows
// that are excluded, already over, or overlapping a busy block.
func (g *Generator) slotsForDay(dayStart, now time.Time, busy []BusyBlock, exclude map[string]bool, max int) []Slot {
	if exclude != nil && exclude[WeekdayName(dayStart)] {
		return nil
	}

	var slots []Slot
	for _, w := range g.windows {
		start := At(g.loc, dayStart.Year(), dayStart.Month(), dayStart.Day(), w.StartHour, w.StartMinute)
		end := At(g.loc, dayStart.Year(), dayStart.Month(), dayStart.Day(), w.EndHour, w.EndMinute)
		if !end.After(now) {
			continue
		}
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, Slot{
			Label: SlotLabel(start, g.loc),
			Start: start,
			End:   end,
		})
		if len(slots) >= max {
			break
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []BusyBlock) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

func containsSlot(slots []Slot, s Slot) bool {
	for _, existing := range slots {
		if existing.Equal(s) {
			return true
		}
	}
	return false
}

// WeekdayName returns the lowercase weekday name used for exclusion sets.
func WeekdayName(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}
