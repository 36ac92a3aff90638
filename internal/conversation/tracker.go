package conversation

import (
	"strings"

	"github.com/jjtheshooterr/autobot/internal/schedule"
)

// Context tracking is a set of pure merge operations over the conversation
// memory. The asymmetric reset-vs-increment rule below is what keeps the bot
// from looping forever on a day that is never available while staying
// patient through ordinary back-and-forth.

const (
	// openEndedThreshold is the attempt count at which the bot stops
	// re-offering and asks an open-ended question instead.
	openEndedThreshold = 2

	// handoffThreshold is the attempt count that triggers the graceful
	// human handoff.
	handoffThreshold = 3
)

// RecordOffer remembers the presented slot set and merges its weekdays into
// the offered-day memory, deduplicated, so a later regeneration can exclude
// them.
func (c *Context) RecordOffer(slots []schedule.Slot) {
	offered := make([]OfferedSlot, 0, len(slots))
	for _, s := range slots {
		offered = append(offered, OfferedSlot{Label: s.Label, Start: s.Start, End: s.End})
		c.RecordOfferedDay(schedule.WeekdayName(s.Start))
	}
	c.Offered = offered
}

// RecordOfferedDay merges one weekday name into the offered-day memory.
func (c *Context) RecordOfferedDay(day string) {
	day = strings.ToLower(strings.TrimSpace(day))
	if day == "" {
		return
	}
	for _, existing := range c.OfferedDays {
		if existing == day {
			return
		}
	}
	c.OfferedDays = append(c.OfferedDays, day)
}

// ExcludedDays returns the offered-day memory as an exclusion set for the
// slot generator.
func (c *Context) ExcludedDays() map[string]bool {
	if len(c.OfferedDays) == 0 {
		return nil
	}
	out := make(map[string]bool, len(c.OfferedDays))
	for _, d := range c.OfferedDays {
		out[d] = true
	}
	return out
}

// MarkSuccess zeroes the attempt counter. Called on any turn where the
// offered slot set successfully matched what the user asked for.
func (c *Context) MarkSuccess() {
	c.Attempts = 0
}

// MarkFailure bumps the attempt counter. Called on every unsuccessful
// attempt to find what the user asked for.
func (c *Context) MarkFailure() {
	c.Attempts++
}

// ShouldAskOpenEnded reports that re-offering has failed enough times that
// the bot should ask an open-ended question instead.
func (c *Context) ShouldAskOpenEnded() bool {
	return c.Attempts >= openEndedThreshold
}

// ShouldHandOff reports that the conversation has degraded far enough to
// hand to a human.
func (c *Context) ShouldHandOff() bool {
	return c.Attempts >= handoffThreshold
}

// Reset returns the context to first-contact defaults. Used on greeting or
// reset utterances and after a completed booking.
func (c *Context) Reset() {
	*c = NewContext()
}
