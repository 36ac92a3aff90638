package schedule

import (
	"time"
)

// Slot is an offerable appointment window. Start and End are absolute,
// timezone-resolved instants; Label is the customer-facing rendering
// ("Saturday at 12:30 PM"). Slots are immutable once generated.
type Slot struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Equal reports whether two slots describe the same window. Labels are
// ignored; identity is the (start, end) instant pair.
func (s Slot) Equal(o Slot) bool {
	return s.Start.Equal(o.Start) && s.End.Equal(o.End)
}

// BusyBlock is an occupied interval returned by the calendar. Consumed only
// for overlap testing, never stored.
type BusyBlock struct {
	Start time.Time
	End   time.Time
}

// At builds the absolute instant for a wall-clock reading in loc. DST shifts
// are handled by the location's zone rules, not the host default timezone.
func At(loc *time.Location, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SlotLabel renders an instant as "<Weekday> at <h>:<mm> <AM|PM>" in loc.
func SlotLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday at 3:04 PM")
}

// Location resolves a timezone identifier. An invalid identifier is a
// configuration error; callers get UTC rather than a runtime failure.
func Location(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
