package conversation

import (
	"testing"
	"time"

	"github.com/jjtheshooterr/autobot/internal/schedule"
)

func trackerSlots(t *testing.T) []schedule.Slot {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	start := time.Date(2026, 6, 6, 12, 0, 0, 0, loc)
	return []schedule.Slot{
		{Label: "Saturday at 12:00 PM", Start: start, End: start.Add(3 * time.Hour)},
		{Label: "Sunday at 3:00 PM", Start: start.Add(27 * time.Hour), End: start.Add(30 * time.Hour)},
	}
}

func TestRecordOfferRemembersSlotsAndDays(t *testing.T) {
	ctx := NewContext()
	ctx.RecordOffer(trackerSlots(t))

	if len(ctx.Offered) != 2 {
		t.Fatalf("expected 2 remembered slots, got %d", len(ctx.Offered))
	}
	if len(ctx.OfferedDays) != 2 || ctx.OfferedDays[0] != "saturday" || ctx.OfferedDays[1] != "sunday" {
		t.Fatalf("unexpected offered days: %v", ctx.OfferedDays)
	}

	// A second offer on the same days must not duplicate the day memory.
	ctx.RecordOffer(trackerSlots(t))
	if len(ctx.OfferedDays) != 2 {
		t.Fatalf("expected deduplicated days, got %v", ctx.OfferedDays)
	}
}

func TestRecordOfferedDayNormalizes(t *testing.T) {
	ctx := NewContext()
	ctx.RecordOfferedDay("  Saturday ")
	ctx.RecordOfferedDay("saturday")
	ctx.RecordOfferedDay("")

	if len(ctx.OfferedDays) != 1 || ctx.OfferedDays[0] != "saturday" {
		t.Fatalf("unexpected offered days: %v", ctx.OfferedDays)
	}
}

func TestExcludedDays(t *testing.T) {
	ctx := NewContext()
	if ctx.ExcludedDays() != nil {
		t.Fatal("empty memory should yield a nil exclusion set")
	}

	ctx.RecordOfferedDay("saturday")
	ctx.RecordOfferedDay("sunday")
	excluded := ctx.ExcludedDays()
	if !excluded["saturday"] || !excluded["sunday"] || len(excluded) != 2 {
		t.Fatalf("unexpected exclusion set: %v", excluded)
	}
}

func TestAttemptThresholds(t *testing.T) {
	ctx := NewContext()

	ctx.MarkFailure()
	if ctx.ShouldAskOpenEnded() || ctx.ShouldHandOff() {
		t.Fatal("one failure should not trip any threshold")
	}

	ctx.MarkFailure()
	if !ctx.ShouldAskOpenEnded() {
		t.Fatal("two failures should switch to the open-ended question")
	}
	if ctx.ShouldHandOff() {
		t.Fatal("two failures should not hand off yet")
	}

	ctx.MarkFailure()
	if !ctx.ShouldHandOff() {
		t.Fatal("three failures should hand off")
	}

	ctx.MarkSuccess()
	if ctx.Attempts != 0 || ctx.ShouldAskOpenEnded() {
		t.Fatalf("success should zero the counter, got %d", ctx.Attempts)
	}
}

func TestContextReset(t *testing.T) {
	ctx := NewContext()
	ctx.RecordOffer(trackerSlots(t))
	ctx.MarkFailure()
	ctx.Address = "123 Main St"
	ctx.Collect = CollectPhone

	ctx.Reset()
	if ctx.Version != ContextVersion {
		t.Fatalf("reset must keep the schema version, got %d", ctx.Version)
	}
	if len(ctx.Offered) != 0 || len(ctx.OfferedDays) != 0 || ctx.Attempts != 0 || ctx.Address != "" || ctx.Collect != "" {
		t.Fatalf("expected clean context, got %+v", ctx)
	}
}

func TestContextSlotsRoundTrip(t *testing.T) {
	ctx := NewContext()
	if ctx.Slots() != nil {
		t.Fatal("empty context should yield nil slots")
	}

	slots := trackerSlots(t)
	ctx.RecordOffer(slots)
	got := ctx.Slots()
	if len(got) != 2 || got[0].Label != slots[0].Label || !got[1].Start.Equal(slots[1].Start) {
		t.Fatalf("unexpected slots: %+v", got)
	}
}
