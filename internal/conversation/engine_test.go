package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jjtheshooterr/autobot/internal/leads"
	"github.com/jjtheshooterr/autobot/internal/schedule"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type memStateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]*State)}
}

func (s *memStateStore) Get(_ context.Context, leadID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[leadID]
	if !ok {
		return nil, ErrStateNotFound
	}
	copied := *state
	return &copied, nil
}

func (s *memStateStore) Upsert(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.states[state.LeadID] = &copied
	return nil
}

type memMessageLog struct {
	entries []LoggedMessage
}

func (l *memMessageLog) Append(_ context.Context, _, role, text, _ string) error {
	l.entries = append(l.entries, LoggedMessage{Role: role, Content: text})
	return nil
}

type fakeCalendar struct {
	busy         []schedule.BusyBlock
	busyErr      error
	createErr    error
	emptyEventID bool
	created      []Reservation
	notes        map[string]string
}

func (c *fakeCalendar) BusyBlocks(_ context.Context, _, _ time.Time) ([]schedule.BusyBlock, error) {
	return c.busy, c.busyErr
}

func (c *fakeCalendar) CreateReservation(_ context.Context, r Reservation) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	if c.emptyEventID {
		return "", nil
	}
	c.created = append(c.created, r)
	return fmt.Sprintf("evt-%d", len(c.created)), nil
}

func (c *fakeCalendar) UpdateReservationNotes(_ context.Context, eventID, notes string) error {
	if c.notes == nil {
		c.notes = make(map[string]string)
	}
	c.notes[eventID] = notes
	return nil
}

type fakeNotifier struct {
	bookings []leads.Booking
	handoffs []string
}

func (n *fakeNotifier) BookingConfirmed(_ context.Context, _ *leads.Lead, booking leads.Booking) error {
	n.bookings = append(n.bookings, booking)
	return nil
}

func (n *fakeNotifier) HandoffRequested(_ context.Context, _ *leads.Lead, reason string) error {
	n.handoffs = append(n.handoffs, reason)
	return nil
}

type engineFixture struct {
	repo     *leads.InMemoryRepository
	states   *memStateStore
	log      *memMessageLog
	cal      *fakeCalendar
	notifier *fakeNotifier
	engine   *Engine
	now      time.Time
}

// newEngineFixture anchors the clock to Thursday June 4 2026 at 10 AM
// Chicago time, so the default lead-time offset lands on Sunday June 7.
// Tests can move f.now forward; the clock reads it on every call.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}

	f := &engineFixture{
		states:   newMemStateStore(),
		log:      &memMessageLog{},
		cal:      &fakeCalendar{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 6, 4, 10, 0, 0, 0, loc),
	}
	clock := func() time.Time { return f.now }
	f.repo = leads.NewInMemoryRepository().WithClock(clock)
	logger := logging.Default()
	generator := schedule.NewGenerator(f.cal, "America/Chicago", logger, schedule.WithClock(clock))
	business := testBusiness()
	f.engine = NewEngine(
		f.repo, f.states, f.log, generator, f.cal,
		NewResponder(business), nil, f.notifier, business, logger,
		WithEngineClock(clock),
	)
	return f
}

func (f *engineFixture) handle(t *testing.T, text string) string {
	t.Helper()
	reply, err := f.engine.Handle(context.Background(), InboundMessage{
		LeadExternalID: "psid-1",
		MessageID:      fmt.Sprintf("mid.%d", len(f.log.entries)),
		Text:           text,
	})
	if err != nil {
		t.Fatalf("Handle(%q) returned error: %v", text, err)
	}
	return reply
}

func TestHandleFirstContactOffersSlots(t *testing.T) {
	f := newEngineFixture(t)

	reply := f.handle(t, "hi")
	for _, want := range []string{"$199 flat", "1. Sunday at 12:00 PM", "2. Sunday at 3:00 PM"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("expected first reply to contain %q, got:\n%s", want, reply)
		}
	}

	state, err := f.states.Get(context.Background(), "psid-1")
	if err != nil {
		t.Fatalf("expected persisted state: %v", err)
	}
	if state.Step != StepClosing || len(state.Context.Offered) != 2 {
		t.Fatalf("unexpected state after first contact: %+v", state)
	}

	if len(f.log.entries) != 2 || f.log.entries[0].Role != "user" || f.log.entries[1].Role != "assistant" {
		t.Fatalf("expected user and assistant log entries, got %+v", f.log.entries)
	}
}

func TestHandleEmptyTextIsSilent(t *testing.T) {
	f := newEngineFixture(t)
	if reply := f.handle(t, "   "); reply != "" {
		t.Fatalf("expected silence for blank text, got %q", reply)
	}
}

func TestHandleStopDisablesBot(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "stop")
	if !strings.Contains(reply, "won't hear from us again") {
		t.Fatalf("unexpected stop ack: %q", reply)
	}

	lead, err := f.repo.GetByExternalID(context.Background(), "psid-1")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead.Status != leads.StatusDead || lead.BotEnabled {
		t.Fatalf("expected dead lead with bot off, got %+v", lead)
	}

	// Every later message stays silent.
	if reply := f.handle(t, "actually wait"); reply != "" {
		t.Fatalf("expected silence after opt-out, got %q", reply)
	}
}

func TestHandleHumanRequest(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "can i talk to a human please")
	if !strings.Contains(reply, "reach out to you shortly") {
		t.Fatalf("unexpected human-request reply: %q", reply)
	}
	if len(f.notifier.handoffs) != 1 || f.notifier.handoffs[0] != "requested" {
		t.Fatalf("expected a requested handoff notification, got %v", f.notifier.handoffs)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Status != leads.StatusNeedsFollowup {
		t.Fatalf("expected needs_followup status, got %s", lead.Status)
	}
}

func TestHandleFullBookingFlow(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "1")
	if !strings.Contains(reply, "penciled in for Sunday at 12:00 PM") {
		t.Fatalf("expected address ask after selection, got %q", reply)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if !lead.HasLiveClaim(f.now) {
		t.Fatalf("expected a live claim after selection, got %+v", lead.Pending)
	}

	reply = f.handle(t, "123 Main Street, Dallas TX")
	if !strings.Contains(reply, "phone number") {
		t.Fatalf("expected phone ask after address, got %q", reply)
	}

	reply = f.handle(t, "214-555-0142")
	if !strings.Contains(reply, "all set for Sunday at 12:00 PM") {
		t.Fatalf("expected confirmation, got %q", reply)
	}

	if len(f.cal.created) != 1 {
		t.Fatalf("expected one reservation, got %d", len(f.cal.created))
	}
	notes := f.cal.notes["evt-1"]
	if !strings.Contains(notes, "123 Main Street") || !strings.Contains(notes, "12145550142") {
		t.Fatalf("expected address and phone in reservation notes, got %q", notes)
	}

	lead, _ = f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Booked == nil || lead.Booked.EventID != "evt-1" {
		t.Fatalf("expected finalized booking, got %+v", lead)
	}
	if lead.Status != leads.StatusBooked || lead.BotEnabled {
		t.Fatalf("expected booked lead with bot off, got %+v", lead)
	}
	if lead.Phone != "12145550142" || lead.Address != "123 Main Street, Dallas TX" {
		t.Fatalf("unexpected contact details: %+v", lead)
	}
	if len(f.notifier.bookings) != 1 {
		t.Fatalf("expected one booking notification, got %d", len(f.notifier.bookings))
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepStart || state.Context.Attempts != 0 {
		t.Fatalf("expected reset state after booking, got %+v", state)
	}
}

func TestHandleShortAddressReasks(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")

	reply := f.handle(t, "ok")
	if !strings.Contains(reply, "address") || !strings.Contains(reply, "Sunday at 12:00 PM") {
		t.Fatalf("expected address re-ask with the held slot, got %q", reply)
	}
}

func TestHandleBadPhoneReasks(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")
	f.handle(t, "123 Main Street, Dallas TX")

	reply := f.handle(t, "just use messenger")
	if !strings.Contains(reply, "doesn't look like a phone number") {
		t.Fatalf("expected phone re-ask, got %q", reply)
	}
}

func TestHandleSlotTakenReoffers(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	// The offered Sunday noon window fills up before the lead replies.
	loc := f.now.Location()
	f.cal.busy = []schedule.BusyBlock{{
		Start: time.Date(2026, 6, 7, 12, 0, 0, 0, loc),
		End:   time.Date(2026, 6, 7, 12, 30, 0, 0, loc),
	}}

	reply := f.handle(t, "1")
	if !strings.Contains(reply, "just taken") {
		t.Fatalf("expected the slot-taken reply, got %q", reply)
	}
	if !strings.Contains(reply, "Monday at 12:00 PM") {
		t.Fatalf("expected fresh slots off the offered day, got %q", reply)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil {
		t.Fatalf("no claim should be taken for a busy slot, got %+v", lead.Pending)
	}
}

func TestHandleClaimRaceResumesCollect(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	// Another worker already holds the claim for this lead.
	start := time.Date(2026, 6, 7, 15, 0, 0, 0, f.now.Location())
	if _, ok, err := f.repo.ClaimPendingSlot(context.Background(), "psid-1", leads.PendingClaim{
		SlotLabel: "Sunday at 3:00 PM",
		SlotStart: start,
		SlotEnd:   start.Add(3 * time.Hour),
	}); err != nil || !ok {
		t.Fatalf("failed to seed claim: ok=%v err=%v", ok, err)
	}

	reply := f.handle(t, "2")
	if !strings.Contains(reply, "penciled in for Sunday at 3:00 PM") {
		t.Fatalf("expected collection to resume on the held slot, got %q", reply)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepPostBookCollect || state.Context.Collect != CollectAddress {
		t.Fatalf("expected collect state, got %+v", state)
	}
}

func TestHandleAlreadyBookedConfirms(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	start := time.Date(2026, 6, 7, 12, 0, 0, 0, f.now.Location())
	if _, ok, err := f.repo.ClaimPendingSlot(context.Background(), "psid-1", leads.PendingClaim{
		SlotLabel: "Sunday at 12:00 PM",
		SlotStart: start,
		SlotEnd:   start.Add(3 * time.Hour),
	}); err != nil || !ok {
		t.Fatalf("failed to seed claim: ok=%v err=%v", ok, err)
	}
	if _, err := f.repo.FinalizeBooking(context.Background(), "psid-1", leads.Booking{
		EventID:   "evt-external",
		SlotLabel: "Sunday at 12:00 PM",
		SlotStart: start,
		SlotEnd:   start.Add(3 * time.Hour),
	}, "", ""); err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}

	reply := f.handle(t, "1")
	if !strings.Contains(reply, "all set for Sunday at 12:00 PM") {
		t.Fatalf("expected confirmation of the existing booking, got %q", reply)
	}
}

func TestHandleAttemptLadder(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	// First miss re-presents the standing offer.
	reply := f.handle(t, "zzz xyzzy qwerty")
	if !strings.Contains(reply, "1. Sunday at 12:00 PM") {
		t.Fatalf("expected the offer re-presented, got %q", reply)
	}

	// Second miss switches to the open-ended question.
	reply = f.handle(t, "zzz xyzzy qwerty")
	if !strings.Contains(reply, "What day or time usually works best") {
		t.Fatalf("expected the open-ended question, got %q", reply)
	}

	// Third miss hands the thread to a human.
	reply = f.handle(t, "zzz xyzzy qwerty")
	if !strings.Contains(reply, "looping in a member of our team") {
		t.Fatalf("expected the handoff reply, got %q", reply)
	}
	if len(f.notifier.handoffs) != 1 || f.notifier.handoffs[0] != "attempt_threshold" {
		t.Fatalf("expected an attempt_threshold handoff, got %v", f.notifier.handoffs)
	}
}

func TestHandleThanks(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "ok thanks!")
	if !strings.Contains(reply, "You're very welcome") {
		t.Fatalf("expected a warm reply, got %q", reply)
	}
}

func TestHandleFAQPrice(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "how much is it?")
	if !strings.Contains(reply, "$199 flat") {
		t.Fatalf("expected price answer, got %q", reply)
	}
}

func TestHandleDayRequest(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")

	reply := f.handle(t, "monday works")
	if !strings.Contains(reply, "Monday works!") || !strings.Contains(reply, "Monday at 12:00 PM") {
		t.Fatalf("expected Monday slots, got %q", reply)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Context.LastRequestedDay != "monday" {
		t.Fatalf("expected remembered day, got %q", state.Context.LastRequestedDay)
	}
}

func TestHandleChangeDuringCollect(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")

	reply := f.handle(t, "actually i need to reschedule")
	if !strings.Contains(reply, "No problem at all") {
		t.Fatalf("expected change ack, got %q", reply)
	}
	if !strings.Contains(reply, "Monday at 12:00 PM") {
		t.Fatalf("expected new days offered, got %q", reply)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil {
		t.Fatalf("expected the claim released, got %+v", lead.Pending)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing || state.Context.Collect != "" {
		t.Fatalf("expected a return to closing, got %+v", state)
	}
}

func TestHandleCalendarFailureReleasesClaim(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")
	f.handle(t, "123 Main Street, Dallas TX")

	f.cal.createErr = errors.New("calendar is down")
	reply := f.handle(t, "214-555-0142")
	if !strings.Contains(reply, "Sorry") {
		t.Fatalf("expected an apology after the calendar failure, got %q", reply)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil || lead.Booked != nil {
		t.Fatalf("expected the claim released and no booking, got %+v", lead)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing {
		t.Fatalf("expected a return to closing, got %+v", state)
	}
}

func TestHandleFirstContactThanks(t *testing.T) {
	f := newEngineFixture(t)

	reply := f.handle(t, "thank you so much!")
	if !strings.Contains(reply, "You're very welcome") {
		t.Fatalf("expected a warm reply, got %q", reply)
	}
	if strings.Contains(reply, "$199") {
		t.Fatalf("gratitude should not get the priced close, got %q", reply)
	}

	state, err := f.states.Get(context.Background(), "psid-1")
	if err != nil {
		t.Fatalf("expected persisted state: %v", err)
	}
	if state.Step != StepStart || len(state.Context.Offered) != 0 {
		t.Fatalf("expected no slots generated for gratitude, got %+v", state)
	}
}

func TestHandleFirstContactQuestion(t *testing.T) {
	f := newEngineFixture(t)

	reply := f.handle(t, "how much does it cost")
	if !strings.Contains(reply, "priced separately") {
		t.Fatalf("expected the price answer first, got %q", reply)
	}
	if !strings.Contains(reply, "1. Sunday at 12:00 PM") {
		t.Fatalf("expected the priced close after the answer, got %q", reply)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing {
		t.Fatalf("expected closing step after an answered inquiry, got %+v", state)
	}
}

func TestHandleNextWeekdaySearchesAhead(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	loc := f.now.Location()

	// Unqualified weekday lands in the current week.
	reply := f.handle(t, "wednesday")
	if !strings.Contains(reply, "Wednesday works!") {
		t.Fatalf("expected Wednesday slots, got %q", reply)
	}
	state, _ := f.states.Get(context.Background(), "psid-1")
	if got := state.Context.Offered[0].Start.In(loc); got.Day() != 10 {
		t.Fatalf("expected this week's Wednesday June 10, got %v", got)
	}

	// "next wednesday" must search a week ahead, not select the
	// Wednesday already on offer.
	reply = f.handle(t, "next wednesday")
	if !strings.Contains(reply, "Wednesday works!") {
		t.Fatalf("expected a fresh Wednesday search, got %q", reply)
	}
	state, _ = f.states.Get(context.Background(), "psid-1")
	if got := state.Context.Offered[0].Start.In(loc); got.Month() != time.June || got.Day() != 17 {
		t.Fatalf("expected next week's Wednesday June 17, got %v", got)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil {
		t.Fatalf("a date request must never claim a slot, got %+v", lead.Pending)
	}
}

func TestHandleExpiredClaimAtFinalize(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")
	f.handle(t, "123 Main Street, Dallas TX")

	// The hold lapses while the lead types their phone number.
	f.now = f.now.Add(leads.ClaimTTL + time.Minute)

	reply := f.handle(t, "214-555-0142")
	if !strings.Contains(reply, "Sorry") {
		t.Fatalf("expected an apology reoffer, got %q", reply)
	}
	if len(f.cal.created) != 0 {
		t.Fatalf("an expired claim must never reach the calendar, got %d reservations", len(f.cal.created))
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil || lead.Booked != nil {
		t.Fatalf("expected the expired claim released, got %+v", lead)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing || state.Context.Collect != "" {
		t.Fatalf("expected a return to closing, got %+v", state)
	}
}

func TestHandleFinalizeRechecksCalendar(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")
	f.handle(t, "123 Main Street, Dallas TX")

	// Another channel books the held window during collection.
	loc := f.now.Location()
	f.cal.busy = []schedule.BusyBlock{{
		Start: time.Date(2026, 6, 7, 12, 0, 0, 0, loc),
		End:   time.Date(2026, 6, 7, 12, 30, 0, 0, loc),
	}}

	reply := f.handle(t, "214-555-0142")
	if !strings.Contains(reply, "just taken") {
		t.Fatalf("expected the slot-taken reply, got %q", reply)
	}
	if !strings.Contains(reply, "Monday at 12:00 PM") {
		t.Fatalf("expected fresh alternatives, got %q", reply)
	}
	if len(f.cal.created) != 0 {
		t.Fatalf("a busy window must never get a reservation, got %d", len(f.cal.created))
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil || lead.Booked != nil {
		t.Fatalf("expected the claim released with no booking, got %+v", lead)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing {
		t.Fatalf("expected a return to closing, got %+v", state)
	}
}

func TestHandleEmptyReservationIDReleasesClaim(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "hi")
	f.handle(t, "1")
	f.handle(t, "123 Main Street, Dallas TX")

	f.cal.emptyEventID = true
	reply := f.handle(t, "214-555-0142")
	if !strings.Contains(reply, "Sorry") {
		t.Fatalf("expected an apology reoffer, got %q", reply)
	}

	lead, _ := f.repo.GetByExternalID(context.Background(), "psid-1")
	if lead.Pending != nil || lead.Booked != nil {
		t.Fatalf("expected no claim and no booking after an empty event id, got %+v", lead)
	}

	state, _ := f.states.Get(context.Background(), "psid-1")
	if state.Step != StepClosing {
		t.Fatalf("expected a return to closing, got %+v", state)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"214-555-0142", "12145550142", true},
		{"(214) 555 0142", "12145550142", true},
		{"1 214 555 0142", "12145550142", true},
		{"call 214.555.0142 anytime", "12145550142", true},
		{"555-0142", "", false},
		{"2 214 555 0142", "", false},
		{"no number here", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizePhone(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("normalizePhone(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
