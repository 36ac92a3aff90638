package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jjtheshooterr/autobot/internal/leads"
	"github.com/jjtheshooterr/autobot/internal/nlu"
	"github.com/jjtheshooterr/autobot/internal/observability/metrics"
	"github.com/jjtheshooterr/autobot/internal/schedule"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Calendar is the engine's view of the reservation calendar.
type Calendar interface {
	schedule.FreeBusySource
	CreateReservation(ctx context.Context, r Reservation) (eventID string, err error)
	UpdateReservationNotes(ctx context.Context, eventID, notes string) error
}

// Reservation is a calendar event to create for a finalized booking.
type Reservation struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Notifier delivers out-of-band alerts to the business owner.
type Notifier interface {
	BookingConfirmed(ctx context.Context, lead *leads.Lead, booking leads.Booking) error
	HandoffRequested(ctx context.Context, lead *leads.Lead, reason string) error
}

// Engine drives one conversation turn: it classifies the inbound text,
// advances the booking protocol, and produces the outbound reply. An
// empty reply means stay silent.
type Engine struct {
	repo      leads.Repository
	states    StateStore
	log       MessageLog
	generator *schedule.Generator
	calendar  Calendar
	responder *Responder
	answerer  *Answerer
	notifier  Notifier
	business  Business
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	loc       *time.Location
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithBookingMetrics(m *metrics.BookingMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(
	repo leads.Repository,
	states StateStore,
	log MessageLog,
	generator *schedule.Generator,
	calendar Calendar,
	responder *Responder,
	answerer *Answerer,
	notifier Notifier,
	business Business,
	logger *logging.Logger,
	opts ...EngineOption,
) *Engine {
	if repo == nil {
		panic("conversation: lead repository cannot be nil")
	}
	if states == nil {
		panic("conversation: state store cannot be nil")
	}
	if generator == nil {
		panic("conversation: slot generator cannot be nil")
	}
	if calendar == nil {
		panic("conversation: calendar cannot be nil")
	}
	if responder == nil {
		responder = NewResponder(business)
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		repo:      repo,
		states:    states,
		log:       log,
		generator: generator,
		calendar:  calendar,
		responder: responder,
		answerer:  answerer,
		notifier:  notifier,
		business:  business,
		logger:    logger,
		loc:       schedule.Location(business.Timezone),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle processes one inbound message and returns the reply to send.
func (e *Engine) Handle(ctx context.Context, msg InboundMessage) (string, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return "", nil
	}

	lead, err := e.repo.GetByExternalID(ctx, msg.LeadExternalID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		lead, err = e.repo.UpsertByExternalID(ctx, msg.LeadExternalID, "messenger")
	}
	if err != nil {
		return "", fmt.Errorf("conversation: load lead: %w", err)
	}

	if !lead.BotEnabled {
		e.logger.Debug("bot disabled for lead, staying silent", "lead_external_id", lead.ExternalID)
		return "", nil
	}

	state, err := e.states.Get(ctx, lead.ExternalID)
	if errors.Is(err, ErrStateNotFound) {
		state = NewState(lead.ExternalID)
		err = nil
	}
	if err != nil {
		return "", fmt.Errorf("conversation: load state: %w", err)
	}

	e.appendLog(ctx, lead.ExternalID, "user", text, msg.MessageID)
	e.metrics.ObserveTurn(string(state.Step))

	var reply string
	switch state.Step {
	case StepPostBookCollect:
		reply, err = e.handleCollect(ctx, lead, state, text)
	case StepClosing:
		reply, err = e.handleClosing(ctx, lead, state, text)
	default:
		reply, err = e.handleStart(ctx, lead, state, text)
	}
	if err != nil {
		return "", err
	}

	if err := e.states.Upsert(ctx, state); err != nil {
		return "", fmt.Errorf("conversation: save state: %w", err)
	}
	if reply != "" {
		e.appendLog(ctx, lead.ExternalID, "assistant", reply, "")
	}
	return reply, nil
}

// handleStart greets a first-contact lead. Gratitude gets a warm reply
// with no slots; a service question gets its answer ahead of the priced
// close; everything else goes straight to the close.
func (e *Engine) handleStart(ctx context.Context, lead *leads.Lead, state *State, text string) (string, error) {
	if reply, handled := e.handleEscapeHatches(ctx, lead, state, text); handled {
		return reply, nil
	}

	cls := nlu.Classify(text)
	if cls.Category == nlu.CategoryThanks {
		return e.responder.Thanks(), nil
	}

	opts := schedule.SearchOptions{StartOffsetDays: -1}
	if date, ok := nlu.ExtractDate(text, e.now().In(e.loc), e.loc); ok {
		opts = schedule.SearchOptions{ForcedDate: date}
	}

	slots, err := e.generator.Generate(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("conversation: generate slots: %w", err)
	}
	if len(slots) == 0 {
		state.Context.MarkFailure()
		state.Step = StepClosing
		return e.responder.OpenEndedQuestion(), nil
	}

	state.Context.RecordOffer(slots)
	state.Step = StepClosing

	if cls.Category == nlu.CategoryFAQ && cls.Topic != nlu.TopicAvailability {
		if answer, ok := e.answerFAQ(ctx, cls.Topic, text, state, slots); ok {
			return answer + "\n\n" + e.responder.InitialClose(slots), nil
		}
	}
	return e.responder.InitialClose(slots), nil
}

// handleClosing is the main loop: the lead has a standing offer of
// slots and every message is resolved against it.
func (e *Engine) handleClosing(ctx context.Context, lead *leads.Lead, state *State, text string) (string, error) {
	if reply, handled := e.handleEscapeHatches(ctx, lead, state, text); handled {
		return reply, nil
	}

	cls := nlu.Classify(text)
	state.Context.LastIntent = string(cls.Category)
	offered := state.Context.Slots()

	if cls.Category == nlu.CategoryThanks {
		return e.responder.Thanks(), nil
	}

	// Too many failed exchanges in a row means the bot is not landing;
	// hand the thread to a human no matter what this message says.
	if state.Context.ShouldHandOff() {
		return e.handoff(ctx, lead, state, "attempt_threshold"), nil
	}

	if cls.Category == nlu.CategoryFAQ {
		if answer, ok := e.answerFAQ(ctx, cls.Topic, text, state, offered); ok {
			return answer, nil
		}
	}

	if cls.Category == nlu.CategoryChange || cls.Category == nlu.CategoryRegenerate {
		return e.reoffer(ctx, state, e.responder.ChangeAck())
	}

	// A date reference and a slot selection are mutually exclusive
	// intents; the extractor runs first so "next wednesday" searches
	// ahead instead of matching a Wednesday already on offer.
	if date, ok := nlu.ExtractDate(text, e.now().In(e.loc), e.loc); ok {
		return e.offerForDate(ctx, state, date)
	}

	if match := nlu.MatchSlot(text, offered); match.RequiresChoice {
		return e.responder.Disambiguate(offered), nil
	} else if match.Matched {
		return e.claimSlot(ctx, lead, state, *match.Slot)
	}

	// Unmatched. Escalate per the attempt ladder.
	state.Context.MarkFailure()
	if state.Context.ShouldHandOff() {
		return e.handoff(ctx, lead, state, "attempt_threshold"), nil
	}
	if state.Context.ShouldAskOpenEnded() {
		return e.responder.OpenEndedQuestion(), nil
	}
	if len(offered) == 0 {
		return e.reoffer(ctx, state, "")
	}
	return e.responder.RepresentSlots(offered), nil
}

// handleCollect gathers the address then the phone number after a slot
// is claimed, and finalizes the booking once both are in hand.
func (e *Engine) handleCollect(ctx context.Context, lead *leads.Lead, state *State, text string) (string, error) {
	if reply, handled := e.handleEscapeHatches(ctx, lead, state, text); handled {
		return reply, nil
	}

	cls := nlu.Classify(text)
	if cls.Category == nlu.CategoryChange {
		// Changing their mind mid-collect releases the held slot.
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.ChangeAck())
	}

	switch state.Context.Collect {
	case CollectPhone:
		phone, ok := normalizePhone(text)
		if !ok {
			state.Context.MarkFailure()
			if state.Context.ShouldHandOff() {
				return e.handoff(ctx, lead, state, "phone_collection"), nil
			}
			return e.responder.ReaskPhone(), nil
		}
		state.Context.Phone = phone
		state.Context.MarkSuccess()
		return e.finalize(ctx, lead, state)
	default:
		if len(strings.TrimSpace(text)) < 5 {
			state.Context.MarkFailure()
			if state.Context.ShouldHandOff() {
				return e.handoff(ctx, lead, state, "address_collection"), nil
			}
			return e.responder.AskAddress(e.pendingLabel(ctx, lead)), nil
		}
		state.Context.Address = strings.TrimSpace(text)
		state.Context.Collect = CollectPhone
		state.Context.MarkSuccess()
		return e.responder.AskPhone(), nil
	}
}

// handleEscapeHatches covers the intents honored in every step: opt-out
// and explicit requests for a human.
func (e *Engine) handleEscapeHatches(ctx context.Context, lead *leads.Lead, state *State, text string) (string, bool) {
	switch nlu.Classify(text).Category {
	case nlu.CategoryStop:
		if err := e.repo.SetStatus(ctx, lead.ExternalID, leads.StatusDead); err != nil {
			e.logger.Error("failed to mark lead dead", "error", err, "lead_external_id", lead.ExternalID)
		}
		if err := e.repo.SetBotEnabled(ctx, lead.ExternalID, false); err != nil {
			e.logger.Error("failed to disable bot", "error", err, "lead_external_id", lead.ExternalID)
		}
		state.Context.Reset()
		return e.responder.StopAck(), true
	case nlu.CategoryHuman:
		return e.handoff(ctx, lead, state, "requested"), true
	}
	return "", false
}

func (e *Engine) handoff(ctx context.Context, lead *leads.Lead, state *State, reason string) string {
	if err := e.repo.SetStatus(ctx, lead.ExternalID, leads.StatusNeedsFollowup); err != nil {
		e.logger.Error("failed to flag lead for followup", "error", err, "lead_external_id", lead.ExternalID)
	}
	if e.notifier != nil {
		if err := e.notifier.HandoffRequested(ctx, lead, reason); err != nil {
			e.logger.Error("handoff notification failed", "error", err, "lead_external_id", lead.ExternalID)
		}
	}
	e.metrics.ObserveHandoff(reason)
	state.Context.Reset()
	if reason == "requested" {
		return e.responder.HumanRequested()
	}
	return e.responder.Handoff()
}

func (e *Engine) answerFAQ(ctx context.Context, topic nlu.Topic, text string, state *State, offered []schedule.Slot) (string, bool) {
	switch topic {
	case nlu.TopicAvailability:
		if len(offered) > 0 {
			return e.responder.RepresentSlots(offered), true
		}
		return "", false
	case nlu.TopicReschedule:
		// Handled as a change request by the caller.
		return "", false
	}

	labels := make([]string, 0, len(offered))
	for _, s := range offered {
		labels = append(labels, s.Label)
	}
	if e.answerer == nil {
		answer, ok := e.responder.TopicAnswer(topic)
		return answer, ok
	}
	return e.answerer.Answer(ctx, topic, text, labels), true
}

// freshSlots regenerates excluding every day already offered, reopening
// the full week when the exclusions leave nothing.
func (e *Engine) freshSlots(ctx context.Context, state *State) ([]schedule.Slot, error) {
	slots, err := e.generator.Generate(ctx, schedule.SearchOptions{
		StartOffsetDays: -1,
		ExcludeDays:     state.Context.ExcludedDays(),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: regenerate slots: %w", err)
	}
	if len(slots) == 0 {
		slots, err = e.generator.Generate(ctx, schedule.SearchOptions{StartOffsetDays: -1})
		if err != nil {
			return nil, fmt.Errorf("conversation: regenerate slots: %w", err)
		}
	}
	return slots, nil
}

// reoffer presents genuinely new options after a change request or a
// failed exchange.
func (e *Engine) reoffer(ctx context.Context, state *State, preamble string) (string, error) {
	slots, err := e.freshSlots(ctx, state)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		state.Context.MarkFailure()
		return e.responder.OpenEndedQuestion(), nil
	}

	state.Context.RecordOffer(slots)
	body := e.responder.RepresentSlots(slots)
	if preamble != "" {
		return preamble + " " + body, nil
	}
	return body, nil
}

// reofferTaken replaces a slot that was grabbed by another channel
// between offer and claim (or claim and finalize).
func (e *Engine) reofferTaken(ctx context.Context, state *State) (string, error) {
	slots, err := e.freshSlots(ctx, state)
	if err != nil {
		return "", err
	}
	if len(slots) > 0 {
		state.Context.RecordOffer(slots)
	}
	return e.responder.SlotTaken(slots), nil
}

// offerForDate searches the specific day the lead asked about.
func (e *Engine) offerForDate(ctx context.Context, state *State, date time.Time) (string, error) {
	day := schedule.WeekdayName(date)
	state.Context.LastRequestedDay = day

	slots, err := e.generator.Generate(ctx, schedule.SearchOptions{ForcedDate: date})
	if err != nil {
		return "", fmt.Errorf("conversation: day search: %w", err)
	}
	if len(slots) == 0 {
		state.Context.MarkFailure()
		if state.Context.ShouldHandOff() {
			return e.responder.Handoff(), nil
		}
		return e.responder.DayUnavailable(day), nil
	}

	state.Context.RecordOffer(slots)
	onDay := 0
	for _, s := range slots {
		if schedule.WeekdayName(s.Start.In(e.loc)) == day {
			onDay++
		}
	}
	if onDay == len(slots) {
		return e.responder.DayFound(day, slots), nil
	}
	if onDay > 0 {
		return e.responder.DayPartial(day, slots), nil
	}
	return e.responder.DayUnavailable(day) + "\n\n" + e.responder.RepresentSlots(slots), nil
}

// claimSlot verifies the slot is still free, then takes the conditional
// claim. Exactly one concurrent claimer wins; losers get fresh slots.
func (e *Engine) claimSlot(ctx context.Context, lead *leads.Lead, state *State, slot schedule.Slot) (string, error) {
	busy, err := e.calendar.BusyBlocks(ctx, slot.Start, slot.End)
	if err != nil {
		return "", fmt.Errorf("conversation: verify slot: %w", err)
	}
	for _, b := range busy {
		if schedule.Overlaps(slot.Start, slot.End, b.Start, b.End) {
			state.Context.MarkFailure()
			e.metrics.ObserveClaim("slot_taken")
			return e.reofferTaken(ctx, state)
		}
	}

	claim := leads.PendingClaim{
		SlotLabel: slot.Label,
		SlotStart: slot.Start,
		SlotEnd:   slot.End,
		ClaimedAt: e.now().UTC(),
	}
	updated, claimed, err := e.repo.ClaimPendingSlot(ctx, lead.ExternalID, claim)
	if err != nil {
		return "", fmt.Errorf("conversation: claim slot: %w", err)
	}
	if !claimed {
		e.metrics.ObserveClaim("lost_race")
		current, err := e.repo.GetByExternalID(ctx, lead.ExternalID)
		if err != nil {
			return "", fmt.Errorf("conversation: re-read after claim race: %w", err)
		}
		if current.Booked != nil {
			return e.responder.Confirmation(current.Booked.SlotLabel), nil
		}
		if current.HasLiveClaim(e.now()) {
			// A live claim from this same lead: resume collection.
			state.Step = StepPostBookCollect
			state.Context.Collect = CollectAddress
			return e.responder.AskAddress(current.Pending.SlotLabel), nil
		}
		state.Context.MarkFailure()
		return e.reoffer(ctx, state, e.responder.Apology())
	}

	e.metrics.ObserveClaim("won")
	*lead = *updated
	state.Context.MarkSuccess()
	state.Step = StepPostBookCollect
	state.Context.Collect = CollectAddress
	return e.responder.AskAddress(slot.Label), nil
}

// finalize runs the booking completion protocol. Any failure after the
// free/busy re-check releases the claim so the slot can be resold; a
// failed finalize never leaves a dangling claim.
func (e *Engine) finalize(ctx context.Context, lead *leads.Lead, state *State) (string, error) {
	current, err := e.repo.GetByExternalID(ctx, lead.ExternalID)
	if err != nil {
		return "", fmt.Errorf("conversation: re-read before finalize: %w", err)
	}
	if current.Booked != nil {
		return e.responder.Confirmation(current.Booked.SlotLabel), nil
	}
	if !current.HasLiveClaim(e.now()) {
		// The hold lapsed while details were being collected. An expired
		// claim is equivalent to no claim, but the row is still cleared so
		// nothing dangles.
		e.metrics.ObserveClaim("expired")
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.Apology())
	}

	pending := current.Pending
	if pending.SlotLabel == "" || pending.SlotStart.IsZero() || pending.SlotEnd.IsZero() {
		// Corrupt claim: restart the offer flow instead of repairing it.
		e.logger.Error("pending claim missing required fields, releasing", "lead_external_id", lead.ExternalID)
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.Apology())
	}

	if state.Context.Address == "" {
		state.Context.Collect = CollectAddress
		return e.responder.AskAddress(pending.SlotLabel), nil
	}
	if state.Context.Phone == "" {
		state.Context.Collect = CollectPhone
		return e.responder.AskPhone(), nil
	}

	// The slot may have been taken by another channel between claim and
	// finalize; re-verify before writing to the calendar.
	busy, err := e.calendar.BusyBlocks(ctx, pending.SlotStart, pending.SlotEnd)
	if err != nil {
		e.logger.Error("free/busy re-check failed, releasing claim", "error", err, "lead_external_id", lead.ExternalID)
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.Apology())
	}
	for _, b := range busy {
		if schedule.Overlaps(pending.SlotStart, pending.SlotEnd, b.Start, b.End) {
			e.metrics.ObserveClaim("slot_taken")
			e.releaseClaim(ctx, lead.ExternalID)
			state.Step = StepClosing
			state.Context.Collect = ""
			return e.reofferTaken(ctx, state)
		}
	}

	eventID, err := e.calendar.CreateReservation(ctx, Reservation{
		Summary:     fmt.Sprintf("%s - Detail for lead %s", e.business.Name, current.ExternalID),
		Description: fmt.Sprintf("Address: %s\nPhone: %s", state.Context.Address, state.Context.Phone),
		Start:       pending.SlotStart,
		End:         pending.SlotEnd,
	})
	if err == nil && eventID == "" {
		err = errors.New("conversation: calendar returned an empty reservation id")
	}
	if err != nil {
		e.logger.Error("calendar event creation failed, releasing claim", "error", err, "lead_external_id", lead.ExternalID)
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.Apology())
	}

	booking := leads.Booking{
		EventID:   eventID,
		SlotLabel: pending.SlotLabel,
		SlotStart: pending.SlotStart,
		SlotEnd:   pending.SlotEnd,
		BookedAt:  e.now().UTC(),
	}
	finalized, err := e.repo.FinalizeBooking(ctx, lead.ExternalID, booking, state.Context.Address, state.Context.Phone)
	if err != nil {
		// The calendar event is orphaned until the owner reconciles; the
		// claim must still come off the row.
		e.logger.Error("booking finalize failed, releasing claim", "error", err, "event_id", eventID, "lead_external_id", lead.ExternalID)
		e.releaseClaim(ctx, lead.ExternalID)
		state.Step = StepClosing
		state.Context.Collect = ""
		return e.reoffer(ctx, state, e.responder.Apology())
	}

	notes := fmt.Sprintf("Address: %s\nPhone: %s\nLead: %s\nConfirmed: %s",
		state.Context.Address, state.Context.Phone, current.ExternalID, booking.BookedAt.Format(time.RFC3339))
	if err := e.calendar.UpdateReservationNotes(ctx, eventID, notes); err != nil {
		e.logger.Warn("failed to update reservation notes", "error", err, "event_id", eventID)
	}

	if err := e.repo.SetBotEnabled(ctx, lead.ExternalID, false); err != nil {
		e.logger.Error("failed to disable bot after booking", "error", err, "lead_external_id", lead.ExternalID)
	}
	if e.notifier != nil {
		if err := e.notifier.BookingConfirmed(ctx, finalized, booking); err != nil {
			e.logger.Error("booking notification failed", "error", err, "lead_external_id", lead.ExternalID)
		}
	}
	e.metrics.ObserveBooking()

	state.Step = StepStart
	state.Context.Reset()
	return e.responder.Confirmation(booking.SlotLabel), nil
}

func (e *Engine) releaseClaim(ctx context.Context, externalID string) {
	if err := e.repo.ReleasePendingClaim(ctx, externalID); err != nil {
		e.logger.Error("claim release failed", "error", err, "lead_external_id", externalID)
	}
	e.metrics.ObserveClaim("released")
}

// FallbackReply is the generic keep-the-thread-moving reply the worker
// sends when a turn fails outright.
func (e *Engine) FallbackReply() string {
	return e.responder.Apology()
}

func (e *Engine) pendingLabel(ctx context.Context, lead *leads.Lead) string {
	current, err := e.repo.GetByExternalID(ctx, lead.ExternalID)
	if err == nil && current.Pending != nil {
		return current.Pending.SlotLabel
	}
	return "your appointment"
}

func (e *Engine) appendLog(ctx context.Context, leadID, role, text, messageID string) {
	if e.log == nil {
		return
	}
	if err := e.log.Append(ctx, leadID, role, text, messageID); err != nil {
		e.logger.Error("message log append failed", "error", err, "lead_external_id", leadID, "role", role)
	}
}

// normalizePhone accepts a message as a phone number when it carries 10
// or 11 digits, returning the digits in 11-digit US form.
func normalizePhone(text string) (string, bool) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "1" + d, true
	case len(d) == 11 && d[0] == '1':
		return d, true
	default:
		return "", false
	}
}
