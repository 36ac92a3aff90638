package conversation

import (
	"time"

	"github.com/jjtheshooterr/autobot/internal/schedule"
)

// Step is the conversation's position in the booking protocol.
type Step string

const (
	StepStart           Step = "start"
	StepClosing         Step = "closing"
	StepPostBookCollect Step = "post_book_collect"
)

// CollectStage is the sub-step inside post_book_collect. Address is always
// collected before phone; the order is fixed.
type CollectStage string

const (
	CollectAddress CollectStage = "address"
	CollectPhone   CollectStage = "phone"
)

// ContextVersion is the schema version of the Context record. Unknown legacy
// keys are not preserved across versions; a version bump forces an explicit
// migration.
const ContextVersion = 1

// OfferedSlot is a slot as it was presented to the user, kept in the
// conversation context so later turns can resolve selections against it.
type OfferedSlot struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Context is the closed, versioned per-conversation memory. Every field is
// named; there is no open-ended bag.
type Context struct {
	Version          int           `json:"version"`
	Offered          []OfferedSlot `json:"offered,omitempty"`
	OfferedDays      []string      `json:"offered_days,omitempty"`
	LastRequestedDay string        `json:"last_requested_day,omitempty"`
	Attempts         int           `json:"attempts"`
	LastIntent       string        `json:"last_intent,omitempty"`
	Address          string        `json:"address,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	Collect          CollectStage  `json:"collect,omitempty"`
}

// NewContext returns the defaults a conversation starts (and resets) with.
func NewContext() Context {
	return Context{Version: ContextVersion}
}

// Slots converts the remembered offer back into schedule slots.
func (c *Context) Slots() []schedule.Slot {
	if len(c.Offered) == 0 {
		return nil
	}
	slots := make([]schedule.Slot, 0, len(c.Offered))
	for _, o := range c.Offered {
		slots = append(slots, schedule.Slot{Label: o.Label, Start: o.Start, End: o.End})
	}
	return slots
}

// State is one user's conversation position: the current step plus the
// context record. All cross-turn state lives here or on the lead row.
type State struct {
	LeadID    string    `json:"lead_id"`
	Step      Step      `json:"step"`
	Context   Context   `json:"context"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState seeds a first-contact conversation.
func NewState(leadID string) *State {
	return &State{
		LeadID:  leadID,
		Step:    StepStart,
		Context: NewContext(),
	}
}
