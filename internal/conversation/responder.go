package conversation

import (
	"fmt"
	"strings"

	"github.com/jjtheshooterr/autobot/internal/nlu"
	"github.com/jjtheshooterr/autobot/internal/schedule"
)

// Business carries the facts every reply is built from. Replies never invent
// facts beyond these.
type Business struct {
	Name               string
	Timezone           string
	PriceText          string // e.g. "$199 flat"
	ServiceDescription string
	InclusionsText     string
	AddOnsText         string
	ServiceAreaText    string
	DurationText       string
}

// Responder renders the deterministic replies of the booking flow.
type Responder struct {
	business Business
}

// NewResponder builds a responder for the business.
func NewResponder(business Business) *Responder {
	return &Responder{business: business}
}

func numberedSlots(slots []schedule.Slot) string {
	var sb strings.Builder
	for i, s := range slots {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s.Label))
	}
	return sb.String()
}

// InitialClose is the hard, priced close presented with the first slot set.
func (r *Responder) InitialClose(slots []schedule.Slot) string {
	if len(slots) == 0 {
		return r.OpenEndedQuestion()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("We'd love to get you on the schedule! Our %s is %s.\n\n", r.business.ServiceDescription, r.business.PriceText))
	sb.WriteString("I have these openings:\n\n")
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nWhich works best for you? Just reply 1 or 2.")
	return sb.String()
}

// RepresentSlots re-presents the current offer without repeating the price.
func (r *Responder) RepresentSlots(slots []schedule.Slot) string {
	if len(slots) == 0 {
		return r.OpenEndedQuestion()
	}
	var sb strings.Builder
	sb.WriteString("Here are the times I have open:\n\n")
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nWhich works best for you?")
	return sb.String()
}

// OpenEndedQuestion is the no-availability / degraded fallback ask.
func (r *Responder) OpenEndedQuestion() string {
	return "What day or time usually works best for you? I'll check the calendar and find something that fits."
}

// Disambiguate asks the user to pick by index when a confirmation was
// ambiguous between two materially different slots.
func (r *Responder) Disambiguate(slots []schedule.Slot) string {
	var sb strings.Builder
	sb.WriteString("Just to make sure I book the right one:\n\n")
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nReply 1 or 2 and I'll lock it in.")
	return sb.String()
}

// AskAddress starts the post-booking collection.
func (r *Responder) AskAddress(slotLabel string) string {
	return fmt.Sprintf("You're penciled in for %s! Since we come to you, what's the address where we'll be working?", slotLabel)
}

// AskPhone follows address collection.
func (r *Responder) AskPhone() string {
	return "Got it. And what's the best phone number in case the crew needs to reach you day-of?"
}

// ReaskPhone nudges when the phone reply didn't look like a number.
func (r *Responder) ReaskPhone() string {
	return "That doesn't look like a phone number, sorry! Could you send the best number to reach you, digits only is fine."
}

// Confirmation closes out a finalized booking.
func (r *Responder) Confirmation(slotLabel string) string {
	return fmt.Sprintf("You're all set for %s! We'll see you then. If anything changes just text here and a member of our team will help you out.", slotLabel)
}

// SlotTaken apologizes for a slot that disappeared between offer and claim.
func (r *Responder) SlotTaken(slots []schedule.Slot) string {
	if len(slots) == 0 {
		return "Ah, that time was just taken — and I'm not seeing anything else close by. " + r.OpenEndedQuestion()
	}
	var sb strings.Builder
	sb.WriteString("Ah, that time was just taken! Here's what I have instead:\n\n")
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nWould either of those work?")
	return sb.String()
}

// Handoff is the graceful-degradation reply.
func (r *Responder) Handoff() string {
	return "I want to make sure we actually get this sorted for you, so I'm looping in a member of our team — they'll text you shortly to find a time that works."
}

// HumanRequested acknowledges an explicit ask for a person.
func (r *Responder) HumanRequested() string {
	return "Of course — a member of our team will reach out to you shortly!"
}

// StopAck is the final reply after an opt-out.
func (r *Responder) StopAck() string {
	return "No problem, you won't hear from us again. Take care!"
}

// Thanks replies warmly to gratitude without pushing slots.
func (r *Responder) Thanks() string {
	return fmt.Sprintf("You're very welcome! We're happy to help any time — just text here whenever you want to get on the %s schedule.", r.business.Name)
}

// ChangeAck confirms a reschedule request released the held time.
func (r *Responder) ChangeAck() string {
	return "No problem at all, let's find you a different time."
}

// DayFound presents slots found for a specifically requested day.
func (r *Responder) DayFound(day string, slots []schedule.Slot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Good news — %s works! I have:\n\n", titleDay(day)))
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nWant me to grab one of those for you?")
	return sb.String()
}

// DayPartial reports the requested day is full but nearby days are not.
func (r *Responder) DayPartial(day string, slots []schedule.Slot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s is booked up, but I do have these close by:\n\n", titleDay(day)))
	sb.WriteString(numberedSlots(slots))
	sb.WriteString("\nWould either of those work instead?")
	return sb.String()
}

// DayUnavailable reports a requested day with no alternatives found.
func (r *Responder) DayUnavailable(day string) string {
	return fmt.Sprintf("Unfortunately %s is fully booked and I'm not finding anything nearby either. %s", titleDay(day), r.OpenEndedQuestion())
}

// Apology is the generic turn-failure fallback that keeps the conversation
// moving instead of surfacing an error.
func (r *Responder) Apology() string {
	return "Sorry — something went wrong on my end there. What day or time works best for you?"
}

func titleDay(day string) string {
	if day == "" {
		return day
	}
	return strings.ToUpper(day[:1]) + day[1:]
}

// TopicAnswer returns the deterministic answer for a known FAQ topic, or
// false when the topic needs open-ended phrasing from the answerer.
func (r *Responder) TopicAnswer(topic nlu.Topic) (string, bool) {
	b := r.business
	switch topic {
	case nlu.TopicServices:
		return fmt.Sprintf("We do a %s — %s. Add-ons available: %s.", b.ServiceDescription, b.InclusionsText, b.AddOnsText), true
	case nlu.TopicPetHair:
		return fmt.Sprintf("Pet hair is no problem at all — it's one of the most common things we handle, and removal is available as an add-on (%s).", b.AddOnsText), true
	case nlu.TopicInclusions:
		return fmt.Sprintf("The %s includes %s.", b.ServiceDescription, b.InclusionsText), true
	case nlu.TopicPrice:
		return fmt.Sprintf("The %s is %s. Add-ons (%s) are priced separately.", b.ServiceDescription, b.PriceText, b.AddOnsText), true
	case nlu.TopicServiceArea:
		return fmt.Sprintf("We're fully mobile and come to you! %s", b.ServiceAreaText), true
	case nlu.TopicDuration:
		return fmt.Sprintf("A typical appointment takes %s.", b.DurationText), true
	case nlu.TopicReschedule:
		return "If you ever need to move your appointment, just text here and we'll get you switched to a time that works — no fees, no hassle.", true
	}
	return "", false
}
