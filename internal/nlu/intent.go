package nlu

import (
	"strings"
)

// Category is the coarse routing decision for an inbound message.
type Category string

const (
	CategoryStop       Category = "stop"
	CategoryHuman      Category = "human"
	CategoryThanks     Category = "thanks"
	CategoryChange     Category = "change"
	CategoryRegenerate Category = "regenerate"
	CategoryFAQ        Category = "faq"
	CategoryUnknown    Category = "unknown"
)

// Topic is the FAQ classification used by the topical responder.
type Topic string

const (
	TopicServices     Topic = "services"
	TopicPetHair      Topic = "pet_hair"
	TopicInclusions   Topic = "inclusions"
	TopicPrice        Topic = "price"
	TopicServiceArea  Topic = "service_area"
	TopicDuration     Topic = "duration"
	TopicReschedule   Topic = "reschedule"
	TopicAvailability Topic = "availability"
	TopicQuestion     Topic = "question"
	TopicUnknown      Topic = "unknown"
)

// Classification is the result of running the ordered rule table.
type Classification struct {
	Category Category
	Topic    Topic
}

// rule is one entry of the precedence table. Rules run top to bottom; the
// first hit wins, which keeps the precedence auditable and testable per rule.
type rule struct {
	name     string
	category Category
	topic    Topic
	match    func(msg string) bool
}

func containsAny(msg string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// isRegenerateRequest matches explicit "show me other options" phrasing, but
// only for multi-word, non-interrogative utterances. A bare "?" or a reply of
// two words or fewer must never hijack a clarifying question into a
// regeneration.
func isRegenerateRequest(msg string) bool {
	if strings.Contains(msg, "?") {
		return false
	}
	if len(strings.Fields(msg)) <= 2 {
		return false
	}
	return containsAny(msg,
		"other option", "other time", "other day", "more option", "more time",
		"something else", "different day", "different time", "none of those",
		"neither of those", "don't work", "dont work", "doesn't work", "doesnt work",
	)
}

var rules = []rule{
	{
		name: "stop", category: CategoryStop,
		match: func(msg string) bool {
			if msg == "stop" || msg == "unsubscribe" || msg == "quit" {
				return true
			}
			return containsAny(msg, "unsubscribe", "opt out", "stop texting", "stop messaging", "don't message", "dont message", "leave me alone")
		},
	},
	{
		name: "human", category: CategoryHuman,
		match: func(msg string) bool {
			return containsAny(msg, "real person", "speak to a human", "talk to a human", "talk to someone", "speak to someone", "a human", "an agent", "representative", "call me")
		},
	},
	{
		name: "thanks", category: CategoryThanks,
		match: func(msg string) bool {
			return containsAny(msg, "thank", "thanks", "thx", "appreciate it", "appreciated")
		},
	},
	{
		name: "change", category: CategoryChange,
		match: func(msg string) bool {
			return containsAny(msg, "reschedule", "change my appointment", "change the appointment", "move my appointment", "change my time", "different slot instead", "cancel my appointment")
		},
	},
	{
		name: "regenerate", category: CategoryRegenerate,
		match: isRegenerateRequest,
	},
	{
		name: "faq services", category: CategoryFAQ, topic: TopicServices,
		match: func(msg string) bool {
			return containsAny(msg, "what services", "what do you offer", "what do you do", "what kind of detail", "full detail", "interior only", "exterior only")
		},
	},
	{
		name: "faq pet hair", category: CategoryFAQ, topic: TopicPetHair,
		match: func(msg string) bool {
			return containsAny(msg, "pet hair", "dog hair", "cat hair", "animal hair", "fur")
		},
	},
	{
		name: "faq inclusions", category: CategoryFAQ, topic: TopicInclusions,
		match: func(msg string) bool {
			return containsAny(msg, "included", "include", "come with", "comes with", "what's in the", "whats in the")
		},
	},
	{
		name: "faq price", category: CategoryFAQ, topic: TopicPrice,
		match: func(msg string) bool {
			return containsAny(msg, "how much", "price", "pricing", "cost", "charge", "fee", "$")
		},
	},
	{
		name: "faq service area", category: CategoryFAQ, topic: TopicServiceArea,
		match: func(msg string) bool {
			return containsAny(msg, "service area", "where are you located", "where are you based", "do you travel", "come to me", "come to my", "how far", "my area")
		},
	},
	{
		name: "faq duration", category: CategoryFAQ, topic: TopicDuration,
		match: func(msg string) bool {
			return containsAny(msg, "how long", "how many hours", "take to", "duration")
		},
	},
	{
		name: "faq reschedule", category: CategoryFAQ, topic: TopicReschedule,
		match: func(msg string) bool {
			return containsAny(msg, "rescheduling", "if i need to change", "cancellation policy", "cancel policy")
		},
	},
	{
		name: "faq availability", category: CategoryFAQ, topic: TopicAvailability,
		match: func(msg string) bool {
			return containsAny(msg, "availability", "available", "openings", "open slots", "what days", "what times", "when can you")
		},
	},
	{
		name: "faq generic question", category: CategoryFAQ, topic: TopicQuestion,
		match: func(msg string) bool {
			if strings.Contains(msg, "?") {
				return true
			}
			return containsAny(msg, "what ", "how ", "why ", "where ", "who ", "can you", "do you")
		},
	},
}

// Classify runs the rule table against the message. Unmatched input yields
// CategoryUnknown with TopicUnknown.
func Classify(text string) Classification {
	msg := strings.ToLower(strings.TrimSpace(text))
	for _, r := range rules {
		if r.match(msg) {
			topic := r.topic
			if topic == "" {
				topic = TopicUnknown
			}
			return Classification{Category: r.category, Topic: topic}
		}
	}
	return Classification{Category: CategoryUnknown, Topic: TopicUnknown}
}
