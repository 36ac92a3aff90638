package nlu

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jjtheshooterr/autobot/internal/schedule"
)

// MatchResult is the outcome of resolving a message against the currently
// offered slot set.
type MatchResult struct {
	Matched        bool
	Index          int // 0-based index into the offered set when Matched
	Slot           *schedule.Slot
	RequiresChoice bool // ambiguous confirmation; caller must ask, not guess
}

var confirmationWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yea": true, "y": true,
	"ok": true, "okay": true, "k": true, "sure": true, "perfect": true,
	"sounds good": true, "sounds great": true, "that works": true,
	"works": true, "works for me": true, "let's do it": true, "lets do it": true,
	"book it": true, "confirm": true, "confirmed": true, "deal": true,
}

var (
	bareTimeRE = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?$`)
	anyTimeRE  = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)\b`)
)

// MatchSlot resolves free text against the offered slots, degrading from
// precise to fuzzy without false positives. Callers must run ExtractDate
// first and only fall through here when it returns none; a date reference
// and a slot selection are mutually exclusive intents.
func MatchSlot(text string, slots []schedule.Slot) MatchResult {
	msg := strings.ToLower(strings.TrimSpace(text))
	msg = strings.Trim(msg, ".!")
	if msg == "" || len(slots) == 0 {
		return MatchResult{}
	}

	// 1. Bare confirmation: unambiguous only when a single slot was offered,
	// or when the pair is a deliberate duplicate showing the same time.
	if confirmationWords[msg] {
		if len(slots) == 1 {
			return matched(slots, 0)
		}
		if labelTime(slots[0].Label) == labelTime(slots[1].Label) {
			return matched(slots, 0)
		}
		return MatchResult{RequiresChoice: true}
	}

	// 2. Literal index tokens.
	if msg == "1" && len(slots) >= 1 {
		return matched(slots, 0)
	}
	if msg == "2" && len(slots) >= 2 {
		return matched(slots, 1)
	}

	// 3. Weekday name contained in an offered label.
	if wd, ok := ExtractWeekday(msg); ok {
		name := strings.ToLower(wd.String())
		for i := range slots {
			if strings.Contains(strings.ToLower(slots[i].Label), name) {
				// Day alone is enough only when no time also appears;
				// otherwise fall through to the combined day+time stage.
				if !anyTimeRE.MatchString(msg) && !bareTimeRE.MatchString(msg) {
					return matched(slots, i)
				}
				break
			}
		}
	}

	// 4. Exact label match.
	for i := range slots {
		if strings.EqualFold(msg, slots[i].Label) {
			return matched(slots, i)
		}
	}

	// 5. Bare time expression against the time portion of each label.
	if hour, minute, meridiem, bareHour, ok := parseBareTime(msg); ok {
		for i := range slots {
			if labelTimeMatches(slots[i].Label, hour, minute, meridiem, bareHour) {
				return matched(slots, i)
			}
		}
		return MatchResult{}
	}

	// 6. Combined day+time substring as a last resort.
	if wd, ok := ExtractWeekday(msg); ok {
		if m := anyTimeRE.FindStringSubmatch(msg); m != nil {
			hour, _ := strconv.Atoi(m[1])
			minute := 0
			if m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			meridiem := normalizeMeridiem(m[3])
			name := strings.ToLower(wd.String())
			for i := range slots {
				label := strings.ToLower(slots[i].Label)
				if strings.Contains(label, name) && labelTimeMatches(slots[i].Label, hour, minute, meridiem, false) {
					return matched(slots, i)
				}
			}
		}
	}

	return MatchResult{}
}

func matched(slots []schedule.Slot, i int) MatchResult {
	return MatchResult{Matched: true, Index: i, Slot: &slots[i]}
}

// labelTime returns the displayed time portion of a slot label
// ("Saturday at 12:30 PM" -> "12:30 PM").
func labelTime(label string) string {
	if idx := strings.Index(label, " at "); idx >= 0 {
		return label[idx+4:]
	}
	return label
}

// parseBareTime normalizes "3", "3:00", "3pm", "noon", "midnight" into a
// 12-hour clock reading. bareHour marks hour-only tokens with no meridiem,
// which are only allowed to match :00 slots. Bare hour tokens outside 1-12
// are not times.
func parseBareTime(msg string) (hour, minute int, meridiem string, bareHour, ok bool) {
	switch msg {
	case "noon":
		return 12, 0, "pm", false, true
	case "midnight":
		return 12, 0, "am", false, true
	}
	m := bareTimeRE.FindStringSubmatch(msg)
	if m == nil {
		return 0, 0, "", false, false
	}
	hour, _ = strconv.Atoi(m[1])
	if hour < 1 || hour > 12 {
		return 0, 0, "", false, false
	}
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
		if minute > 59 {
			return 0, 0, "", false, false
		}
	}
	meridiem = normalizeMeridiem(m[3])
	bareHour = m[2] == "" && meridiem == ""
	return hour, minute, meridiem, bareHour, true
}

func normalizeMeridiem(raw string) string {
	s := strings.ToLower(strings.ReplaceAll(raw, ".", ""))
	switch s {
	case "am", "a":
		return "am"
	case "pm", "p":
		return "pm"
	}
	return ""
}

// labelTimeMatches compares a 12-hour reading against the time portion of a
// label. An empty meridiem matches either half of the day; bareHour tokens
// additionally require the slot to sit on the hour.
func labelTimeMatches(label string, hour, minute int, meridiem string, bareHour bool) bool {
	t := labelTime(label) // e.g. "12:30 PM"
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return false
	}
	labelHour, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	rest := strings.Fields(parts[1]) // ["30", "PM"]
	if len(rest) != 2 {
		return false
	}
	labelMinute, err := strconv.Atoi(rest[0])
	if err != nil {
		return false
	}
	labelMeridiem := strings.ToLower(rest[1])
	if labelHour != hour || labelMinute != minute {
		return false
	}
	if bareHour && labelMinute != 0 {
		return false
	}
	if meridiem != "" && meridiem != labelMeridiem {
		return false
	}
	return true
}
