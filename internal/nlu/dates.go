package nlu

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timeOfDayRE guards the extractor: any text carrying a time-of-day
// indicator is rejected outright so a requested time ("at 3") is never
// misread as a requested date (day 3). This guard runs before every other
// rule and is load-bearing for routing.
var timeOfDayRE = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b|\b\d{1,2}\s*(?:a\.?m\.?|p\.?m\.?)\b|\bat\s+\d{1,2}\b`)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	weekdayRE  = regexp.MustCompile(`(?i)\b(this|next)?\s*(sunday|sun|monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat)\b`)
	ordinalRE  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	theDayRE   = regexp.MustCompile(`(?i)\bthe\s+(\d{1,2})\b`)
	monthRE    = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
)

// ExtractDate parses a free-text date reference into a concrete local date
// (midnight in loc). Precedence, first match wins: relative expressions
// (today/tomorrow/weekday names), then explicit day-of-month. Returns false
// when the text carries no date reference or is guarded as a time reply.
func ExtractDate(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == "" {
		return time.Time{}, false
	}
	if timeOfDayRE.MatchString(msg) {
		return time.Time{}, false
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if containsWord(msg, "today") {
		return today, true
	}
	if containsWord(msg, "tomorrow") || containsWord(msg, "tmrw") {
		return today.AddDate(0, 0, 1), true
	}

	if m := weekdayRE.FindStringSubmatch(msg); m != nil {
		qualifier := strings.TrimSpace(strings.ToLower(m[1]))
		wd, ok := weekdayNames[strings.ToLower(m[2])]
		if ok {
			// Unqualified or "this": next occurrence including today (0-6
			// days out). "next": always the following week (7-13 days out),
			// even when today is that weekday.
			delta := (int(wd) - int(today.Weekday()) + 7) % 7
			if qualifier == "next" {
				delta += 7
			}
			return today.AddDate(0, 0, delta), true
		}
	}

	day := 0
	if m := ordinalRE.FindStringSubmatch(msg); m != nil {
		day, _ = strconv.Atoi(m[1])
	} else if m := theDayRE.FindStringSubmatch(msg); m != nil {
		day, _ = strconv.Atoi(m[1])
	}
	if day >= 1 && day <= 31 {
		month := today.Month()
		year := today.Year()
		if m := monthRE.FindStringSubmatch(msg); m != nil {
			if mon, ok := monthNames[strings.ToLower(m[1])]; ok {
				month = mon
			}
		}
		date := time.Date(year, month, day, 0, 0, 0, 0, loc)
		// A day-of-month already behind us rolls forward.
		if date.Before(today) {
			if month == today.Month() {
				date = date.AddDate(0, 1, 0)
			} else {
				date = date.AddDate(1, 0, 0)
			}
		}
		return date, true
	}

	return time.Time{}, false
}

// ExtractWeekday reports a bare weekday mention ("how about friday") without
// resolving it to a date. Used by the closing flow for day-specific searches.
func ExtractWeekday(text string) (time.Weekday, bool) {
	msg := strings.ToLower(text)
	if m := weekdayRE.FindStringSubmatch(msg); m != nil {
		if wd, ok := weekdayNames[strings.ToLower(m[2])]; ok {
			return wd, true
		}
	}
	return time.Sunday, false
}

func containsWord(msg, word string) bool {
	idx := strings.Index(msg, word)
	if idx < 0 {
		return false
	}
	before := idx == 0 || !isLetter(msg[idx-1])
	afterIdx := idx + len(word)
	after := afterIdx >= len(msg) || !isLetter(msg[afterIdx])
	return before && after
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
