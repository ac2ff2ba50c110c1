package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extractor pulls slot values out of free text, best-effort. It only ever
// returns slots that are in the outstanding list and whose extracted value
// passed the slot's validation rule; everything else is left for the router
// to re-ask. It never mutates state.
type Extractor struct {
	registry *Registry
	now      func() time.Time
}

// NewExtractor creates an extractor over the given schema registry.
func NewExtractor(registry *Registry) *Extractor {
	return &Extractor{registry: registry, now: time.Now}
}

// Extract scans the message for values of the outstanding slots.
func (e *Extractor) Extract(message string, intent Intent, outstanding []SlotSpec) map[string]string {
	found := make(map[string]string)
	lower := strings.ToLower(message)

	for _, spec := range outstanding {
		var raw string
		switch spec.Name {
		case "date":
			raw = e.findDate(lower)
		case "time":
			raw = findTime(lower)
		case "doctor":
			raw = findDoctor(lower)
		case "patient_phone":
			raw = findPhone(message)
		}
		if raw == "" {
			continue
		}
		if value, ok := e.registry.Validate(intent, spec.Name, raw); ok {
			found[spec.Name] = value
		}
	}

	return found
}

var (
	isoDateRE   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	monthDayRE  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	weekdayRE   = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	clockTimeRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	time24RE    = regexp.MustCompile(`\b(\d{2}):(\d{2})\b`)
	doctorRE    = regexp.MustCompile(`\b(?:dr\.?|doctor)\s+([a-z]+)`)
	phoneRE     = regexp.MustCompile(`\+?\d[\d\-\.\s\(\)]{8,}\d`)
)

// findDate resolves date mentions to 2006-01-02, including the relative
// forms patients actually type ("today", "tomorrow", weekday names).
func (e *Extractor) findDate(text string) string {
	if m := isoDateRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	today := e.now()
	if strings.Contains(text, "today") {
		return today.Format("2006-01-02")
	}
	if strings.Contains(text, "tomorrow") {
		return today.AddDate(0, 0, 1).Format("2006-01-02")
	}

	if m := monthDayRE.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[2])
		month := strings.ToUpper(m[1][:1]) + m[1][1:]
		t, err := time.Parse("January 2 2006", fmt.Sprintf("%s %d %d", month, day, today.Year()))
		if err == nil {
			// A month/day earlier in the year than today means next year.
			if t.Before(today.AddDate(0, 0, -1)) {
				t = t.AddDate(1, 0, 0)
			}
			return t.Format("2006-01-02")
		}
	}

	if m := weekdayRE.FindStringSubmatch(text); m != nil {
		target := weekdayNumber(m[1])
		days := (target - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7 // "monday" on a Monday means next week
		}
		return today.AddDate(0, 0, days).Format("2006-01-02")
	}

	return ""
}

func weekdayNumber(name string) int {
	switch name {
	case "sunday":
		return 0
	case "monday":
		return 1
	case "tuesday":
		return 2
	case "wednesday":
		return 3
	case "thursday":
		return 4
	case "friday":
		return 5
	case "saturday":
		return 6
	}
	return -1
}

// findTime resolves clock times to 15:04. Time-of-day words map to the
// clinic's standard buckets.
func findTime(text string) string {
	if m := clockTimeRE.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if m[3] == "pm" && hour != 12 {
			hour += 12
		} else if m[3] == "am" && hour == 12 {
			hour = 0
		}
		if hour > 23 || minute > 59 {
			return ""
		}
		return fmt.Sprintf("%02d:%02d", hour, minute)
	}

	if m := time24RE.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 23 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", hour, minute)
		}
	}

	switch {
	case strings.Contains(text, "morning"):
		return "09:00"
	case strings.Contains(text, "afternoon"):
		return "14:00"
	case strings.Contains(text, "evening"):
		return "17:00"
	}

	return ""
}

// findDoctor pulls the surname out of a "Dr. Lee" / "doctor lee" mention.
func findDoctor(text string) string {
	if m := doctorRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// findPhone returns the first phone-number-looking run of digits.
func findPhone(text string) string {
	return phoneRE.FindString(text)
}
