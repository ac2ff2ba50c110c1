package conversation

import (
	"fmt"
	"strings"
	"time"
)

// SlotSpec describes one parameter an intent needs before its action can
// run. Prompt is the question the router asks when the slot is outstanding.
type SlotSpec struct {
	Name   string
	Prompt string
	// Validate normalizes a raw value and reports whether it is acceptable.
	// Collected slot values have always passed this.
	Validate func(raw string) (string, bool)
}

// Registry is the static intent -> required-slots mapping. Loaded once at
// startup and read-only afterwards. Slot order is significant: it is the
// order the router asks for missing information, stable across calls.
type Registry struct {
	specs map[Intent][]SlotSpec
}

// NewRegistry builds the slot schemas. The doctor roster parameterizes the
// doctor slot's validation.
func NewRegistry(roster []string) *Registry {
	doctor := func(raw string) (string, bool) { return matchDoctor(raw, roster) }

	return &Registry{specs: map[Intent][]SlotSpec{
		IntentSchedule: {
			{Name: "date", Prompt: "What date would you like to come in? (for example 2025-03-10, or just say tomorrow)", Validate: validateDate},
			{Name: "time", Prompt: "What time works for you?", Validate: validateTime},
			{Name: "doctor", Prompt: "Which doctor would you like to see?", Validate: doctor},
		},
		IntentReschedule: {
			{Name: "patient_phone", Prompt: "What phone number did you book with?", Validate: validatePhone},
			{Name: "date", Prompt: "What new date would you like?", Validate: validateDate},
			{Name: "time", Prompt: "And what time?", Validate: validateTime},
		},
		IntentReminder: {
			{Name: "patient_phone", Prompt: "What phone number should I look up your appointment with?", Validate: validatePhone},
		},
		IntentClinicInfo: nil,
	}}
}

// Required returns the schema-declared slot list for an intent, in asking
// order. The returned slice must not be mutated.
func (r *Registry) Required(intent Intent) []SlotSpec {
	return r.specs[intent]
}

// Missing derives the outstanding slots for an intent: the required list
// minus already-collected keys, in schema order.
func (r *Registry) Missing(intent Intent, collected map[string]string) []SlotSpec {
	required := r.specs[intent]
	if len(required) == 0 {
		return nil
	}
	missing := make([]SlotSpec, 0, len(required))
	for _, spec := range required {
		if _, ok := collected[spec.Name]; !ok {
			missing = append(missing, spec)
		}
	}
	return missing
}

// Validate normalizes a raw value for a named slot of an intent.
func (r *Registry) Validate(intent Intent, slot, raw string) (string, bool) {
	for _, spec := range r.specs[intent] {
		if spec.Name == slot {
			return spec.Validate(raw)
		}
	}
	return "", false
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "January 2, 2006", "January 2", "Jan 2"}

// validateDate normalizes dates to 2006-01-02.
func validateDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		// Layouts without a year parse to year 0; pin those to the current year.
		if t.Year() == 0 {
			now := time.Now()
			t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return t.Format("2006-01-02"), true
	}
	return "", false
}

// validateTime normalizes clock times to 15:04.
func validateTime(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, layout := range []string{"15:04", "3:04pm", "3pm", "3:04 pm", "3 pm"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// matchDoctor resolves a free-text doctor mention against the roster.
func matchDoctor(raw string, roster []string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	needle = strings.TrimPrefix(needle, "doctor ")
	needle = strings.TrimPrefix(needle, "dr. ")
	needle = strings.TrimPrefix(needle, "dr ")
	if needle == "" {
		return "", false
	}
	for _, name := range roster {
		surname := strings.ToLower(strings.TrimSpace(name))
		surname = strings.TrimPrefix(surname, "dr. ")
		surname = strings.TrimPrefix(surname, "dr ")
		if surname == needle {
			return name, true
		}
	}
	return "", false
}

// validatePhone strips non-digits and normalizes 10-digit US numbers to the
// 11-digit form.
func validatePhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		d = "1" + d
	}
	if len(d) < 11 || len(d) > 15 {
		return "", false
	}
	return d, true
}

// FormatSlot renders a collected value for human-readable replies.
func FormatSlot(slot, value string) string {
	switch slot {
	case "date":
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return t.Format("Monday, January 2, 2006")
		}
	case "time":
		if t, err := time.Parse("15:04", value); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return value
}

// SlotTimestamp combines collected date and time slots into a single instant
// in the given location.
func SlotTimestamp(slots map[string]string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, ok := slots["date"]
	if !ok {
		return time.Time{}, fmt.Errorf("conversation: date slot missing")
	}
	clock, ok := slots["time"]
	if !ok {
		return time.Time{}, fmt.Errorf("conversation: time slot missing")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("conversation: invalid date/time slots: %w", err)
	}
	return t, nil
}
