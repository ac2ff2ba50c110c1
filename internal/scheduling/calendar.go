package scheduling

import (
	"context"
	"errors"
	"time"
)

// AppointmentDuration is the fixed length of a visit. Slots are aligned to
// it when listing availability.
const AppointmentDuration = time.Hour

// Business hours for offered slots, in the clinic's local time.
const (
	openingHour = 9
	closingHour = 17
)

// ErrConflict is returned by Book and Reschedule when the requested slot was
// taken between the availability check and the write.
var ErrConflict = errors.New("scheduling: slot already booked")

// ErrNotFound is returned when no upcoming appointment matches a lookup.
var ErrNotFound = errors.New("scheduling: appointment not found")

// Appointment is one booked visit.
type Appointment struct {
	ID           string
	PatientPhone string
	Doctor       string
	Start        time.Time
	End          time.Time
}

// Calendar is the booking backend. Implementations must make Book and
// Reschedule refuse a taken slot with ErrConflict rather than double-book.
type Calendar interface {
	CheckAvailability(ctx context.Context, doctor string, start time.Time) (bool, error)
	Book(ctx context.Context, appt Appointment) (Appointment, error)
	Reschedule(ctx context.Context, id string, start time.Time) (Appointment, error)
	LookupByPhone(ctx context.Context, phone string) (Appointment, error)
	ListAvailableSlots(ctx context.Context, doctor string, day time.Time) ([]time.Time, error)
}

// businessSlots enumerates the bookable start times for one day.
func businessSlots(day time.Time) []time.Time {
	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	slots := make([]time.Time, 0, closingHour-openingHour)
	for hour := openingHour; hour < closingHour; hour++ {
		slots = append(slots, base.Add(time.Duration(hour)*time.Hour))
	}
	return slots
}
