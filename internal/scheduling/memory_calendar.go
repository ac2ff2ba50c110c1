package scheduling

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCalendar is an in-process Calendar for development and tests.
type MemoryCalendar struct {
	mu    sync.Mutex
	appts map[string]Appointment
	now   func() time.Time
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{
		appts: make(map[string]Appointment),
		now:   time.Now,
	}
}

func (c *MemoryCalendar) CheckAvailability(_ context.Context, doctor string, start time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.taken(doctor, start), nil
}

func (c *MemoryCalendar) Book(_ context.Context, appt Appointment) (Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.taken(appt.Doctor, appt.Start) {
		return Appointment{}, ErrConflict
	}

	appt.ID = uuid.NewString()
	if appt.End.IsZero() {
		appt.End = appt.Start.Add(AppointmentDuration)
	}
	c.appts[appt.ID] = appt
	return appt, nil
}

func (c *MemoryCalendar) Reschedule(_ context.Context, id string, start time.Time) (Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	appt, ok := c.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	if c.taken(appt.Doctor, start) {
		return Appointment{}, ErrConflict
	}

	appt.Start = start
	appt.End = start.Add(AppointmentDuration)
	c.appts[id] = appt
	return appt, nil
}

func (c *MemoryCalendar) LookupByPhone(_ context.Context, phone string) (Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found Appointment
	for _, appt := range c.appts {
		if appt.PatientPhone != phone || appt.Start.Before(c.now()) {
			continue
		}
		if found.ID == "" || appt.Start.Before(found.Start) {
			found = appt
		}
	}
	if found.ID == "" {
		return Appointment{}, ErrNotFound
	}
	return found, nil
}

func (c *MemoryCalendar) ListAvailableSlots(_ context.Context, doctor string, day time.Time) ([]time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var free []time.Time
	for _, slot := range businessSlots(day) {
		if !c.taken(doctor, slot) {
			free = append(free, slot)
		}
	}
	return free, nil
}

// taken reports whether the doctor already has an appointment overlapping
// the slot starting at start. Callers hold the lock.
func (c *MemoryCalendar) taken(doctor string, start time.Time) bool {
	end := start.Add(AppointmentDuration)
	for _, appt := range c.appts {
		if !strings.EqualFold(appt.Doctor, doctor) {
			continue
		}
		if appt.Start.Before(end) && start.Before(appt.End) {
			return true
		}
	}
	return false
}
