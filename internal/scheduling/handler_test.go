package scheduling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
)

func scheduleRequest(slots map[string]string) conversation.Request {
	return conversation.Request{
		Intent:   conversation.IntentSchedule,
		ThreadID: "t1",
		Slots:    slots,
	}
}

func TestHandler_ScheduleBooksAppointment(t *testing.T) {
	cal := NewMemoryCalendar()
	h := NewHandler(cal, nil, time.UTC, nil)

	outcome, err := h.Act(context.Background(), scheduleRequest(map[string]string{
		"date":   "2025-03-10",
		"time":   "14:00",
		"doctor": "Dr. Lee",
	}))
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusCompleted {
		t.Fatalf("Status = %q, want completed", outcome.Status)
	}
	if !strings.Contains(outcome.Reply, "Dr. Lee") || !strings.Contains(outcome.Reply, "2:00 PM") {
		t.Errorf("Reply = %q, want doctor and time in confirmation", outcome.Reply)
	}

	// The appointment landed on the calendar.
	want := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	available, err := cal.CheckAvailability(context.Background(), "Dr. Lee", want)
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if available {
		t.Error("slot still reads available after booking")
	}
}

func TestHandler_ScheduleConflictRetriesTime(t *testing.T) {
	cal := NewMemoryCalendar()
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := cal.Book(context.Background(), Appointment{Doctor: "Dr. Lee", Start: start}); err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	h := NewHandler(cal, nil, time.UTC, nil)
	outcome, err := h.Act(context.Background(), scheduleRequest(map[string]string{
		"date":   "2025-03-10",
		"time":   "14:00",
		"doctor": "Dr. Lee",
	}))
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusRetry || outcome.RetrySlot != "time" {
		t.Fatalf("outcome = %+v, want retry on time", outcome)
	}
	// The reply offers the day's remaining openings.
	if !strings.Contains(outcome.Reply, "9:00 AM") {
		t.Errorf("Reply = %q, want alternative openings listed", outcome.Reply)
	}
}

// raceyCalendar reports a slot as free but refuses the booking, modeling a
// competing writer landing between the check and the write.
type raceyCalendar struct {
	*MemoryCalendar
}

func (c *raceyCalendar) CheckAvailability(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func (c *raceyCalendar) Book(context.Context, Appointment) (Appointment, error) {
	return Appointment{}, ErrConflict
}

func TestHandler_ScheduleLosingRaceRetries(t *testing.T) {
	h := NewHandler(&raceyCalendar{NewMemoryCalendar()}, nil, time.UTC, nil)

	outcome, err := h.Act(context.Background(), scheduleRequest(map[string]string{
		"date":   "2025-03-10",
		"time":   "14:00",
		"doctor": "Dr. Lee",
	}))
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusRetry || outcome.RetrySlot != "time" {
		t.Errorf("outcome = %+v, want retry on time after losing the race", outcome)
	}
}

func TestHandler_CalendarDownIsFatal(t *testing.T) {
	h := NewHandler(&failingCalendar{}, nil, time.UTC, nil)

	_, err := h.Act(context.Background(), scheduleRequest(map[string]string{
		"date":   "2025-03-10",
		"time":   "14:00",
		"doctor": "Dr. Lee",
	}))
	if err == nil {
		t.Fatal("expected fatal error when the calendar is unreachable")
	}
}

type failingCalendar struct{}

func (failingCalendar) CheckAvailability(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("calendar unreachable")
}
func (failingCalendar) Book(context.Context, Appointment) (Appointment, error) {
	return Appointment{}, errors.New("calendar unreachable")
}
func (failingCalendar) Reschedule(context.Context, string, time.Time) (Appointment, error) {
	return Appointment{}, errors.New("calendar unreachable")
}
func (failingCalendar) LookupByPhone(context.Context, string) (Appointment, error) {
	return Appointment{}, errors.New("calendar unreachable")
}
func (failingCalendar) ListAvailableSlots(context.Context, string, time.Time) ([]time.Time, error) {
	return nil, errors.New("calendar unreachable")
}

func TestHandler_RescheduleMovesAppointment(t *testing.T) {
	cal := NewMemoryCalendar()
	cal.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := cal.Book(context.Background(), Appointment{Doctor: "Dr. Lee", PatientPhone: "15551234567", Start: start}); err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	h := NewHandler(cal, nil, time.UTC, nil)
	outcome, err := h.Act(context.Background(), conversation.Request{
		Intent: conversation.IntentReschedule,
		Slots: map[string]string{
			"patient_phone": "15551234567",
			"date":          "2025-03-12",
			"time":          "10:00",
		},
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusCompleted {
		t.Fatalf("outcome = %+v, want completion", outcome)
	}

	moved, err := cal.LookupByPhone(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("LookupByPhone() error = %v", err)
	}
	want := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	if !moved.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", moved.Start, want)
	}
}

func TestHandler_RescheduleUnknownPhoneRetries(t *testing.T) {
	h := NewHandler(NewMemoryCalendar(), nil, time.UTC, nil)

	outcome, err := h.Act(context.Background(), conversation.Request{
		Intent: conversation.IntentReschedule,
		Slots: map[string]string{
			"patient_phone": "19998887777",
			"date":          "2025-03-12",
			"time":          "10:00",
		},
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusRetry || outcome.RetrySlot != "patient_phone" {
		t.Errorf("outcome = %+v, want retry on patient_phone", outcome)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	appts []Appointment
	err   error
}

func (n *recordingNotifier) NotifyBooking(_ context.Context, appt Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.appts = append(n.appts, appt)
	return n.err
}

func TestHandler_NotifierFailureDoesNotFailBooking(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	h := NewHandler(NewMemoryCalendar(), notifier, time.UTC, nil)

	outcome, err := h.Act(context.Background(), scheduleRequest(map[string]string{
		"date":   "2025-03-10",
		"time":   "14:00",
		"doctor": "Dr. Lee",
	}))
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusCompleted {
		t.Errorf("Status = %q, want completed despite notifier failure", outcome.Status)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.appts) != 1 {
		t.Errorf("notifier called %d times, want 1", len(notifier.appts))
	}
}
