package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
)

type fixedFinder struct {
	appt scheduling.Appointment
	err  error
}

func (f fixedFinder) LookupByPhone(context.Context, string) (scheduling.Appointment, error) {
	return f.appt, f.err
}

func TestReminderHandler_SendsReminder(t *testing.T) {
	appt := scheduling.Appointment{
		ID:           "a1",
		Doctor:       "Dr. Lee",
		PatientPhone: "15551234567",
		Start:        time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	messenger := NewStubMessenger()
	h := NewReminderHandler(fixedFinder{appt: appt}, messenger, time.UTC, nil)

	outcome, err := h.Act(context.Background(), conversation.Request{
		Intent:    conversation.IntentReminder,
		ChannelID: "15551234567",
		Slots:     map[string]string{"patient_phone": "15551234567"},
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusCompleted {
		t.Fatalf("Status = %q, want completed", outcome.Status)
	}
	if !strings.Contains(outcome.Reply, "Dr. Lee") || !strings.Contains(outcome.Reply, "2:00 PM") {
		t.Errorf("Reply = %q", outcome.Reply)
	}

	sent := messenger.Messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].ChannelID != "15551234567" || sent[0].Text != outcome.Reply {
		t.Errorf("sent = %+v", sent[0])
	}
}

func TestReminderHandler_UnknownPhoneRetries(t *testing.T) {
	h := NewReminderHandler(fixedFinder{err: scheduling.ErrNotFound}, NewStubMessenger(), time.UTC, nil)

	outcome, err := h.Act(context.Background(), conversation.Request{
		Intent: conversation.IntentReminder,
		Slots:  map[string]string{"patient_phone": "19998887777"},
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusRetry || outcome.RetrySlot != "patient_phone" {
		t.Errorf("outcome = %+v, want retry on patient_phone", outcome)
	}
}

func TestReminderHandler_CalendarDownIsFatal(t *testing.T) {
	h := NewReminderHandler(fixedFinder{err: errors.New("calendar unreachable")}, nil, time.UTC, nil)

	_, err := h.Act(context.Background(), conversation.Request{
		Intent: conversation.IntentReminder,
		Slots:  map[string]string{"patient_phone": "15551234567"},
	})
	if err == nil {
		t.Fatal("expected fatal error")
	}
}

type failingMessenger struct{}

func (failingMessenger) SendText(context.Context, string, string) error {
	return errors.New("network down")
}

func TestReminderHandler_MessengerFailureStillCompletes(t *testing.T) {
	appt := scheduling.Appointment{
		Doctor: "Dr. Lee",
		Start:  time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	h := NewReminderHandler(fixedFinder{appt: appt}, failingMessenger{}, time.UTC, nil)

	outcome, err := h.Act(context.Background(), conversation.Request{
		Intent:    conversation.IntentReminder,
		ChannelID: "15551234567",
		Slots:     map[string]string{"patient_phone": "15551234567"},
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if outcome.Status != conversation.StatusCompleted {
		t.Errorf("Status = %q, want completed; the reply still carries the reminder", outcome.Status)
	}
}
