package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// AppointmentFinder is the slice of the calendar the reminder handler needs.
type AppointmentFinder interface {
	LookupByPhone(ctx context.Context, phone string) (scheduling.Appointment, error)
}

// ReminderHandler acts on the reminder intent: it looks up the patient's
// next appointment by phone number and sends the reminder to the thread's
// channel.
type ReminderHandler struct {
	calendar  AppointmentFinder
	messenger Messenger
	loc       *time.Location
	logger    *logging.Logger
}

func NewReminderHandler(calendar AppointmentFinder, messenger Messenger, loc *time.Location, logger *logging.Logger) *ReminderHandler {
	if calendar == nil {
		panic("notify: calendar cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderHandler{calendar: calendar, messenger: messenger, loc: loc, logger: logger}
}

var _ conversation.Handler = (*ReminderHandler)(nil)

func (h *ReminderHandler) Act(ctx context.Context, req conversation.Request) (conversation.Outcome, error) {
	phone := req.Slots["patient_phone"]

	appt, err := h.calendar.LookupByPhone(ctx, phone)
	if errors.Is(err, scheduling.ErrNotFound) {
		return conversation.Outcome{
			Reply:     "I couldn't find an upcoming appointment under that number. What phone number did you book with?",
			Status:    conversation.StatusRetry,
			RetrySlot: "patient_phone",
		}, nil
	}
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("notify: appointment lookup failed: %w", err)
	}

	start := appt.Start.In(h.loc)
	reminder := fmt.Sprintf("Reminder: you have an appointment with %s on %s at %s.",
		appt.Doctor,
		start.Format("Monday, January 2"),
		start.Format("3:04 PM"),
	)

	// The reply itself carries the reminder; the outbound message to the
	// patient's channel is extra and only attempted when one is wired.
	if h.messenger != nil && req.ChannelID != "" {
		if err := h.messenger.SendText(ctx, req.ChannelID, reminder); err != nil {
			h.logger.Warn("failed to send reminder message",
				"channel_id", req.ChannelID,
				"error", err.Error(),
			)
		}
	}

	return conversation.Outcome{Reply: reminder, Status: conversation.StatusCompleted}, nil
}
