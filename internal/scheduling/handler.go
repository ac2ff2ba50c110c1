package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// Notifier tells the clinic about calendar changes. Notification failures
// never fail the booking.
type Notifier interface {
	NotifyBooking(ctx context.Context, appt Appointment) error
}

// Handler acts on completed schedule and reschedule intents.
type Handler struct {
	calendar Calendar
	notifier Notifier
	loc      *time.Location
	logger   *logging.Logger
}

func NewHandler(calendar Calendar, notifier Notifier, loc *time.Location, logger *logging.Logger) *Handler {
	if calendar == nil {
		panic("scheduling: calendar cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{calendar: calendar, notifier: notifier, loc: loc, logger: logger}
}

var _ conversation.Handler = (*Handler)(nil)

func (h *Handler) Act(ctx context.Context, req conversation.Request) (conversation.Outcome, error) {
	switch req.Intent {
	case conversation.IntentSchedule:
		return h.schedule(ctx, req)
	case conversation.IntentReschedule:
		return h.reschedule(ctx, req)
	default:
		return conversation.Outcome{}, fmt.Errorf("scheduling: unsupported intent %q", req.Intent)
	}
}

func (h *Handler) schedule(ctx context.Context, req conversation.Request) (conversation.Outcome, error) {
	start, err := conversation.SlotTimestamp(req.Slots, h.loc)
	if err != nil {
		return conversation.Outcome{}, err
	}
	doctor := req.Slots["doctor"]

	// The slot may have been taken since it was collected, possibly several
	// turns ago. Check again immediately before writing.
	available, err := h.calendar.CheckAvailability(ctx, doctor, start)
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("scheduling: availability check failed: %w", err)
	}
	if !available {
		return h.timeConflict(ctx, doctor, start)
	}

	appt, err := h.calendar.Book(ctx, Appointment{
		PatientPhone: req.Slots["patient_phone"],
		Doctor:       doctor,
		Start:        start,
	})
	if errors.Is(err, ErrConflict) {
		return h.timeConflict(ctx, doctor, start)
	}
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("scheduling: booking failed: %w", err)
	}

	h.notify(ctx, appt)

	reply := fmt.Sprintf("You're booked with %s on %s at %s. See you then!",
		appt.Doctor,
		conversation.FormatSlot("date", req.Slots["date"]),
		conversation.FormatSlot("time", req.Slots["time"]),
	)
	return conversation.Outcome{Reply: reply, Status: conversation.StatusCompleted}, nil
}

func (h *Handler) reschedule(ctx context.Context, req conversation.Request) (conversation.Outcome, error) {
	phone := req.Slots["patient_phone"]

	appt, err := h.calendar.LookupByPhone(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return conversation.Outcome{
			Reply:     "I couldn't find an upcoming appointment under that number. What phone number did you book with?",
			Status:    conversation.StatusRetry,
			RetrySlot: "patient_phone",
		}, nil
	}
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("scheduling: appointment lookup failed: %w", err)
	}

	start, err := conversation.SlotTimestamp(req.Slots, h.loc)
	if err != nil {
		return conversation.Outcome{}, err
	}

	available, err := h.calendar.CheckAvailability(ctx, appt.Doctor, start)
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("scheduling: availability check failed: %w", err)
	}
	if !available {
		return h.timeConflict(ctx, appt.Doctor, start)
	}

	moved, err := h.calendar.Reschedule(ctx, appt.ID, start)
	if errors.Is(err, ErrConflict) {
		return h.timeConflict(ctx, appt.Doctor, start)
	}
	if err != nil {
		return conversation.Outcome{}, fmt.Errorf("scheduling: reschedule failed: %w", err)
	}

	h.notify(ctx, moved)

	reply := fmt.Sprintf("Done! Your appointment with %s is now on %s at %s.",
		moved.Doctor,
		conversation.FormatSlot("date", req.Slots["date"]),
		conversation.FormatSlot("time", req.Slots["time"]),
	)
	return conversation.Outcome{Reply: reply, Status: conversation.StatusCompleted}, nil
}

// timeConflict builds the retry outcome for a taken slot, offering the same
// day's remaining openings when there are any.
func (h *Handler) timeConflict(ctx context.Context, doctor string, start time.Time) (conversation.Outcome, error) {
	reply := "Sorry, that time was just taken."

	slots, err := h.calendar.ListAvailableSlots(ctx, doctor, start)
	if err != nil {
		h.logger.Warn("failed to list alternative slots", "doctor", doctor, "error", err.Error())
	} else if len(slots) > 0 {
		times := make([]string, 0, len(slots))
		for _, slot := range slots {
			times = append(times, slot.In(h.loc).Format("3:04 PM"))
		}
		reply = fmt.Sprintf("Sorry, that time was just taken. Openings that day: %s.", strings.Join(times, ", "))
	}

	return conversation.Outcome{
		Reply:     reply + " What other time works for you?",
		Status:    conversation.StatusRetry,
		RetrySlot: "time",
	}, nil
}

func (h *Handler) notify(ctx context.Context, appt Appointment) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyBooking(ctx, appt); err != nil {
		h.logger.Warn("failed to notify clinic of booking",
			"appointment_id", appt.ID,
			"error", err.Error(),
		)
	}
}
