package notify

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/scheduling"
)

// BookingNotifier emails the clinic when an appointment is created or moved.
type BookingNotifier struct {
	sender EmailSender
	to     string
}

func NewBookingNotifier(sender EmailSender, to string) *BookingNotifier {
	if sender == nil || to == "" {
		return nil
	}
	return &BookingNotifier{sender: sender, to: to}
}

func (n *BookingNotifier) NotifyBooking(ctx context.Context, appt scheduling.Appointment) error {
	body := fmt.Sprintf(
		"Appointment %s\nDoctor: %s\nPatient phone: %s\nStarts: %s\nEnds: %s\n",
		appt.ID,
		appt.Doctor,
		appt.PatientPhone,
		appt.Start.Format("Monday, January 2, 2006 3:04 PM"),
		appt.End.Format("3:04 PM"),
	)
	return n.sender.Send(ctx, EmailMessage{
		To:      n.to,
		ToName:  "Front Desk",
		Subject: fmt.Sprintf("Calendar update: %s on %s", appt.Doctor, appt.Start.Format("Jan 2")),
		Body:    body,
	})
}

var _ scheduling.Notifier = (*BookingNotifier)(nil)
