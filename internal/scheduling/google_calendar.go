package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const patientPhoneProperty = "patient_phone"

// GoogleCalendar implements Calendar against the Google Calendar API. Each
// appointment is one event; the patient's phone number travels in a private
// extended property so LookupByPhone can query for it server-side.
type GoogleCalendar struct {
	svc        *calendar.Service
	calendarID string
}

// NewGoogleCalendar builds a Calendar over the given calendar ID using
// service-account credentials JSON.
func NewGoogleCalendar(ctx context.Context, calendarID string, credentialsJSON []byte) (*GoogleCalendar, error) {
	if calendarID == "" {
		return nil, errors.New("scheduling: calendar id is required")
	}
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduling: failed to create calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc, calendarID: calendarID}, nil
}

func (c *GoogleCalendar) CheckAvailability(ctx context.Context, doctor string, start time.Time) (bool, error) {
	events, err := c.eventsBetween(ctx, start, start.Add(AppointmentDuration), doctor)
	if err != nil {
		return false, err
	}
	return len(events) == 0, nil
}

func (c *GoogleCalendar) Book(ctx context.Context, appt Appointment) (Appointment, error) {
	// Re-check inside the write path: the calendar API has no conditional
	// insert, so this is the narrowest window we can get.
	available, err := c.CheckAvailability(ctx, appt.Doctor, appt.Start)
	if err != nil {
		return Appointment{}, err
	}
	if !available {
		return Appointment{}, ErrConflict
	}

	if appt.End.IsZero() {
		appt.End = appt.Start.Add(AppointmentDuration)
	}

	event := &calendar.Event{
		Summary:     fmt.Sprintf("Appointment with %s", appt.Doctor),
		Description: fmt.Sprintf("Patient phone: %s", appt.PatientPhone),
		Start:       &calendar.EventDateTime{DateTime: appt.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: appt.End.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				patientPhoneProperty: appt.PatientPhone,
				"doctor":             appt.Doctor,
			},
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: failed to create event: %w", err)
	}
	appt.ID = created.Id
	return appt, nil
}

func (c *GoogleCalendar) Reschedule(ctx context.Context, id string, start time.Time) (Appointment, error) {
	event, err := c.svc.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, fmt.Errorf("scheduling: failed to load event: %w", err)
	}

	doctor := ""
	if event.ExtendedProperties != nil {
		doctor = event.ExtendedProperties.Private["doctor"]
	}

	available, err := c.CheckAvailability(ctx, doctor, start)
	if err != nil {
		return Appointment{}, err
	}
	if !available {
		return Appointment{}, ErrConflict
	}

	end := start.Add(AppointmentDuration)
	event.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)}
	event.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}

	updated, err := c.svc.Events.Update(c.calendarID, id, event).Context(ctx).Do()
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: failed to update event: %w", err)
	}
	return appointmentFromEvent(updated)
}

func (c *GoogleCalendar) LookupByPhone(ctx context.Context, phone string) (Appointment, error) {
	events, err := c.svc.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", patientPhoneProperty, phone)).
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: failed to look up appointment: %w", err)
	}
	if len(events.Items) == 0 {
		return Appointment{}, ErrNotFound
	}
	return appointmentFromEvent(events.Items[0])
}

func (c *GoogleCalendar) ListAvailableSlots(ctx context.Context, doctor string, day time.Time) ([]time.Time, error) {
	slots := businessSlots(day)
	dayStart := slots[0]
	dayEnd := slots[len(slots)-1].Add(AppointmentDuration)

	events, err := c.eventsBetween(ctx, dayStart, dayEnd, doctor)
	if err != nil {
		return nil, err
	}

	var free []time.Time
	for _, slot := range slots {
		if !slotTaken(slot, events) {
			free = append(free, slot)
		}
	}
	return free, nil
}

func (c *GoogleCalendar) eventsBetween(ctx context.Context, from, to time.Time, doctor string) ([]*calendar.Event, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if doctor != "" {
		call = call.PrivateExtendedProperty(fmt.Sprintf("doctor=%s", doctor))
	}

	events, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("scheduling: failed to list events: %w", err)
	}
	return events.Items, nil
}

func slotTaken(slot time.Time, events []*calendar.Event) bool {
	slotEnd := slot.Add(AppointmentDuration)
	for _, event := range events {
		if event.Start == nil || event.End == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, event.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, event.End.DateTime)
		if err != nil {
			continue
		}
		if start.Before(slotEnd) && slot.Before(end) {
			return true
		}
	}
	return false
}

func appointmentFromEvent(event *calendar.Event) (Appointment, error) {
	if event.Start == nil || event.End == nil {
		return Appointment{}, fmt.Errorf("scheduling: event %s has no times", event.Id)
	}
	start, err := time.Parse(time.RFC3339, event.Start.DateTime)
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: event %s has invalid start: %w", event.Id, err)
	}
	end, err := time.Parse(time.RFC3339, event.End.DateTime)
	if err != nil {
		return Appointment{}, fmt.Errorf("scheduling: event %s has invalid end: %w", event.Id, err)
	}

	appt := Appointment{ID: event.Id, Start: start, End: end}
	if event.ExtendedProperties != nil {
		appt.PatientPhone = event.ExtendedProperties.Private[patientPhoneProperty]
		appt.Doctor = event.ExtendedProperties.Private["doctor"]
	}
	return appt, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
