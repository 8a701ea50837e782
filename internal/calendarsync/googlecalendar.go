package calendarsync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleFetcher is the production Fetcher, wrapping
// google.golang.org/api/calendar/v3 against the primary calendar of
// whatever account the access token authenticates. A fresh client is
// built per call since the access token rotates between polls and the
// official client has no cheap way to swap credentials on an existing
// instance.
type GoogleFetcher struct{}

// NewGoogleFetcher returns a Fetcher backed by the real Calendar API.
func NewGoogleFetcher() *GoogleFetcher { return &GoogleFetcher{} }

// FetchDayEvents lists non-cancelled and cancelled events between
// day's start and the following day, both taken in day's location.
func (GoogleFetcher) FetchDayEvents(ctx context.Context, accessToken string, day time.Time) ([]Event, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendarsync: new calendar service: %w", err)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	call := svc.Events.List("primary").
		ShowDeleted(true).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		Context(ctx)

	var out []Event
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			out = append(out, convertEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calendarsync: list events: %w", err)
	}
	return out, nil
}

func convertEvent(item *calendar.Event) Event {
	ev := Event{
		ID:        item.Id,
		Title:     item.Summary,
		Cancelled: item.Status == "cancelled",
	}
	if item.Start != nil {
		ev.Start = parseEventTime(item.Start.DateTime, item.Start.Date)
	}
	if item.End != nil {
		ev.End = parseEventTime(item.End.DateTime, item.End.Date)
	}
	for _, a := range item.Attendees {
		if a.Email == "" || a.Resource {
			continue
		}
		ev.Attendees = append(ev.Attendees, Attendee{Email: a.Email, DisplayName: a.DisplayName})
	}
	return ev
}

// parseEventTime handles both timed events (RFC3339 DateTime) and
// all-day events (date-only Date field).
func parseEventTime(dateTime, date string) time.Time {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t
		}
	}
	if date != "" {
		if t, err := time.Parse("2006-01-02", date); err == nil {
			return t
		}
	}
	return time.Time{}
}
