// Package provider implements remote calendar provider adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"calsync_server/core/port/out"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleCalendarAdapter implements out.CalendarProviderPort for Google
// Calendar.
type GoogleCalendarAdapter struct {
	oauthConfig *oauth2.Config
}

var _ out.CalendarProviderPort = (*GoogleCalendarAdapter)(nil)

// NewGoogleCalendarAdapter creates a new Google Calendar adapter.
func NewGoogleCalendarAdapter(oauthConfig *oauth2.Config) *GoogleCalendarAdapter {
	return &GoogleCalendarAdapter{oauthConfig: oauthConfig}
}

// getService creates a Calendar service with token.
func (a *GoogleCalendarAdapter) getService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	client := a.oauthConfig.Client(ctx, token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

// =============================================================================
// Change Feed
// =============================================================================

// FetchChanges returns one page of changes. With a cursor the fetch is
// incremental; Google returns cancelled items in the feed, which map to
// tombstones. Without a cursor the fetch is bounded to the window and
// still yields a sync token for the next run.
func (a *GoogleCalendarAdapter) FetchChanges(ctx context.Context, token *oauth2.Token, opts *out.FetchOptions) (*out.ChangeSet, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	calendarID := opts.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	req := svc.Events.List(calendarID).
		SingleEvents(true).
		ShowDeleted(true).
		Context(ctx)

	if opts.Cursor != "" {
		req = req.SyncToken(opts.Cursor)
	} else {
		req = req.
			TimeMin(opts.WindowStart.Format(time.RFC3339)).
			TimeMax(opts.WindowEnd.Format(time.RFC3339))
	}
	if opts.MaxResults > 0 {
		req = req.MaxResults(int64(opts.MaxResults))
	}

	resp, err := req.Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	// Drain remaining pages so NextSyncToken covers the whole change set.
	items := resp.Items
	for resp.NextPageToken != "" {
		resp, err = req.PageToken(resp.NextPageToken).Do()
		if err != nil {
			return nil, mapGoogleError(err)
		}
		items = append(items, resp.Items...)
	}

	events := make([]*out.ProviderEvent, 0, len(items))
	for _, item := range items {
		events = append(events, convertEvent(item))
	}

	return &out.ChangeSet{
		Events:     events,
		NextCursor: resp.NextSyncToken,
	}, nil
}

// =============================================================================
// Event Operations
// =============================================================================

// CreateEvent creates a new event.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	created, err := svc.Events.Insert(calendarID, toGoogleEvent(event)).
		SendUpdates("none").
		Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	return convertEvent(created), nil
}

// UpdateEvent updates an existing event.
func (a *GoogleCalendarAdapter) UpdateEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	updated, err := svc.Events.Update(calendarID, eventID, toGoogleEvent(event)).
		SendUpdates("none").
		Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	return convertEvent(updated), nil
}

// DeleteEvent deletes an event.
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return mapGoogleError(err)
	}
	return nil
}

// =============================================================================
// Token and Calendar List
// =============================================================================

// RefreshToken exchanges the refresh token for a new access token.
func (a *GoogleCalendarAdapter) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := a.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			(retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			return nil, &out.ProviderError{Code: out.CodeAuthRevoked, Message: err.Error()}
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fresh, nil
}

// ListCalendars lists all calendars of the account.
func (a *GoogleCalendarAdapter) ListCalendars(ctx context.Context, token *oauth2.Token) ([]*out.ProviderCalendar, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	calendars := make([]*out.ProviderCalendar, 0, len(list.Items))
	for _, cal := range list.Items {
		calendars = append(calendars, &out.ProviderCalendar{
			ID:        cal.Id,
			Name:      cal.Summary,
			IsPrimary: cal.Primary,
		})
	}
	return calendars, nil
}

// =============================================================================
// Conversion
// =============================================================================

func convertEvent(item *calendar.Event) *out.ProviderEvent {
	event := &out.ProviderEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		Deleted:     item.Status == "cancelled",
	}

	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			event.UpdatedAt = t
		}
	}

	if item.Start != nil {
		event.Timezone = item.Start.TimeZone
		if item.Start.Date != "" {
			// All-day events carry a bare date.
			event.IsAllDay = true
			if t, err := time.Parse("2006-01-02", item.Start.Date); err == nil {
				event.StartTime = t
			}
		} else if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			event.StartTime = t
		}
	}
	if item.End != nil {
		if item.End.Date != "" {
			if t, err := time.Parse("2006-01-02", item.End.Date); err == nil {
				event.EndTime = t
			}
		} else if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
			event.EndTime = t
		}
	}

	return event
}

func toGoogleEvent(event *out.ProviderEvent) *calendar.Event {
	gcal := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
	}

	if event.IsAllDay {
		gcal.Start = &calendar.EventDateTime{Date: event.StartTime.Format("2006-01-02")}
		gcal.End = &calendar.EventDateTime{Date: event.EndTime.Format("2006-01-02")}
	} else {
		gcal.Start = &calendar.EventDateTime{
			DateTime: event.StartTime.Format(time.RFC3339),
			TimeZone: event.Timezone,
		}
		gcal.End = &calendar.EventDateTime{
			DateTime: event.EndTime.Format(time.RFC3339),
			TimeZone: event.Timezone,
		}
	}

	return gcal
}

// mapGoogleError translates Google API failures into provider codes the
// sync engine branches on.
func mapGoogleError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Code {
	case http.StatusGone:
		// Events.List with an expired sync token returns 410.
		return &out.ProviderError{Code: out.CodeSyncRequired, Message: "sync token expired"}
	case http.StatusNotFound:
		return &out.ProviderError{Code: out.CodeNotFound, Message: apiErr.Message}
	case http.StatusTooManyRequests:
		return &out.ProviderError{Code: out.CodeRateLimited, Message: apiErr.Message}
	case http.StatusUnauthorized:
		return &out.ProviderError{Code: out.CodeAuthRevoked, Message: apiErr.Message}
	default:
		return err
	}
}
