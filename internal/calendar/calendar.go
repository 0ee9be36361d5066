// Package calendar talks to the remote calendar service.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/remote"
)

// FocusCategory tags Focus Block events so they are recognizable in any
// calendar client.
const FocusCategory = "Focus Block"

// Client is the calendar collaborator contract consumed by the coordinator.
type Client interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev models.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// RESTClient implements Client against the calendar REST API.
type RESTClient struct {
	base *remote.Client
}

// New builds a calendar client.
func New(baseURL, pat string) *RESTClient {
	return &RESTClient{base: remote.NewClient(models.SourceCalendar, baseURL, pat)}
}

// Base exposes the underlying client for test overrides.
func (c *RESTClient) Base() *remote.Client { return c.base }

type wireEvent struct {
	ID         string   `json:"id,omitempty"`
	Subject    string   `json:"subject"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Categories []string `json:"categories,omitempty"`
	WorkItemID int      `json:"workItemId,omitempty"`
}

func toWire(ev models.CalendarEvent) wireEvent {
	return wireEvent{
		ID:         ev.ID,
		Subject:    ev.Subject,
		Start:      ev.Start.UTC().Format(time.RFC3339),
		End:        ev.End.UTC().Format(time.RFC3339),
		Categories: ev.Categories,
		WorkItemID: ev.WorkItemID,
	}
}

func fromWire(w wireEvent) (models.CalendarEvent, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("event %s start: %w", w.ID, err)
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("event %s end: %w", w.ID, err)
	}
	return models.CalendarEvent{
		ID:         w.ID,
		Subject:    w.Subject,
		Start:      start,
		End:        end,
		Categories: w.Categories,
		WorkItemID: w.WorkItemID,
	}, nil
}

// ListEvents fetches events intersecting [from, to). Read-only, retried.
func (c *RESTClient) ListEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	var wires []wireEvent
	err := remote.Retry(ctx, func() error {
		return c.base.Do(ctx, http.MethodGet, "/events?"+q.Encode(), nil, &wires)
	})
	if err != nil {
		return nil, err
	}

	events := make([]models.CalendarEvent, 0, len(wires))
	for _, w := range wires {
		ev, err := fromWire(w)
		if err != nil {
			// An event the remote serialized badly is skipped, not fatal.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// CreateEvent writes an event and returns the remote event ID. Mutating:
// issued exactly once.
func (c *RESTClient) CreateEvent(ctx context.Context, ev models.CalendarEvent) (string, error) {
	var created wireEvent
	if err := c.base.Do(ctx, http.MethodPost, "/events", toWire(ev), &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteEvent removes an event.
func (c *RESTClient) DeleteEvent(ctx context.Context, eventID string) error {
	return c.base.Do(ctx, http.MethodDelete, "/events/"+url.PathEscape(eventID), nil, nil)
}
