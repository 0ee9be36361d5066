// Package timer talks to the remote time-tracking service.
package timer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/remote"
)

// Client is the timer collaborator contract consumed by the coordinator.
type Client interface {
	Start(ctx context.Context, itemID int, comment string) (*models.Timer, error)
	Stop(ctx context.Context, reason int) (*StopResult, error)
	GetCurrent(ctx context.Context) (*models.Timer, error)
	LogManual(ctx context.Context, itemID int, d time.Duration, comment string) (*models.Worklog, error)
	Worklogs(ctx context.Context, from, to time.Time) ([]models.Worklog, error)
}

// StopResult is the service's response to stopping a timer.
type StopResult struct {
	WorklogID  int `json:"worklogId"`
	Duration   int `json:"duration"` // seconds
	WorkItemID int `json:"workItemId"`
}

// Logged returns the logged span as a Duration.
func (r *StopResult) Logged() time.Duration {
	return time.Duration(r.Duration) * time.Second
}

// RESTClient implements Client against the timer service's REST API.
type RESTClient struct {
	base *remote.Client
}

// New builds a timer client.
func New(baseURL, pat string) *RESTClient {
	return &RESTClient{base: remote.NewClient(models.SourceTimer, baseURL, pat)}
}

// Base exposes the underlying client for test overrides.
func (c *RESTClient) Base() *remote.Client { return c.base }

type startRequest struct {
	WorkItemID int    `json:"workItemId"`
	Comment    string `json:"comment,omitempty"`
}

// Start begins tracking against a work item. Mutating: callers check
// GetCurrent first instead of retrying this blindly.
func (c *RESTClient) Start(ctx context.Context, itemID int, comment string) (*models.Timer, error) {
	if itemID < 1 {
		return nil, faults.Validationf("work item id must be >= 1, got %d", itemID)
	}
	var t models.Timer
	err := c.base.Do(ctx, http.MethodPost, "/tracking/start", startRequest{WorkItemID: itemID, Comment: comment}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Stop ends the active timer and returns the logged duration.
func (c *RESTClient) Stop(ctx context.Context, reason int) (*StopResult, error) {
	var res StopResult
	err := c.base.Do(ctx, http.MethodPost, fmt.Sprintf("/tracking/stop/%d", reason), nil, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetCurrent returns the live timer, or nil when none is running.
func (c *RESTClient) GetCurrent(ctx context.Context) (*models.Timer, error) {
	var t *models.Timer
	err := remote.Retry(ctx, func() error {
		t = nil
		return c.base.Do(ctx, http.MethodGet, "/tracking/current", nil, &t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

type worklogRequest struct {
	WorkItemID int       `json:"workItemId"`
	Duration   int       `json:"duration"` // seconds
	Timestamp  time.Time `json:"timestamp"`
	Comment    string    `json:"comment,omitempty"`
}

// LogManual records time that was not captured by a timer.
func (c *RESTClient) LogManual(ctx context.Context, itemID int, d time.Duration, comment string) (*models.Worklog, error) {
	if itemID < 1 {
		return nil, faults.Validationf("work item id must be >= 1, got %d", itemID)
	}
	if d <= 0 {
		return nil, faults.Validationf("duration must be positive, got %s", d)
	}
	var w models.Worklog
	req := worklogRequest{
		WorkItemID: itemID,
		Duration:   int(d.Seconds()),
		Timestamp:  time.Now().UTC(),
	}
	if comment != "" {
		req.Comment = comment
	}
	if err := c.base.Do(ctx, http.MethodPost, "/worklogs", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Worklogs fetches logged time within a window, for reconciliation.
func (c *RESTClient) Worklogs(ctx context.Context, from, to time.Time) ([]models.Worklog, error) {
	var logs []models.Worklog
	path := fmt.Sprintf("/worklogs?from=%s&to=%s", from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	err := remote.Retry(ctx, func() error {
		return c.base.Do(ctx, http.MethodGet, path, nil, &logs)
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// FormatDuration renders a duration as "1h 5m" or "45m".
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	mins := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
