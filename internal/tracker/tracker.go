// Package tracker talks to the remote work-item tracker.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/remote"
)

// Client is the tracker collaborator contract consumed by the coordinator.
type Client interface {
	GetItem(ctx context.Context, id int) (*models.WorkItem, error)
	UpdateItemState(ctx context.Context, id int, newState string) error
	GetTypeSchema(ctx context.Context, itemType string) (*models.TypeSchema, error)
	Query(ctx context.Context, filter models.ItemFilter) ([]models.WorkItem, error)
}

// RESTClient implements Client against the tracker's REST API.
type RESTClient struct {
	base    *remote.Client
	project string
}

// New builds a tracker client for one organization/project.
func New(baseURL, project, pat string) *RESTClient {
	return &RESTClient{
		base:    remote.NewClient(models.SourceTracker, baseURL, pat),
		project: project,
	}
}

// Base exposes the underlying client for test overrides.
func (c *RESTClient) Base() *remote.Client { return c.base }

// GetItem fetches one work item. Read-only, retried with bounded backoff.
func (c *RESTClient) GetItem(ctx context.Context, id int) (*models.WorkItem, error) {
	if id < 1 {
		return nil, faults.Validationf("work item id must be >= 1, got %d", id)
	}
	var item models.WorkItem
	err := remote.Retry(ctx, func() error {
		return c.base.Do(ctx, http.MethodGet, fmt.Sprintf("/%s/workitems/%d", c.project, id), nil, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type updateStateRequest struct {
	State string `json:"state"`
}

// UpdateItemState transitions an item. Mutating: issued exactly once.
func (c *RESTClient) UpdateItemState(ctx context.Context, id int, newState string) error {
	if id < 1 {
		return faults.Validationf("work item id must be >= 1, got %d", id)
	}
	path := fmt.Sprintf("/%s/workitems/%d/state", c.project, id)
	return c.base.Do(ctx, http.MethodPatch, path, updateStateRequest{State: newState}, nil)
}

// GetTypeSchema fetches the state machine for a work item type.
func (c *RESTClient) GetTypeSchema(ctx context.Context, itemType string) (*models.TypeSchema, error) {
	var schema models.TypeSchema
	err := remote.Retry(ctx, func() error {
		return c.base.Do(ctx, http.MethodGet, fmt.Sprintf("/%s/workitemtypes/%s", c.project, url.PathEscape(itemType)), nil, &schema)
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// Query lists work items matching the filter.
func (c *RESTClient) Query(ctx context.Context, filter models.ItemFilter) ([]models.WorkItem, error) {
	q := url.Values{}
	if filter.State != "" {
		q.Set("state", filter.State)
	}
	if filter.AssignedTo != "" {
		q.Set("assignedTo", filter.AssignedTo)
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q.Set("limit", strconv.Itoa(limit))

	var items []models.WorkItem
	err := remote.Retry(ctx, func() error {
		return c.base.Do(ctx, http.MethodGet, fmt.Sprintf("/%s/workitems?%s", c.project, q.Encode()), nil, &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
