// Package toggl is the Toggl Track v9 client for the time-entry destination.
package toggl

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/rest"
)

// BaseURL is the Toggl Track API root.
const BaseURL = "https://api.track.toggl.com/api/v9"

const createdWith = "anytoggl"

// Client is scoped to one workspace.
type Client struct {
	api         *rest.Client
	workspaceID int64
}

type project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type projectRequest struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// NewClient authenticates with an API token (basic auth, password "api_token").
func NewClient(token string, workspaceID int64) *Client {
	return NewClientWithURL(BaseURL, token, workspaceID)
}

// NewClientWithURL is NewClient against a different API root.
func NewClientWithURL(baseURL, token string, workspaceID int64) *Client {
	api := rest.New(baseURL)
	api.Authorize = func(r *http.Request) error {
		r.SetBasicAuth(token, "api_token")
		return nil
	}
	return &Client{api: api, workspaceID: workspaceID}
}

// ListProjects returns the workspace's projects by name.
func (c *Client) ListProjects(ctx context.Context) (map[string]int64, error) {
	var projects []project
	if err := c.api.Get(ctx, fmt.Sprintf("/workspaces/%d/projects", c.workspaceID), &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	byName := make(map[string]int64, len(projects))
	for _, p := range projects {
		byName[p.Name] = p.ID
	}
	return byName, nil
}

// CreateProject creates an active project and returns its id.
func (c *Client) CreateProject(ctx context.Context, name string) (int64, error) {
	var p project
	if err := c.api.Post(ctx, fmt.Sprintf("/workspaces/%d/projects", c.workspaceID), projectRequest{Name: name, Active: true}, &p); err != nil {
		return 0, fmt.Errorf("create project %q: %w", name, err)
	}
	return p.ID, nil
}

// ListTimeEntries returns the user's recent time entries.
func (c *Client) ListTimeEntries(ctx context.Context) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	if err := c.api.Get(ctx, "/me/time_entries", &entries); err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	return entries, nil
}

// CreateTimeEntry creates an entry in the client's workspace.
func (c *Client) CreateTimeEntry(ctx context.Context, payload model.TimeEntryPayload) (*model.TimeEntry, error) {
	payload.WorkspaceID = c.workspaceID
	payload.CreatedWith = createdWith

	var entry model.TimeEntry
	if err := c.api.Post(ctx, fmt.Sprintf("/workspaces/%d/time_entries", c.workspaceID), payload, &entry); err != nil {
		return nil, fmt.Errorf("create time entry: %w", err)
	}
	return &entry, nil
}

// UpdateTimeEntry overwrites an entry with payload.
func (c *Client) UpdateTimeEntry(ctx context.Context, id int64, payload model.TimeEntryPayload) error {
	if err := c.api.Put(ctx, fmt.Sprintf("/workspaces/%d/time_entries/%d", c.workspaceID, id), payload, nil); err != nil {
		return fmt.Errorf("update time entry %d: %w", id, err)
	}
	return nil
}
