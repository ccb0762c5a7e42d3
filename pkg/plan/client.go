// Package plan is the Toggl Plan v5 client for the scheduled-task
// destination. Authentication uses the OAuth2 password grant; tokens are
// cached through pkg/auth.
package plan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/rest"
	"golang.org/x/oauth2"
)

// BaseURL is the Toggl Plan API root.
const BaseURL = "https://api.plan.toggl.com/api/v5"

// OAuthConfig returns the client-credentials config for the password grant
// against the API at baseURL.
func OAuthConfig(baseURL, clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  baseURL + "/authenticate/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Client is scoped to one workspace.
type Client struct {
	api         *rest.Client
	workspaceID int64
	userID      int64
}

// NewClient returns a client that authorizes every request with a token
// from ts.
func NewClient(baseURL string, workspaceID int64, ts oauth2.TokenSource) *Client {
	api := rest.New(baseURL)
	api.Authorize = func(r *http.Request) error {
		tok, err := ts.Token()
		if err != nil {
			return err
		}
		tok.SetAuthHeader(r)
		return nil
	}
	return &Client{api: api, workspaceID: workspaceID}
}

// Me returns the authenticated user's id. Task creation requires it.
func (c *Client) Me(ctx context.Context) (int64, error) {
	if c.userID != 0 {
		return c.userID, nil
	}
	var me struct {
		ID int64 `json:"id"`
	}
	if err := c.api.Get(ctx, "/me", &me); err != nil {
		return 0, fmt.Errorf("get profile: %w", err)
	}
	c.userID = me.ID
	return me.ID, nil
}

// ListProjects returns every project with its status vocabulary.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var wire []wireProject
	if err := c.api.Get(ctx, c.path("/projects"), &wire); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := make([]model.Project, 0, len(wire))
	for _, p := range wire {
		projects = append(projects, p.toModel())
	}
	return projects, nil
}

// CreateProject creates a project. BoardEnabled gives it statuses.
func (c *Client) CreateProject(ctx context.Context, name string, opts model.ProjectOptions) (*model.Project, error) {
	req := projectRequest{Name: name, ColorID: opts.ColorID, BoardEnabled: opts.BoardEnabled}
	if req.ColorID == 0 {
		req.ColorID = 1
	}
	var p wireProject
	if err := c.api.Post(ctx, c.path("/projects"), req, &p); err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	project := p.toModel()
	return &project, nil
}

// ListTasks returns the workspace's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]model.PlanTask, error) {
	return c.ListTasksBetween(ctx, "", "")
}

// ListTasksBetween filters tasks by date; empty bounds are omitted.
func (c *Client) ListTasksBetween(ctx context.Context, since, before string) ([]model.PlanTask, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if before != "" {
		q.Set("before", before)
	}
	path := c.path("/tasks")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var wire []wireTask
	if err := c.api.Get(ctx, path, &wire); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]model.PlanTask, 0, len(wire))
	for _, t := range wire {
		tasks = append(tasks, t.toModel())
	}
	return tasks, nil
}

// CreateTask creates a task assigned to the authenticated user.
func (c *Client) CreateTask(ctx context.Context, payload model.PlanTaskPayload) (*model.PlanTask, error) {
	userID, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	req, err := newTaskRequest(payload)
	if err != nil {
		return nil, err
	}
	req.UserID = &userID

	var created wireTask
	if err := c.api.Post(ctx, c.path("/tasks"), req, &created); err != nil {
		return nil, fmt.Errorf("create task %q: %w", payload.Name, err)
	}
	task := created.toModel()
	return &task, nil
}

// UpdateTask overwrites a task. An empty payload ProjectID leaves the
// task's project unchanged.
func (c *Client) UpdateTask(ctx context.Context, id string, payload model.PlanTaskPayload) error {
	req, err := newTaskRequest(payload)
	if err != nil {
		return err
	}
	if err := c.api.Put(ctx, c.path("/tasks/"+id), req, nil); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

// DeleteTask removes a task. The sync never calls it.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := c.api.Delete(ctx, c.path("/tasks/"+id)); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (c *Client) path(p string) string {
	return "/" + strconv.FormatInt(c.workspaceID, 10) + p
}
