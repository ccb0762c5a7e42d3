// Package anytype is the client for the source task store, an Anytype
// space reached through its local HTTP API.
package anytype

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/rest"
	"github.com/harrisonrobin/anytoggl/pkg/status"
)

// DefaultTag marks the tasks that take part in the sync.
const DefaultTag = "Toggl"

// Client talks to one Anytype space.
type Client struct {
	api     *rest.Client
	spaceID string
	tag     string
	logger  *slog.Logger
}

// NewClient returns a client authenticated with an API bearer token.
func NewClient(baseURL, token, spaceID string) *Client {
	api := rest.New(baseURL)
	api.Authorize = func(r *http.Request) error {
		r.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	return &Client{api: api, spaceID: spaceID, tag: DefaultTag, logger: slog.Default()}
}

// WithTag changes the tag that selects tasks.
func (c *Client) WithTag(tag string) *Client {
	c.tag = tag
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// GetObject fetches an object by id.
func (c *Client) GetObject(ctx context.Context, id string) (*Object, error) {
	var resp objectResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/v1/spaces/%s/objects/%s", c.spaceID, id), &resp); err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return &resp.Object, nil
}

// SearchTasks returns every task object carrying the sync tag.
func (c *Client) SearchTasks(ctx context.Context) ([]model.SourceTask, error) {
	var resp searchResponse
	req := searchRequest{Query: "", Types: []string{"task"}}
	if err := c.api.Post(ctx, fmt.Sprintf("/v1/spaces/%s/search", c.spaceID), req, &resp); err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}

	tasks := make([]model.SourceTask, 0, len(resp.Data))
	for i := range resp.Data {
		obj := &resp.Data[i]
		if !obj.hasTag(c.tag) {
			continue
		}
		tasks = append(tasks, c.toTask(ctx, obj))
	}
	return tasks, nil
}

// UpdateTask patches the given fields of a task; other fields are untouched.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) error {
	if err := c.api.Patch(ctx, fmt.Sprintf("/v1/spaces/%s/objects/%s", c.spaceID, id), fields, nil); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

func (c *Client) toTask(ctx context.Context, obj *Object) model.SourceTask {
	task := model.SourceTask{
		ID:     obj.ID,
		Name:   obj.Name,
		Status: taskStatus(obj),
	}
	if obj.Snippet != "" {
		task.Description = model.Ptr(obj.Snippet)
	}
	if name := c.projectName(ctx, obj); name != "" {
		task.Project = model.Ptr(name)
	}
	if v := obj.text(KeyTrackID); v != "" {
		task.TrackID = model.Ptr(v)
	}
	if v := obj.text(KeyPlanID); v != "" {
		task.PlanID = model.Ptr(v)
	}
	if v := obj.text(KeyEventID); v != "" {
		task.EventID = model.Ptr(v)
	}

	if v := obj.date(KeyStartDate); v != "" {
		if d, err := model.ParseDate(v); err == nil {
			task.StartDate = &d
		} else {
			c.logger.Warn("ignoring start date", "task", obj.ID, "error", err)
		}
	}
	if v := obj.date(KeyEndDate); v != "" {
		if d, err := model.ParseDate(v); err == nil {
			task.EndDate = &d
		} else {
			c.logger.Warn("ignoring end date", "task", obj.ID, "error", err)
		}
	}
	if v := obj.text(KeyStartTime); v != "" {
		if tod, err := model.ParseTimeOfDay(v); err == nil {
			task.StartTime = &tod
		}
	}
	if v := obj.text(KeyEndTime); v != "" {
		if tod, err := model.ParseTimeOfDay(v); err == nil {
			task.EndTime = &tod
		}
	}
	if v := obj.date(KeyLastModified); v != "" {
		if ts, err := model.ParseTimestamp(v); err == nil {
			task.LastModified = &ts
		} else {
			c.logger.Warn("ignoring last modified date", "task", obj.ID, "error", err)
		}
	}
	return task
}

// taskStatus reads the done checkbox first, then the status select.
func taskStatus(obj *Object) string {
	if p := obj.property(KeyDone); p != nil && p.Checkbox != nil && *p.Checkbox {
		return status.SourceDone
	}
	if p := obj.property(KeyStatus); p != nil && p.Select != nil && p.Select.Name != "" {
		return p.Select.Name
	}
	return status.SourceToDo
}

// projectName resolves the first linked project. Bare ids are looked up;
// a failed lookup leaves the task without a project.
func (c *Client) projectName(ctx context.Context, obj *Object) string {
	p := obj.property(KeyLinkedProjects)
	if p == nil || len(p.Objects) == 0 {
		return ""
	}
	linked, ok := parseLinkedObject(p.Objects[0])
	if !ok {
		return ""
	}
	if linked.Name != "" {
		return linked.Name
	}
	project, err := c.GetObject(ctx, linked.ID)
	if err != nil {
		c.logger.Debug("could not resolve linked project", "task", obj.ID, "project", linked.ID, "error", err)
		return ""
	}
	return project.Name
}
