package plan

import (
	"fmt"
	"strconv"

	"github.com/harrisonrobin/anytoggl/pkg/model"
)

type wireProject struct {
	ID       int64                 `json:"id"`
	Name     string                `json:"name"`
	Statuses []model.ProjectStatus `json:"statuses,omitempty"`
}

func (p wireProject) toModel() model.Project {
	return model.Project{
		ID:       strconv.FormatInt(p.ID, 10),
		Name:     p.Name,
		Statuses: p.Statuses,
	}
}

type projectRequest struct {
	Name         string `json:"name"`
	ColorID      int    `json:"color_id"`
	BoardEnabled bool   `json:"board_enabled,omitempty"`
}

type wireTask struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	StartDate    string           `json:"start_date,omitempty"`
	EndDate      string           `json:"end_date,omitempty"`
	StartTime    *string          `json:"start_time,omitempty"`
	EndTime      *string          `json:"end_time,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	PlanStatusID *int64           `json:"plan_status_id,omitempty"`
	Status       string           `json:"status,omitempty"`
	ProjectID    *int64           `json:"project_id,omitempty"`
	UpdatedAt    *model.Timestamp `json:"updated_at,omitempty"`
}

func (t wireTask) toModel() model.PlanTask {
	task := model.PlanTask{
		ID:           strconv.FormatInt(t.ID, 10),
		Name:         t.Name,
		Notes:        t.Notes,
		PlanStatusID: t.PlanStatusID,
		Status:       t.Status,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.ProjectID != nil {
		task.ProjectID = strconv.FormatInt(*t.ProjectID, 10)
	}
	if d, err := model.ParseDate(t.StartDate); err == nil {
		task.StartDate = &d
	}
	if d, err := model.ParseDate(t.EndDate); err == nil {
		task.EndDate = &d
	}
	task.StartTime = parseClock(t.StartTime)
	task.EndTime = parseClock(t.EndTime)
	return task
}

// parseClock accepts "HH:MM" and "HH:MM:SS".
func parseClock(s *string) *model.TimeOfDay {
	if s == nil || len(*s) < 5 {
		return nil
	}
	tod, err := model.ParseTimeOfDay((*s)[:5])
	if err != nil {
		return nil
	}
	return &tod
}

type taskRequest struct {
	Name             string `json:"name"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	UserID           *int64 `json:"user_id,omitempty"`
	ProjectID        *int64 `json:"project_id,omitempty"`
	Notes            string `json:"notes"`
	EstimatedMinutes int    `json:"estimated_minutes,omitempty"`
	PlanStatusID     *int64 `json:"plan_status_id,omitempty"`
	Status           string `json:"status,omitempty"`
}

func newTaskRequest(p model.PlanTaskPayload) (taskRequest, error) {
	req := taskRequest{
		Name:             p.Name,
		StartDate:        p.StartDate.Format(model.DateLayout),
		EndDate:          p.EndDate.Format(model.DateLayout),
		StartTime:        p.StartTime.String(),
		EndTime:          p.EndTime.String(),
		Notes:            p.Notes,
		EstimatedMinutes: p.EstimatedMinutes,
		PlanStatusID:     p.PlanStatusID,
	}
	if p.PlanStatusID == nil {
		req.Status = p.Status
	}
	if p.ProjectID != "" {
		id, err := strconv.ParseInt(p.ProjectID, 10, 64)
		if err != nil {
			return taskRequest{}, fmt.Errorf("invalid project id %q: %w", p.ProjectID, err)
		}
		req.ProjectID = &id
	}
	return req, nil
}
