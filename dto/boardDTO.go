package dto

import (
	"time"

	"flowboard/board"
	"flowboard/model"
)

type SetActiveProjectRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}

type ReorderTasksRequest struct {
	TaskIDs []string `json:"taskIds" binding:"required,dive,required"`
}

type MoveTaskRequest struct {
	FlowID string `json:"flowId" binding:"required"`
	// Index in the destination flow; omitted appends.
	Index *int `json:"index" binding:"omitempty,min=0"`
}

type UpdateTaskRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=5000"`
	Priority    *string    `json:"priority" binding:"omitempty,priority"`
	DueDate     *time.Time `json:"dueDate"`
	ClearDue    bool       `json:"clearDue"`
}

func (r UpdateTaskRequest) Patch() board.TaskPatch {
	p := board.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		ClearDue:    r.ClearDue && r.DueDate == nil,
	}
	if r.Priority != nil {
		prio := model.Priority(*r.Priority)
		p.Priority = &prio
	}
	return p
}

type ToggleAssigneeResponse struct {
	TaskID   string `json:"taskId"`
	UserID   string `json:"userId"`
	Assigned bool   `json:"assigned"`
}
