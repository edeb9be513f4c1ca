package model

import (
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	TaskID         string     `firestore:"taskid,omitempty" json:"taskId"`
	ProjectID      string     `firestore:"projectid,omitempty" json:"projectId"`
	FlowID         string     `firestore:"flowid" json:"flowId"` // "" = detached from any flow
	Title          string     `firestore:"title,omitempty" json:"title"`
	Description    string     `firestore:"description" json:"description"`
	Priority       Priority   `firestore:"priority,omitempty" json:"priority"`
	DueDate        *time.Time `firestore:"duedate" json:"dueDate,omitempty"`
	TrackedSeconds int64      `firestore:"trackedseconds" json:"trackedSeconds"` // persisted baseline
	Position       int        `firestore:"position" json:"position"`
	CreatedAt      time.Time  `firestore:"createdat,omitempty" json:"createdAt"`
	AssigneeIDs    []string   `firestore:"-" json:"assigneeIds"`
}

func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.AssigneeIDs != nil {
		out.AssigneeIDs = append([]string(nil), t.AssigneeIDs...)
	}
	return out
}

func (t *Task) HasAssignee(userID string) bool {
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Assignment is one row of the task/assignee join.
type Assignment struct {
	TaskID string `firestore:"taskid" json:"taskId"`
	UserID string `firestore:"userid" json:"userId"`
}
