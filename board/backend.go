package board

import (
	"context"
	"time"

	"flowboard/model"
)

// Backend is the storage collaborator as seen by one signed-in user.
type Backend interface {
	// FetchProjectGraph returns the user's projects by creation time, flows by
	// position and tasks by position then newest first.
	FetchProjectGraph(ctx context.Context) ([]model.Project, error)
	FetchRoles(ctx context.Context, projectIDs []string, userID string) (map[string]model.Role, error)
	FetchMembers(ctx context.Context, projectIDs []string) ([]model.Member, error)
	// FetchIdentities returns merged identities; ids without a record are omitted.
	FetchIdentities(ctx context.Context, userIDs []string) ([]model.Identity, error)
	FetchAssignees(ctx context.Context, taskIDs []string) ([]model.Assignment, error)

	ReorderTasks(ctx context.Context, flowID string, orderedTaskIDs []string) error
	// MoveTask puts taskID into flowID; orderedTaskIDs is the new order of flowID.
	MoveTask(ctx context.Context, taskID, flowID string, orderedTaskIDs []string) error
	UpdateTask(ctx context.Context, taskID string, patch TaskPatch) error
	DeleteTask(ctx context.Context, taskID string) error
	AddAssignee(ctx context.Context, taskID, userID string) error
	RemoveAssignee(ctx context.Context, taskID, userID string) error

	StartTimer(ctx context.Context, taskID string) error
	StopTimer(ctx context.Context, taskID string) error

	UpdateMember(ctx context.Context, projectID, userID string, patch MemberPatch) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	AddMember(ctx context.Context, projectID, userID string, role model.Role, rate *float64) error

	LogActivity(ctx context.Context, taskID string, kind model.ActivityKind, details map[string]any) error
	// FetchTimeEntries returns closed entries of taskIDs overlapping [start, end).
	// Zero bounds are unbounded.
	FetchTimeEntries(ctx context.Context, taskIDs []string, start, end time.Time) ([]model.TimeEntry, error)
}

// TaskPatch lists the task fields to change. Nil fields are left alone.
type TaskPatch struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Priority    *model.Priority `json:"priority,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	ClearDue    bool            `json:"clearDue,omitempty"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.DueDate == nil && !p.ClearDue
}

// MemberPatch lists the membership fields to change. Nil fields are left alone.
type MemberPatch struct {
	Role        *model.Role `json:"role,omitempty"`
	Active      *bool       `json:"active,omitempty"`
	HourlyRate  *float64    `json:"hourlyRate,omitempty"`
	ClearRate   bool        `json:"clearRate,omitempty"`
	CanTrack    *bool       `json:"canTrack,omitempty"`
	CanViewCost *bool       `json:"canViewCost,omitempty"`
}

func (p MemberPatch) Empty() bool {
	return p.Role == nil && p.Active == nil && p.HourlyRate == nil && !p.ClearRate && p.CanTrack == nil && p.CanViewCost == nil
}
