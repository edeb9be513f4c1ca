package model

import "time"

// TimeEntry is one tracked interval. A nil Stop means the interval is still
// open. Duration is server computed and never exceeds Stop-Start.
type TimeEntry struct {
	EntryID  string     `firestore:"entryid,omitempty" json:"entryId"`
	TaskID   string     `firestore:"taskid,omitempty" json:"taskId"`
	UserID   string     `firestore:"userid,omitempty" json:"userId"`
	Start    time.Time  `firestore:"start" json:"start"`
	Stop     *time.Time `firestore:"stop" json:"stop,omitempty"`
	Duration *int64     `firestore:"duration" json:"duration,omitempty"`
}

type ActivityKind string

const (
	ActivityTitleChanged       ActivityKind = "title_changed"
	ActivityDescriptionChanged ActivityKind = "description_changed"
	ActivityDueChanged         ActivityKind = "due_changed"
	ActivityTimerStarted       ActivityKind = "timer_started"
	ActivityTimerStopped       ActivityKind = "timer_stopped"
	ActivityAssigneeAdded      ActivityKind = "assignee_added"
	ActivityAssigneeRemoved    ActivityKind = "assignee_removed"
	ActivityReordered          ActivityKind = "reordered"
)

// Activity is an append-only log record attached to a task.
type Activity struct {
	ActivityID string         `firestore:"activityid,omitempty"`
	TaskID     string         `firestore:"taskid,omitempty"`
	Kind       ActivityKind   `firestore:"kind,omitempty"`
	Details    map[string]any `firestore:"details,omitempty"`
	Actor      string         `firestore:"actor,omitempty"`
	CreatedAt  time.Time      `firestore:"createdat,omitempty"`
}
