package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flowboard/board"
	"flowboard/model"

	"github.com/google/uuid"
)

// Memory is an in-process stand-in for Firestore shared by every user. It
// backs `serve --memory` and the HTTP tests.
type Memory struct {
	mu         sync.Mutex
	state      board.State
	identities map[string]model.Identity
	entries    []model.TimeEntry
	activity   []model.Activity
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		state:      board.State{Roles: map[string]model.Role{}},
		identities: map[string]model.Identity{},
		now:        time.Now,
	}
}

// SetClock replaces the time source used for entries and activity.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Seed adds a project with its flows, tasks, members and assignees.
func (m *Memory) Seed(p model.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Projects = append(m.state.Projects, p.Clone())
}

func (m *Memory) SetIdentity(id model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.UserID] = id
}

// AddEntry records a time entry as if it had been tracked earlier.
func (m *Memory) AddEntry(e model.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.EntryID == "" {
		e.EntryID = uuid.New().String()
	}
	m.entries = append(m.entries, e)
}

func (m *Memory) Activity() []model.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Activity(nil), m.activity...)
}

// For returns the collaborator as seen by userID.
func (m *Memory) For(userID string) board.Backend {
	return &memoryView{m: m, userID: userID}
}

type memoryView struct {
	m      *Memory
	userID string
}

var _ board.Backend = (*memoryView)(nil)

func (v *memoryView) apply(p board.Patch) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	_, err := p.Apply(&v.m.state)
	return err
}

func (v *memoryView) FetchProjectGraph(context.Context) ([]model.Project, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []model.Project
	for _, p := range v.m.state.Projects {
		if p.Archived || p.Member(v.userID) == nil {
			continue
		}
		c := p.Clone()
		c.Members = nil
		for i := range c.Flows {
			for j := range c.Flows[i].Tasks {
				c.Flows[i].Tasks[j].AssigneeIDs = nil
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *memoryView) FetchRoles(_ context.Context, projectIDs []string, userID string) (map[string]model.Role, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	roles := map[string]model.Role{}
	for _, p := range v.m.state.Projects {
		if !contains(projectIDs, p.ProjectID) {
			continue
		}
		if mem := p.Member(userID); mem != nil {
			roles[p.ProjectID] = mem.Role
		}
	}
	return roles, nil
}

func (v *memoryView) FetchMembers(_ context.Context, projectIDs []string) ([]model.Member, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []model.Member
	for _, p := range v.m.state.Projects {
		if !contains(projectIDs, p.ProjectID) {
			continue
		}
		for _, mem := range p.Members {
			mem = mem.Clone()
			mem.ProjectID = p.ProjectID
			mem.Identity = model.Identity{}
			out = append(out, mem)
		}
	}
	return out, nil
}

func (v *memoryView) FetchIdentities(_ context.Context, userIDs []string) ([]model.Identity, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []model.Identity
	for _, id := range userIDs {
		if ident, ok := v.m.identities[id]; ok {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (v *memoryView) FetchAssignees(_ context.Context, taskIDs []string) ([]model.Assignment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []model.Assignment
	for _, p := range v.m.state.Projects {
		for _, f := range p.Flows {
			for _, t := range f.Tasks {
				if !contains(taskIDs, t.TaskID) {
					continue
				}
				for _, u := range t.AssigneeIDs {
					out = append(out, model.Assignment{TaskID: t.TaskID, UserID: u})
				}
			}
		}
	}
	return out, nil
}

func (v *memoryView) ReorderTasks(_ context.Context, flowID string, orderedTaskIDs []string) error {
	return v.apply(board.ReorderFlowTasks(flowID, orderedTaskIDs))
}

func (v *memoryView) MoveTask(_ context.Context, taskID, flowID string, orderedTaskIDs []string) error {
	index := -1
	for i, id := range orderedTaskIDs {
		if id == taskID {
			index = i
		}
	}
	return v.apply(board.MoveTask(taskID, flowID, index))
}

func (v *memoryView) UpdateTask(_ context.Context, taskID string, patch board.TaskPatch) error {
	return v.apply(board.TaskFields(taskID, patch))
}

func (v *memoryView) DeleteTask(_ context.Context, taskID string) error {
	return v.apply(board.DeleteTask(taskID))
}

func (v *memoryView) AddAssignee(_ context.Context, taskID, userID string) error {
	return v.apply(board.AddAssignee(taskID, userID))
}

func (v *memoryView) RemoveAssignee(_ context.Context, taskID, userID string) error {
	return v.apply(board.RemoveAssignee(taskID, userID))
}

func (v *memoryView) StartTimer(_ context.Context, taskID string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, e := range v.m.entries {
		if e.UserID != v.userID || e.Stop != nil {
			continue
		}
		if e.TaskID == taskID {
			return nil
		}
		return fmt.Errorf("timer already running on task %s", e.TaskID)
	}
	v.m.entries = append(v.m.entries, model.TimeEntry{
		EntryID: uuid.New().String(),
		TaskID:  taskID,
		UserID:  v.userID,
		Start:   v.m.now(),
	})
	return nil
}

func (v *memoryView) StopTimer(_ context.Context, taskID string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	now := v.m.now()
	var total int64
	closed := 0
	for i := range v.m.entries {
		e := &v.m.entries[i]
		if e.UserID != v.userID || e.TaskID != taskID || e.Stop != nil {
			continue
		}
		secs := int64(now.Sub(e.Start) / time.Second)
		if secs < 0 {
			secs = 0
		}
		stop := now
		e.Stop, e.Duration = &stop, &secs
		total += secs
		closed++
	}
	if closed == 0 {
		return fmt.Errorf("no running timer on task %s", taskID)
	}
	return v.addTracked(taskID, total)
}

func (v *memoryView) addTracked(taskID string, seconds int64) error {
	for i := range v.m.state.Projects {
		for j := range v.m.state.Projects[i].Flows {
			tasks := v.m.state.Projects[i].Flows[j].Tasks
			for k := range tasks {
				if tasks[k].TaskID == taskID {
					tasks[k].TrackedSeconds += seconds
					return nil
				}
			}
		}
	}
	return fmt.Errorf("%w: task %s", board.ErrNotFound, taskID)
}

func (v *memoryView) UpdateMember(_ context.Context, projectID, userID string, patch board.MemberPatch) error {
	return v.apply(board.MemberFields(projectID, userID, patch))
}

func (v *memoryView) RemoveMember(_ context.Context, projectID, userID string) error {
	return v.apply(board.RemoveMember(projectID, userID))
}

func (v *memoryView) AddMember(_ context.Context, projectID, userID string, role model.Role, rate *float64) error {
	return v.apply(board.AddMember(projectID, model.Member{
		ProjectID:  projectID,
		UserID:     userID,
		Role:       role,
		Active:     true,
		CanTrack:   true,
		HourlyRate: rate,
	}))
}

func (v *memoryView) LogActivity(_ context.Context, taskID string, kind model.ActivityKind, details map[string]any) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	v.m.activity = append(v.m.activity, model.Activity{
		ActivityID: uuid.New().String(),
		TaskID:     taskID,
		Kind:       kind,
		Details:    details,
		Actor:      v.userID,
		CreatedAt:  v.m.now(),
	})
	return nil
}

func (v *memoryView) FetchTimeEntries(_ context.Context, taskIDs []string, start, end time.Time) ([]model.TimeEntry, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []model.TimeEntry
	for _, e := range v.m.entries {
		if contains(taskIDs, e.TaskID) && overlaps(e, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// SeedDemo fills m with a small project owned by ownerID for local runs.
func SeedDemo(m *Memory, ownerID string) {
	now := m.now().UTC()
	rate := 50000.0
	m.SetIdentity(model.Identity{UserID: ownerID, DisplayName: "Demo Owner", Email: "owner@example.com"})
	m.SetIdentity(model.Identity{UserID: "teammate", DisplayName: "Teammate", Email: "teammate@example.com"})
	m.Seed(model.Project{
		ProjectID: "demo",
		Name:      "Demo project",
		CreatedBy: ownerID,
		CreatedAt: now,
		Members: []model.Member{
			{ProjectID: "demo", UserID: ownerID, Role: model.RoleOwner, Active: true, CanTrack: true, CanViewCost: true},
			{ProjectID: "demo", UserID: "teammate", Role: model.RoleMember, Active: true, CanTrack: true, HourlyRate: &rate},
		},
		Flows: []model.Flow{
			{FlowID: "demo-todo", ProjectID: "demo", Name: "To do", Position: 0, Tasks: []model.Task{
				{TaskID: "demo-1", ProjectID: "demo", FlowID: "demo-todo", Title: "Write brief", Priority: model.PriorityHigh, Position: 0, CreatedAt: now, AssigneeIDs: []string{ownerID, "teammate"}},
				{TaskID: "demo-2", ProjectID: "demo", FlowID: "demo-todo", Title: "Collect feedback", Priority: model.PriorityMedium, Position: 1, CreatedAt: now},
			}},
			{FlowID: "demo-doing", ProjectID: "demo", Name: "Doing", Position: 1, Tasks: []model.Task{
				{TaskID: "demo-3", ProjectID: "demo", FlowID: "demo-doing", Title: "Prototype", Priority: model.PriorityLow, Position: 0, CreatedAt: now, TrackedSeconds: 3600, AssigneeIDs: []string{"teammate"}},
			}},
			{FlowID: "demo-done", ProjectID: "demo", Name: "Done", Position: 2},
		},
	})
	start := now.Add(-2 * time.Hour)
	stop := start.Add(time.Hour)
	m.AddEntry(model.TimeEntry{TaskID: "demo-3", UserID: "teammate", Start: start, Stop: &stop})
}
