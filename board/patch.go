package board

import (
	"fmt"
	"strings"

	"flowboard/model"
)

// Patch is an optimistic change to the board state. Apply either changes
// every field it covers and returns the patch that undoes it, or returns an
// error and leaves the state untouched.
type Patch interface {
	Apply(st *State) (Patch, error)
}

type PatchFunc func(st *State) (Patch, error)

func (f PatchFunc) Apply(st *State) (Patch, error) { return f(st) }

type noopPatch struct{}

func (noopPatch) Apply(*State) (Patch, error) { return noopPatch{}, nil }

// noop is the inverse of a patch that changed nothing.
var noop Patch = noopPatch{}

type taskFields struct {
	taskID string
	patch  TaskPatch
}

// TaskFields sets the non-nil fields of p on a task.
func TaskFields(taskID string, p TaskPatch) Patch {
	return taskFields{taskID: taskID, patch: p}
}

func (p taskFields) String() string { return "update task " + p.taskID }

func (p taskFields) Apply(st *State) (Patch, error) {
	_, t := st.task(p.taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, p.taskID)
	}
	var undo TaskPatch
	if p.patch.Title != nil {
		old := t.Title
		undo.Title = &old
		t.Title = *p.patch.Title
	}
	if p.patch.Description != nil {
		old := t.Description
		undo.Description = &old
		t.Description = *p.patch.Description
	}
	if p.patch.Priority != nil {
		old := t.Priority
		undo.Priority = &old
		t.Priority = *p.patch.Priority
	}
	if p.patch.DueDate != nil || p.patch.ClearDue {
		if t.DueDate == nil {
			undo.ClearDue = true
		} else {
			old := *t.DueDate
			undo.DueDate = &old
		}
		if p.patch.DueDate != nil {
			d := *p.patch.DueDate
			t.DueDate = &d
		} else {
			t.DueDate = nil
		}
	}
	return taskFields{taskID: p.taskID, patch: undo}, nil
}

type trackedSeconds struct {
	taskID  string
	seconds int64
}

// TrackedSeconds replaces a task's persisted tracked-time baseline.
func TrackedSeconds(taskID string, seconds int64) Patch {
	return trackedSeconds{taskID: taskID, seconds: seconds}
}

func (p trackedSeconds) String() string { return "track time on task " + p.taskID }

func (p trackedSeconds) Apply(st *State) (Patch, error) {
	_, t := st.task(p.taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, p.taskID)
	}
	old := t.TrackedSeconds
	t.TrackedSeconds = p.seconds
	return trackedSeconds{taskID: p.taskID, seconds: old}, nil
}

type assignee struct {
	taskID string
	userID string
	add    bool
	index  int // insertion point when re-adding on rollback; -1 appends
}

func AddAssignee(taskID, userID string) Patch {
	return assignee{taskID: taskID, userID: userID, add: true, index: -1}
}

func RemoveAssignee(taskID, userID string) Patch {
	return assignee{taskID: taskID, userID: userID}
}

func (p assignee) String() string {
	if p.add {
		return "assign " + p.userID + " to task " + p.taskID
	}
	return "unassign " + p.userID + " from task " + p.taskID
}

func (p assignee) Apply(st *State) (Patch, error) {
	_, t := st.task(p.taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, p.taskID)
	}
	idx := -1
	for i, id := range t.AssigneeIDs {
		if id == p.userID {
			idx = i
			break
		}
	}
	if p.add {
		if idx >= 0 {
			return noop, nil
		}
		if p.index < 0 || p.index > len(t.AssigneeIDs) {
			t.AssigneeIDs = append(t.AssigneeIDs, p.userID)
		} else {
			ids := make([]string, 0, len(t.AssigneeIDs)+1)
			ids = append(ids, t.AssigneeIDs[:p.index]...)
			ids = append(ids, p.userID)
			t.AssigneeIDs = append(ids, t.AssigneeIDs[p.index:]...)
		}
		return assignee{taskID: p.taskID, userID: p.userID}, nil
	}
	if idx < 0 {
		return noop, nil
	}
	ids := make([]string, 0, len(t.AssigneeIDs)-1)
	ids = append(ids, t.AssigneeIDs[:idx]...)
	t.AssigneeIDs = append(ids, t.AssigneeIDs[idx+1:]...)
	return assignee{taskID: p.taskID, userID: p.userID, add: true, index: idx}, nil
}

type memberFields struct {
	projectID string
	userID    string
	patch     MemberPatch
}

// MemberFields sets the non-nil fields of p on a membership.
func MemberFields(projectID, userID string, p MemberPatch) Patch {
	return memberFields{projectID: projectID, userID: userID, patch: p}
}

func (p memberFields) String() string { return "update member " + p.userID }

func (p memberFields) Apply(st *State) (Patch, error) {
	proj := st.project(p.projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, p.projectID)
	}
	m := proj.Member(p.userID)
	if m == nil {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, p.userID)
	}
	var undo MemberPatch
	if p.patch.Role != nil {
		old := m.Role
		undo.Role = &old
		m.Role = *p.patch.Role
	}
	if p.patch.Active != nil {
		old := m.Active
		undo.Active = &old
		m.Active = *p.patch.Active
	}
	if p.patch.HourlyRate != nil || p.patch.ClearRate {
		if m.HourlyRate == nil {
			undo.ClearRate = true
		} else {
			old := *m.HourlyRate
			undo.HourlyRate = &old
		}
		if p.patch.HourlyRate != nil {
			r := *p.patch.HourlyRate
			m.HourlyRate = &r
		} else {
			m.HourlyRate = nil
		}
	}
	if p.patch.CanTrack != nil {
		old := m.CanTrack
		undo.CanTrack = &old
		m.CanTrack = *p.patch.CanTrack
	}
	if p.patch.CanViewCost != nil {
		old := m.CanViewCost
		undo.CanViewCost = &old
		m.CanViewCost = *p.patch.CanViewCost
	}
	if p.patch.Role != nil && p.userID == st.UserID && st.Roles != nil {
		st.Roles[p.projectID] = *p.patch.Role
	}
	return memberFields{projectID: p.projectID, userID: p.userID, patch: undo}, nil
}

// membership adds or drops one membership row. Rows of other members are
// never touched. Adding a present member or dropping an absent one changes
// nothing.
type membership struct {
	projectID string
	member    model.Member
	add       bool
	index     int // insertion point when adding; -1 appends
}

func (p membership) String() string {
	if p.add {
		return "add member " + p.member.UserID + " to project " + p.projectID
	}
	return "remove member " + p.member.UserID + " from project " + p.projectID
}

func (p membership) Apply(st *State) (Patch, error) {
	proj := st.project(p.projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, p.projectID)
	}
	idx := -1
	for i := range proj.Members {
		if proj.Members[i].UserID == p.member.UserID {
			idx = i
			break
		}
	}
	if p.add {
		if idx >= 0 {
			return noop, nil
		}
		m := p.member.Clone()
		if p.index < 0 || p.index > len(proj.Members) {
			proj.Members = append(proj.Members, m)
		} else {
			list := make([]model.Member, 0, len(proj.Members)+1)
			list = append(list, proj.Members[:p.index]...)
			list = append(list, m)
			proj.Members = append(list, proj.Members[p.index:]...)
		}
		return membership{projectID: p.projectID, member: model.Member{UserID: m.UserID}}, nil
	}
	if idx < 0 {
		return noop, nil
	}
	removed := proj.Members[idx].Clone()
	list := make([]model.Member, 0, len(proj.Members)-1)
	list = append(list, proj.Members[:idx]...)
	proj.Members = append(list, proj.Members[idx+1:]...)
	return membership{projectID: p.projectID, member: removed, add: true, index: idx}, nil
}

type addMember struct {
	projectID string
	member    model.Member
}

// AddMember appends m to the project's member list.
func AddMember(projectID string, m model.Member) Patch {
	return addMember{projectID: projectID, member: m}
}

func (p addMember) String() string { return "add member " + p.member.UserID + " to project " + p.projectID }

func (p addMember) Apply(st *State) (Patch, error) {
	proj := st.project(p.projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, p.projectID)
	}
	if proj.Member(p.member.UserID) != nil {
		return nil, fmt.Errorf("%w: %s is already a member", ErrInvalidInput, p.member.UserID)
	}
	return membership{projectID: p.projectID, member: p.member, add: true, index: -1}.Apply(st)
}

type removeMember struct {
	projectID string
	userID    string
}

// RemoveMember drops a membership. Task assignments are kept.
func RemoveMember(projectID, userID string) Patch {
	return removeMember{projectID: projectID, userID: userID}
}

func (p removeMember) String() string { return "remove member " + p.userID + " from project " + p.projectID }

func (p removeMember) Apply(st *State) (Patch, error) {
	proj := st.project(p.projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, p.projectID)
	}
	if proj.Member(p.userID) == nil {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, p.userID)
	}
	return membership{projectID: p.projectID, member: model.Member{UserID: p.userID}}.Apply(st)
}

// slot is where one task sits: its flow and its position there.
type slot struct {
	taskID   string
	flowID   string
	position int
}

// placement changes where tasks sit within one project. It only writes the
// flow id and position of the tasks it names, plus whole tasks it removes or
// inserts, so edits to other fields or other tasks survive its inverse.
// Tasks that are already gone are skipped.
type placement struct {
	projectID string
	remove    []string
	insert    []model.Task
	slots     []slot
}

func (p placement) String() string { return "place tasks of project " + p.projectID }

func (p placement) Apply(st *State) (Patch, error) {
	proj := st.project(p.projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, p.projectID)
	}
	for _, t := range p.insert {
		if proj.Flow(t.FlowID) == nil {
			return nil, fmt.Errorf("%w: flow %s", ErrNotFound, t.FlowID)
		}
	}
	for _, s := range p.slots {
		if proj.Flow(s.flowID) == nil {
			return nil, fmt.Errorf("%w: flow %s", ErrNotFound, s.flowID)
		}
	}

	inv := placement{projectID: p.projectID}
	touched := map[string]bool{}
	for _, id := range p.remove {
		f, t := projectTask(proj, id)
		if t == nil {
			continue
		}
		inv.insert = append(inv.insert, t.Clone())
		f.Tasks = removeTask(f.Tasks, id)
	}
	for _, t := range p.insert {
		if _, have := projectTask(proj, t.TaskID); have != nil {
			continue
		}
		f := proj.Flow(t.FlowID)
		f.Tasks = append(f.Tasks, t.Clone())
		inv.remove = append(inv.remove, t.TaskID)
		touched[f.FlowID] = true
	}
	for _, s := range p.slots {
		f, t := projectTask(proj, s.taskID)
		if t == nil {
			continue
		}
		inv.slots = append(inv.slots, slot{taskID: s.taskID, flowID: f.FlowID, position: t.Position})
		t.Position = s.position
		if f.FlowID != s.flowID {
			moved := t.Clone()
			moved.FlowID = s.flowID
			f.Tasks = removeTask(f.Tasks, s.taskID)
			dst := proj.Flow(s.flowID)
			dst.Tasks = append(dst.Tasks, moved)
		}
		touched[s.flowID] = true
	}
	for id := range touched {
		sortTasks(proj.Flow(id).Tasks)
	}
	return inv, nil
}

func projectTask(proj *model.Project, taskID string) (*model.Flow, *model.Task) {
	for i := range proj.Flows {
		f := &proj.Flows[i]
		for j := range f.Tasks {
			if f.Tasks[j].TaskID == taskID {
				return f, &f.Tasks[j]
			}
		}
	}
	return nil, nil
}

// renumber returns the slots that give ids positions 0..n-1 in flowID,
// leaving out tasks already sitting there.
func renumber(flowID string, ids []string, current map[string]model.Task) []slot {
	var out []slot
	for i, id := range ids {
		if t := current[id]; t.FlowID == flowID && t.Position == i {
			continue
		}
		out = append(out, slot{taskID: id, flowID: flowID, position: i})
	}
	return out
}

type reorder struct {
	flowID string
	ids    []string
}

// ReorderFlowTasks rewrites the task order of one flow. orderedTaskIDs must be
// a permutation of the flow's tasks; positions become the new indexes.
func ReorderFlowTasks(flowID string, orderedTaskIDs []string) Patch {
	return reorder{flowID: flowID, ids: orderedTaskIDs}
}

func (p reorder) String() string { return "reorder tasks of flow " + p.flowID }

func (p reorder) Apply(st *State) (Patch, error) {
	proj, f := st.flow(p.flowID)
	if f == nil {
		return nil, fmt.Errorf("%w: flow %s", ErrNotFound, p.flowID)
	}
	if len(p.ids) != len(f.Tasks) {
		return nil, fmt.Errorf("%w: flow %s has %d tasks, order lists %d", ErrInvalidInput, p.flowID, len(f.Tasks), len(p.ids))
	}
	byID := make(map[string]model.Task, len(f.Tasks))
	for _, t := range f.Tasks {
		byID[t.TaskID] = t
	}
	seen := make(map[string]bool, len(p.ids))
	for _, id := range p.ids {
		if _, ok := byID[id]; !ok || seen[id] {
			return nil, fmt.Errorf("%w: task %s is not in flow %s", ErrInvalidInput, id, p.flowID)
		}
		seen[id] = true
	}
	return placement{projectID: proj.ProjectID, slots: renumber(p.flowID, p.ids, byID)}.Apply(st)
}

type move struct {
	taskID string
	flowID string
	index  int
}

// MoveTask moves a task into flowID at index, renumbering the destination.
func MoveTask(taskID, flowID string, index int) Patch {
	return move{taskID: taskID, flowID: flowID, index: index}
}

func (p move) String() string { return "move task " + p.taskID + " to flow " + p.flowID }

func (p move) Apply(st *State) (Patch, error) {
	src, t := st.task(p.taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, p.taskID)
	}
	proj, dst := st.flow(p.flowID)
	if dst == nil {
		return nil, fmt.Errorf("%w: flow %s", ErrNotFound, p.flowID)
	}
	if srcProj, _ := st.flow(src.FlowID); srcProj != proj {
		return nil, fmt.Errorf("%w: flow %s belongs to another project", ErrInvalidInput, p.flowID)
	}

	current := map[string]model.Task{p.taskID: *t}
	ids := make([]string, 0, len(dst.Tasks)+1)
	for _, other := range dst.Tasks {
		if other.TaskID != p.taskID {
			ids = append(ids, other.TaskID)
			current[other.TaskID] = other
		}
	}
	index := p.index
	if index < 0 || index > len(ids) {
		index = len(ids)
	}
	ids = append(ids[:index], append([]string{p.taskID}, ids[index:]...)...)
	return placement{projectID: proj.ProjectID, slots: renumber(p.flowID, ids, current)}.Apply(st)
}

type deleteTask struct {
	taskID string
}

// DeleteTask removes a task from its flow.
func DeleteTask(taskID string) Patch {
	return deleteTask{taskID: taskID}
}

func (p deleteTask) String() string { return "delete task " + p.taskID }

func (p deleteTask) Apply(st *State) (Patch, error) {
	f, t := st.task(p.taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, p.taskID)
	}
	proj, _ := st.flow(f.FlowID)
	return placement{projectID: proj.ProjectID, remove: []string{p.taskID}}.Apply(st)
}

func removeTask(tasks []model.Task, taskID string) []model.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.TaskID != taskID {
			out = append(out, t)
		}
	}
	return out
}

type batch []Patch

// Batch applies patches in order as one unit; if one fails, the ones already
// applied are undone.
func Batch(patches ...Patch) Patch {
	return batch(patches)
}

func (b batch) String() string {
	var names []string
	for _, p := range b {
		if s, ok := p.(fmt.Stringer); ok {
			names = append(names, s.String())
		}
	}
	if len(names) == 0 {
		return "board mutation"
	}
	return strings.Join(names, ", ")
}

func (b batch) Apply(st *State) (Patch, error) {
	undo := make(batch, 0, len(b))
	for _, p := range b {
		inv, err := p.Apply(st)
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				_, _ = undo[i].Apply(st)
			}
			return nil, err
		}
		undo = append(undo, inv)
	}
	for i, j := 0, len(undo)-1; i < j; i, j = i+1, j-1 {
		undo[i], undo[j] = undo[j], undo[i]
	}
	return undo, nil
}
