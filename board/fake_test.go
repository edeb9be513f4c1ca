package board

import (
	"context"
	"sync"
	"time"

	"flowboard/model"
)

// fakeBackend keeps the server side of the board in a State and mutates it
// with the same patches the client uses.
type fakeBackend struct {
	mu         sync.Mutex
	server     State
	identities map[string]model.Identity
	fail       map[string]error
	before     map[string]func(args ...string)
	calls      []string
	activity   []model.ActivityKind
	now        func() time.Time
	started    map[string]time.Time
}

func newFakeBackend(userID string, projects []model.Project) *fakeBackend {
	st := State{UserID: userID, Projects: projects, Roles: map[string]model.Role{}}
	return &fakeBackend{
		server:     st.Clone(),
		identities: map[string]model.Identity{},
		fail:       map[string]error{},
		before:     map[string]func(args ...string){},
		now:        time.Now,
		started:    map[string]time.Time{},
	}
}

func (b *fakeBackend) enter(op string, args ...string) error {
	b.mu.Lock()
	hook := b.before[op]
	b.mu.Unlock()
	if hook != nil {
		hook(args...)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, op)
	return b.fail[op]
}

func (b *fakeBackend) setFail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = err
}

func (b *fakeBackend) called(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (b *fakeBackend) apply(p Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := p.Apply(&b.server)
	return err
}

func (b *fakeBackend) FetchProjectGraph(context.Context) ([]model.Project, error) {
	if err := b.enter("FetchProjectGraph"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Project, 0, len(b.server.Projects))
	for _, p := range b.server.Projects {
		c := p.Clone()
		c.Members = nil
		for i := range c.Flows {
			for j := range c.Flows[i].Tasks {
				c.Flows[i].Tasks[j].AssigneeIDs = nil
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *fakeBackend) FetchRoles(_ context.Context, projectIDs []string, userID string) (map[string]model.Role, error) {
	if err := b.enter("FetchRoles"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	roles := map[string]model.Role{}
	for _, p := range b.server.Projects {
		if m := p.Member(userID); m != nil {
			roles[p.ProjectID] = m.Role
		}
	}
	return roles, nil
}

func (b *fakeBackend) FetchMembers(context.Context, []string) ([]model.Member, error) {
	if err := b.enter("FetchMembers"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Member
	for _, p := range b.server.Projects {
		for _, m := range p.Members {
			m = m.Clone()
			m.ProjectID = p.ProjectID
			m.Identity = model.Identity{}
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) FetchIdentities(_ context.Context, userIDs []string) ([]model.Identity, error) {
	if err := b.enter("FetchIdentities"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Identity
	for _, id := range userIDs {
		if ident, ok := b.identities[id]; ok {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (b *fakeBackend) FetchAssignees(context.Context, []string) ([]model.Assignment, error) {
	if err := b.enter("FetchAssignees"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Assignment
	for _, p := range b.server.Projects {
		for _, f := range p.Flows {
			for _, t := range f.Tasks {
				for _, u := range t.AssigneeIDs {
					out = append(out, model.Assignment{TaskID: t.TaskID, UserID: u})
				}
			}
		}
	}
	return out, nil
}

func (b *fakeBackend) ReorderTasks(_ context.Context, flowID string, ids []string) error {
	if err := b.enter("ReorderTasks", flowID); err != nil {
		return err
	}
	return b.apply(ReorderFlowTasks(flowID, ids))
}

func (b *fakeBackend) MoveTask(_ context.Context, taskID, flowID string, ids []string) error {
	if err := b.enter("MoveTask", taskID); err != nil {
		return err
	}
	index := 0
	for i, id := range ids {
		if id == taskID {
			index = i
		}
	}
	return b.apply(MoveTask(taskID, flowID, index))
}

func (b *fakeBackend) UpdateTask(_ context.Context, taskID string, patch TaskPatch) error {
	if err := b.enter("UpdateTask", taskID); err != nil {
		return err
	}
	return b.apply(TaskFields(taskID, patch))
}

func (b *fakeBackend) DeleteTask(_ context.Context, taskID string) error {
	if err := b.enter("DeleteTask", taskID); err != nil {
		return err
	}
	return b.apply(DeleteTask(taskID))
}

func (b *fakeBackend) AddAssignee(_ context.Context, taskID, userID string) error {
	if err := b.enter("AddAssignee", taskID, userID); err != nil {
		return err
	}
	return b.apply(AddAssignee(taskID, userID))
}

func (b *fakeBackend) RemoveAssignee(_ context.Context, taskID, userID string) error {
	if err := b.enter("RemoveAssignee", taskID, userID); err != nil {
		return err
	}
	return b.apply(RemoveAssignee(taskID, userID))
}

func (b *fakeBackend) StartTimer(_ context.Context, taskID string) error {
	if err := b.enter("StartTimer", taskID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started[taskID] = b.now()
	return nil
}

func (b *fakeBackend) StopTimer(_ context.Context, taskID string) error {
	if err := b.enter("StopTimer", taskID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start, ok := b.started[taskID]
	if !ok {
		return nil
	}
	delete(b.started, taskID)
	_, t := b.server.task(taskID)
	if t != nil {
		t.TrackedSeconds += int64(b.now().Sub(start) / time.Second)
	}
	return nil
}

func (b *fakeBackend) UpdateMember(_ context.Context, projectID, userID string, patch MemberPatch) error {
	if err := b.enter("UpdateMember", projectID, userID); err != nil {
		return err
	}
	return b.apply(MemberFields(projectID, userID, patch))
}

func (b *fakeBackend) RemoveMember(_ context.Context, projectID, userID string) error {
	if err := b.enter("RemoveMember", projectID, userID); err != nil {
		return err
	}
	return b.apply(RemoveMember(projectID, userID))
}

func (b *fakeBackend) AddMember(_ context.Context, projectID, userID string, role model.Role, rate *float64) error {
	if err := b.enter("AddMember", projectID, userID); err != nil {
		return err
	}
	return b.apply(AddMember(projectID, model.Member{ProjectID: projectID, UserID: userID, Role: role, Active: true, CanTrack: true, HourlyRate: rate}))
}

func (b *fakeBackend) LogActivity(_ context.Context, taskID string, kind model.ActivityKind, _ map[string]any) error {
	if err := b.enter("LogActivity", taskID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activity = append(b.activity, kind)
	return nil
}

func (b *fakeBackend) FetchTimeEntries(context.Context, []string, time.Time, time.Time) ([]model.TimeEntry, error) {
	return nil, b.enter("FetchTimeEntries")
}

var (
	t0   = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	rate = 120.0
)

// fixture: project p1 owned by "owner" with flows todo(t1,t2,t3) and done(t4);
// project p2 with one empty flow.
func fixture() []model.Project {
	return []model.Project{
		{
			ProjectID: "p1", Name: "Website", CreatedAt: t0,
			Members: []model.Member{
				{ProjectID: "p1", UserID: "owner", Role: model.RoleOwner, Active: true, CanTrack: true, CanViewCost: true},
				{ProjectID: "p1", UserID: "ann", Role: model.RoleAdmin, Active: true, CanTrack: true, HourlyRate: &rate},
				{ProjectID: "p1", UserID: "ben", Role: model.RoleMember, Active: true},
				{ProjectID: "p1", UserID: "cat", Role: model.RoleMember, Active: false},
			},
			Flows: []model.Flow{
				{FlowID: "todo", ProjectID: "p1", Name: "To do", Position: 1, Tasks: []model.Task{
					{TaskID: "t1", ProjectID: "p1", FlowID: "todo", Title: "Design", Priority: model.PriorityHigh, Position: 0, CreatedAt: t0, AssigneeIDs: []string{"ben"}},
					{TaskID: "t2", ProjectID: "p1", FlowID: "todo", Title: "Build", Priority: model.PriorityMedium, Position: 1, CreatedAt: t0, TrackedSeconds: 600},
					{TaskID: "t3", ProjectID: "p1", FlowID: "todo", Title: "Ship", Priority: model.PriorityLow, Position: 2, CreatedAt: t0},
				}},
				{FlowID: "done", ProjectID: "p1", Name: "Done", Position: 2, Tasks: []model.Task{
					{TaskID: "t4", ProjectID: "p1", FlowID: "done", Title: "Kickoff", Priority: model.PriorityLow, Position: 0, CreatedAt: t0},
				}},
			},
		},
		{
			ProjectID: "p2", Name: "Internal", CreatedAt: t0.Add(time.Hour),
			Members: []model.Member{
				{ProjectID: "p2", UserID: "owner", Role: model.RoleMember, Active: true, CanTrack: false},
			},
			Flows: []model.Flow{{FlowID: "p2-todo", ProjectID: "p2", Name: "To do", Tasks: []model.Task{
				{TaskID: "q1", ProjectID: "p2", FlowID: "p2-todo", Title: "Books", CreatedAt: t0},
			}}},
		},
	}
}

func loadedStore(t interface {
	Helper()
	Fatalf(string, ...any)
}, userID string) (*Store, *fakeBackend) {
	t.Helper()
	b := newFakeBackend(userID, fixture())
	b.identities["owner"] = model.Identity{UserID: "owner", DisplayName: "Olive", Email: "olive@example.com"}
	b.identities["ann"] = model.Identity{UserID: "ann", DisplayName: "Ann"}
	s := NewStore(b, userID)
	if err := s.LoadAll(context.Background(), ""); err != nil {
		t.Fatalf("LoadAll() err=%v, want nil", err)
	}
	return s, b
}

func taskOrder(st State, flowID string) []string {
	_, f := st.flow(flowID)
	if f == nil {
		return nil
	}
	ids := make([]string, 0, len(f.Tasks))
	for _, t := range f.Tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}
