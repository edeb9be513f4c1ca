package board

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"flowboard/model"
)

// Store is the in-memory mirror of one user's board graph. Reads are
// snapshot copies; every write is an optimistic Patch applied by Mutate.
type Store struct {
	backend Backend
	now     func() time.Time

	mu         sync.RWMutex
	state      State
	identities map[string]model.Identity
	inflight   int
	version    uint64 // bumped by every applied patch
	stale      bool   // a reconcile was skipped while mutations were in flight

	loadMu sync.Mutex
}

func NewStore(backend Backend, userID string) *Store {
	return &Store{
		backend:    backend,
		now:        time.Now,
		state:      State{UserID: userID, Roles: map[string]model.Role{}},
		identities: map[string]model.Identity{},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID
}

func (s *Store) Task(taskID string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, t := s.state.task(taskID)
	if t == nil {
		return model.Task{}, false
	}
	return t.Clone(), true
}

func (s *Store) FlowOf(taskID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, _ := s.state.task(taskID)
	if f == nil {
		return "", false
	}
	return f.FlowID, true
}

func (s *Store) Flow(flowID string) (model.Flow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, f := s.state.flow(flowID)
	if f == nil {
		return model.Flow{}, false
	}
	return f.Clone(), true
}

func (s *Store) Project(projectID string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.state.project(projectID)
	if p == nil {
		return model.Project{}, false
	}
	return p.Clone(), true
}

func (s *Store) Member(projectID, userID string) (model.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.state.project(projectID)
	if p == nil {
		return model.Member{}, false
	}
	m := p.Member(userID)
	if m == nil {
		return model.Member{}, false
	}
	return m.Clone(), true
}

// Identity returns the cached identity of a user, or a placeholder.
func (s *Store) Identity(userID string) model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.identities[userID]; ok {
		return id
	}
	return model.Identity{UserID: userID}
}

func (s *Store) SetActiveProject(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.project(projectID) == nil {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	s.state.ActiveProjectID = projectID
	return nil
}

// LoadAll rebuilds the whole graph, identities included. The active project
// survives the reload when it still exists; otherwise preferredProjectID, and
// failing that the first project, becomes active.
func (s *Store) LoadAll(ctx context.Context, preferredProjectID string) error {
	return s.load(ctx, preferredProjectID, true)
}

// Reload refreshes the graph reusing cached identities; only users not seen
// before are looked up.
func (s *Store) Reload(ctx context.Context) error {
	return s.load(ctx, "", false)
}

func (s *Store) load(ctx context.Context, preferredProjectID string, fullIdentity bool) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	version := s.version
	userID := s.state.UserID
	cached := make(map[string]model.Identity, len(s.identities))
	if !fullIdentity {
		for k, v := range s.identities {
			cached[k] = v
		}
	}
	s.mu.RUnlock()

	projects, err := s.backend.FetchProjectGraph(ctx)
	if err != nil {
		return fmt.Errorf("fetch project graph: %w", err)
	}
	projectIDs := make([]string, 0, len(projects))
	var taskIDs []string
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ProjectID)
		for _, f := range p.Flows {
			for _, t := range f.Tasks {
				taskIDs = append(taskIDs, t.TaskID)
			}
		}
	}

	roles := map[string]model.Role{}
	var memberRows []model.Member
	var assignments []model.Assignment
	if len(projectIDs) > 0 {
		if roles, err = s.backend.FetchRoles(ctx, projectIDs, userID); err != nil {
			return fmt.Errorf("fetch roles: %w", err)
		}
		if memberRows, err = s.backend.FetchMembers(ctx, projectIDs); err != nil {
			return fmt.Errorf("fetch members: %w", err)
		}
	}

	var missing []string
	seen := map[string]bool{}
	for _, m := range memberRows {
		if _, ok := cached[m.UserID]; !ok && !seen[m.UserID] {
			seen[m.UserID] = true
			missing = append(missing, m.UserID)
		}
	}
	if len(missing) > 0 {
		ids, err := s.backend.FetchIdentities(ctx, missing)
		if err != nil {
			return fmt.Errorf("fetch identities: %w", err)
		}
		for _, id := range ids {
			cached[id.UserID] = id
		}
	}

	if len(taskIDs) > 0 {
		if assignments, err = s.backend.FetchAssignees(ctx, taskIDs); err != nil {
			return fmt.Errorf("fetch assignees: %w", err)
		}
	}

	merge(projects, memberRows, cached, assignments)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version || s.inflight > 0 {
		// An optimistic patch landed while fetching; the mutation that owns it
		// reconciles once it completes.
		s.stale = true
		return nil
	}
	if roles == nil {
		roles = map[string]model.Role{}
	}
	active := s.state.ActiveProjectID
	s.state = State{UserID: userID, Projects: projects, Roles: roles, LoadedAt: s.now()}
	s.state.ActiveProjectID = pickActive(projects, active, preferredProjectID)
	s.identities = cached
	s.stale = false
	return nil
}

func merge(projects []model.Project, memberRows []model.Member, identities map[string]model.Identity, assignments []model.Assignment) {
	byProject := map[string][]model.Member{}
	for _, m := range memberRows {
		if id, ok := identities[m.UserID]; ok {
			m.Identity = id
		} else {
			m.Identity = model.Identity{UserID: m.UserID}
		}
		byProject[m.ProjectID] = append(byProject[m.ProjectID], m)
	}
	byTask := map[string][]string{}
	for _, a := range assignments {
		byTask[a.TaskID] = append(byTask[a.TaskID], a.UserID)
	}
	for i := range projects {
		p := &projects[i]
		p.Members = byProject[p.ProjectID]
		for j := range p.Flows {
			for k := range p.Flows[j].Tasks {
				t := &p.Flows[j].Tasks[k]
				t.AssigneeIDs = byTask[t.TaskID]
			}
		}
	}
	sortBoard(projects)
}

func pickActive(projects []model.Project, current, preferred string) string {
	has := func(id string) bool {
		for _, p := range projects {
			if p.ProjectID == id {
				return true
			}
		}
		return false
	}
	switch {
	case current != "" && has(current):
		return current
	case preferred != "" && has(preferred):
		return preferred
	case len(projects) > 0:
		return projects[0].ProjectID
	}
	return ""
}

// Mutate applies p, runs action and then reconciles with the collaborator.
// When action fails the inverse of p is applied before returning a
// *RemoteError. A Patch that cannot apply is returned as is, before action
// runs.
func (s *Store) Mutate(ctx context.Context, p Patch, action func(ctx context.Context) error) error {
	s.mu.Lock()
	inverse, err := p.Apply(&s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	s.inflight++
	s.mu.Unlock()

	actErr := action(ctx)

	s.mu.Lock()
	if actErr != nil && inverse != nil {
		if _, err := inverse.Apply(&s.state); err != nil {
			log.Printf("[board] rollback of %s incomplete: %v", describe(p), err)
		}
		s.version++
	}
	s.inflight--
	reconcile := s.inflight == 0
	if !reconcile {
		s.stale = true
	}
	s.mu.Unlock()

	if reconcile {
		s.reconcile(ctx)
	}
	if actErr != nil {
		log.Printf("[board] %s rolled back: %v", describe(p), actErr)
		return &RemoteError{Op: describe(p), Err: actErr}
	}
	return nil
}

// reconcile is the silent reload after a mutation. Failures are only logged;
// the next reload converges.
func (s *Store) reconcile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.Reload(ctx); err != nil {
		log.Printf("[board] reconcile failed: %v", err)
	}
}

// ReorderFlowTasks shows the new order immediately and persists it.
func (s *Store) ReorderFlowTasks(ctx context.Context, flowID string, orderedTaskIDs []string) error {
	ids := append([]string(nil), orderedTaskIDs...)
	return s.Mutate(ctx, ReorderFlowTasks(flowID, ids), func(ctx context.Context) error {
		return s.backend.ReorderTasks(ctx, flowID, ids)
	})
}

func describe(p Patch) string {
	if st, ok := p.(fmt.Stringer); ok {
		return st.String()
	}
	return "board mutation"
}

// Stale reports whether a reconcile was skipped and is still owed.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}
