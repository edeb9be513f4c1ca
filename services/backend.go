package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flowboard/board"
	"flowboard/model"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	colProjects    = "Projects"
	colFlows       = "Flows"
	colTasks       = "Tasks"
	colMembers     = "ProjectMembers"
	colUsers       = "Users"
	colProfiles    = "Profiles"
	colAssignees   = "TaskAssignees"
	colTimeEntries = "TimeEntries"
	colActivity    = "ActivityLog"
)

// Firestore rejects "in" filters with more than 30 values.
const inLimit = 30

// FirestoreBackend is the board collaborator for one signed-in user.
type FirestoreBackend struct {
	client *firestore.Client
	userID string
	now    func() time.Time
}

var _ board.Backend = (*FirestoreBackend)(nil)

func NewFirestoreBackend(client *firestore.Client, userID string) *FirestoreBackend {
	return &FirestoreBackend{client: client, userID: userID, now: time.Now}
}

func memberDocID(projectID, userID string) string { return projectID + "_" + userID }
func assigneeDocID(taskID, userID string) string  { return taskID + "_" + userID }

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// queryIn runs q.Where(field, "in", chunk) for every chunk of ids and hands
// each document to fn.
func queryIn(ctx context.Context, q firestore.Query, field string, ids []string, fn func(*firestore.DocumentSnapshot) error) error {
	for _, chunk := range chunks(ids, inLimit) {
		iter := q.Where(field, "in", chunk).Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return err
			}
			if err := fn(doc); err != nil {
				iter.Stop()
				return err
			}
		}
		iter.Stop()
	}
	return nil
}

func notFound(err error, what string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", board.ErrNotFound, what)
	}
	return err
}

func (b *FirestoreBackend) FetchProjectGraph(ctx context.Context) ([]model.Project, error) {
	memberDocs, err := b.client.Collection(colMembers).Where("userid", "==", b.userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	refs := make([]*firestore.DocumentRef, 0, len(memberDocs))
	for _, doc := range memberDocs {
		var m model.Member
		if err := doc.DataTo(&m); err != nil {
			return nil, err
		}
		refs = append(refs, b.client.Collection(colProjects).Doc(m.ProjectID))
	}
	if len(refs) == 0 {
		return nil, nil
	}

	snaps, err := b.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	var projects []model.Project
	var ids []string
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var p model.Project
		if err := snap.DataTo(&p); err != nil {
			return nil, err
		}
		if p.Archived {
			continue
		}
		p.ProjectID = snap.Ref.ID
		projects = append(projects, p)
		ids = append(ids, p.ProjectID)
	}
	sort.SliceStable(projects, func(i, j int) bool { return projects[i].CreatedAt.Before(projects[j].CreatedAt) })

	flowsByProject := map[string][]model.Flow{}
	err = queryIn(ctx, b.client.Collection(colFlows).Query, "projectid", ids, func(doc *firestore.DocumentSnapshot) error {
		var f model.Flow
		if err := doc.DataTo(&f); err != nil {
			return err
		}
		f.FlowID = doc.Ref.ID
		flowsByProject[f.ProjectID] = append(flowsByProject[f.ProjectID], f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}

	tasksByFlow := map[string][]model.Task{}
	err = queryIn(ctx, b.client.Collection(colTasks).Query, "projectid", ids, func(doc *firestore.DocumentSnapshot) error {
		var t model.Task
		if err := doc.DataTo(&t); err != nil {
			return err
		}
		t.TaskID = doc.Ref.ID
		if t.FlowID != "" {
			tasksByFlow[t.FlowID] = append(tasksByFlow[t.FlowID], t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	for i := range projects {
		flows := flowsByProject[projects[i].ProjectID]
		sort.SliceStable(flows, func(x, y int) bool { return flows[x].Position < flows[y].Position })
		for j := range flows {
			tasks := tasksByFlow[flows[j].FlowID]
			sort.SliceStable(tasks, func(x, y int) bool {
				if tasks[x].Position != tasks[y].Position {
					return tasks[x].Position < tasks[y].Position
				}
				return tasks[x].CreatedAt.After(tasks[y].CreatedAt)
			})
			flows[j].Tasks = tasks
		}
		projects[i].Flows = flows
	}
	return projects, nil
}

func (b *FirestoreBackend) FetchRoles(ctx context.Context, projectIDs []string, userID string) (map[string]model.Role, error) {
	refs := make([]*firestore.DocumentRef, len(projectIDs))
	for i, id := range projectIDs {
		refs[i] = b.client.Collection(colMembers).Doc(memberDocID(id, userID))
	}
	snaps, err := b.client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]model.Role, len(snaps))
	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var m model.Member
		if err := snap.DataTo(&m); err != nil {
			return nil, err
		}
		roles[projectIDs[i]] = m.Role
	}
	return roles, nil
}

func (b *FirestoreBackend) FetchMembers(ctx context.Context, projectIDs []string) ([]model.Member, error) {
	var out []model.Member
	err := queryIn(ctx, b.client.Collection(colMembers).Query, "projectid", projectIDs, func(doc *firestore.DocumentSnapshot) error {
		var m model.Member
		if err := doc.DataTo(&m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (b *FirestoreBackend) UpdateMember(ctx context.Context, projectID, userID string, patch board.MemberPatch) error {
	var updates []firestore.Update
	if patch.Role != nil {
		updates = append(updates, firestore.Update{Path: "role", Value: string(*patch.Role)})
	}
	if patch.Active != nil {
		updates = append(updates, firestore.Update{Path: "active", Value: *patch.Active})
	}
	if patch.HourlyRate != nil {
		updates = append(updates, firestore.Update{Path: "hourlyrate", Value: *patch.HourlyRate})
	} else if patch.ClearRate {
		updates = append(updates, firestore.Update{Path: "hourlyrate", Value: nil})
	}
	if patch.CanTrack != nil {
		updates = append(updates, firestore.Update{Path: "cantrack", Value: *patch.CanTrack})
	}
	if patch.CanViewCost != nil {
		updates = append(updates, firestore.Update{Path: "canviewcost", Value: *patch.CanViewCost})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := b.client.Collection(colMembers).Doc(memberDocID(projectID, userID)).Update(ctx, updates)
	return notFound(err, "member "+userID)
}

func (b *FirestoreBackend) RemoveMember(ctx context.Context, projectID, userID string) error {
	_, err := b.client.Collection(colMembers).Doc(memberDocID(projectID, userID)).Delete(ctx, firestore.Exists)
	return notFound(err, "member "+userID)
}

func (b *FirestoreBackend) AddMember(ctx context.Context, projectID, userID string, role model.Role, rate *float64) error {
	m := model.Member{
		ProjectID:  projectID,
		UserID:     userID,
		Role:       role,
		Active:     true,
		CanTrack:   true,
		HourlyRate: rate,
	}
	_, err := b.client.Collection(colMembers).Doc(memberDocID(projectID, userID)).Create(ctx, m)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s is already a member", board.ErrInvalidInput, userID)
	}
	return err
}
