package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"flowboard/model"
	"flowboard/timer"
)

const activityTimeout = 10 * time.Second

// Dispatcher is the single write path into a Store. Mutations on the same
// member, task or flow run one at a time in dispatch order; mutations on
// different entities run concurrently.
type Dispatcher struct {
	store   *Store
	backend Backend
	timer   *timer.Session
	queue   *serial

	activity sync.WaitGroup
}

func NewDispatcher(store *Store, backend Backend, t *timer.Session) *Dispatcher {
	return &Dispatcher{store: store, backend: backend, timer: t, queue: newSerial()}
}

func memberKey(projectID, userID string) string { return "member:" + projectID + ":" + userID }
func taskKey(taskID string) string              { return "task:" + taskID }
func flowKey(flowID string) string              { return "flow:" + flowID }

const timerKey = "timer"

// UpdateMember applies a membership patch. Patches that would demote,
// deactivate or promote to owner are rejected before anything is sent.
func (d *Dispatcher) UpdateMember(ctx context.Context, projectID, userID string, patch MemberPatch) error {
	if patch.Empty() {
		return fmt.Errorf("%w: empty member patch", ErrInvalidInput)
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidInput, *patch.Role)
	}
	if patch.HourlyRate != nil && *patch.HourlyRate < 0 {
		return fmt.Errorf("%w: negative hourly rate", ErrInvalidInput)
	}

	release, err := d.queue.acquire(ctx, memberKey(projectID, userID))
	if err != nil {
		return err
	}
	defer release()

	m, ok := d.store.Member(projectID, userID)
	if !ok {
		return fmt.Errorf("%w: member %s in project %s", ErrNotFound, userID, projectID)
	}
	if err := checkOwnerRule(m, patch); err != nil {
		return err
	}
	if patch.Role != nil && *patch.Role == m.Role {
		patch.Role = nil
		if patch.Empty() {
			return nil
		}
	}

	return d.store.Mutate(ctx, MemberFields(projectID, userID, patch), func(ctx context.Context) error {
		return d.backend.UpdateMember(ctx, projectID, userID, patch)
	})
}

func checkOwnerRule(m model.Member, patch MemberPatch) error {
	if patch.Role != nil && *patch.Role == model.RoleOwner && m.Role != model.RoleOwner {
		return fmt.Errorf("%w: ownership is not reassignable", ErrOwnerProtected)
	}
	if m.Role != model.RoleOwner {
		return nil
	}
	if patch.Role != nil && *patch.Role != model.RoleOwner {
		return ErrOwnerProtected
	}
	if patch.Active != nil && !*patch.Active {
		return ErrOwnerProtected
	}
	return nil
}

func (d *Dispatcher) ChangeRole(ctx context.Context, projectID, userID string, role model.Role) error {
	return d.UpdateMember(ctx, projectID, userID, MemberPatch{Role: &role})
}

// SetActive toggles a membership. Inactive members keep their existing task
// assignments but cannot be newly assigned.
func (d *Dispatcher) SetActive(ctx context.Context, projectID, userID string, active bool) error {
	return d.UpdateMember(ctx, projectID, userID, MemberPatch{Active: &active})
}

// SetRate sets a member's hourly rate; nil reverts to the default rate.
func (d *Dispatcher) SetRate(ctx context.Context, projectID, userID string, rate *float64) error {
	if rate == nil {
		return d.UpdateMember(ctx, projectID, userID, MemberPatch{ClearRate: true})
	}
	return d.UpdateMember(ctx, projectID, userID, MemberPatch{HourlyRate: rate})
}

func (d *Dispatcher) SetCapabilities(ctx context.Context, projectID, userID string, canTrack, canViewCost *bool) error {
	return d.UpdateMember(ctx, projectID, userID, MemberPatch{CanTrack: canTrack, CanViewCost: canViewCost})
}

func (d *Dispatcher) AddMember(ctx context.Context, projectID, userID string, role model.Role, rate *float64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || !role.Valid() {
		return fmt.Errorf("%w: member needs a user id and a role", ErrInvalidInput)
	}
	if role == model.RoleOwner {
		return fmt.Errorf("%w: ownership is not reassignable", ErrOwnerProtected)
	}
	if rate != nil && *rate < 0 {
		return fmt.Errorf("%w: negative hourly rate", ErrInvalidInput)
	}

	release, err := d.queue.acquire(ctx, memberKey(projectID, userID))
	if err != nil {
		return err
	}
	defer release()

	m := model.Member{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		Active:    true,
		CanTrack:  true,
		Identity:  d.store.Identity(userID),
	}
	if rate != nil {
		r := *rate
		m.HourlyRate = &r
	}
	return d.store.Mutate(ctx, AddMember(projectID, m), func(ctx context.Context) error {
		return d.backend.AddMember(ctx, projectID, userID, role, rate)
	})
}

func (d *Dispatcher) RemoveMember(ctx context.Context, projectID, userID string) error {
	release, err := d.queue.acquire(ctx, memberKey(projectID, userID))
	if err != nil {
		return err
	}
	defer release()

	m, ok := d.store.Member(projectID, userID)
	if !ok {
		return fmt.Errorf("%w: member %s in project %s", ErrNotFound, userID, projectID)
	}
	if m.Role == model.RoleOwner {
		return ErrOwnerProtected
	}
	return d.store.Mutate(ctx, RemoveMember(projectID, userID), func(ctx context.Context) error {
		return d.backend.RemoveMember(ctx, projectID, userID)
	})
}

// ToggleAssignee assigns userID to the task, or unassigns when already
// assigned. It reports whether the user is assigned afterwards.
func (d *Dispatcher) ToggleAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	release, err := d.queue.acquire(ctx, taskKey(taskID))
	if err != nil {
		return false, err
	}
	defer release()

	t, ok := d.store.Task(taskID)
	if !ok {
		return false, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}

	if t.HasAssignee(userID) {
		err := d.store.Mutate(ctx, RemoveAssignee(taskID, userID), func(ctx context.Context) error {
			return d.backend.RemoveAssignee(ctx, taskID, userID)
		})
		if err != nil {
			return true, err
		}
		d.logActivity(ctx, taskID, model.ActivityAssigneeRemoved, map[string]any{"userId": userID})
		return false, nil
	}

	m, ok := d.store.Member(t.ProjectID, userID)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a member of project %s", ErrNotFound, userID, t.ProjectID)
	}
	if !m.Active {
		return false, fmt.Errorf("%w: %s", ErrMemberInactive, userID)
	}
	err = d.store.Mutate(ctx, AddAssignee(taskID, userID), func(ctx context.Context) error {
		return d.backend.AddAssignee(ctx, taskID, userID)
	})
	if err != nil {
		return false, err
	}
	d.logActivity(ctx, taskID, model.ActivityAssigneeAdded, map[string]any{"userId": userID})
	return true, nil
}

func (d *Dispatcher) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) error {
	if patch.Empty() {
		return fmt.Errorf("%w: empty task patch", ErrInvalidInput)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		patch.Title = &title
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidInput, *patch.Priority)
	}

	release, err := d.queue.acquire(ctx, taskKey(taskID))
	if err != nil {
		return err
	}
	defer release()

	before, ok := d.store.Task(taskID)
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	err = d.store.Mutate(ctx, TaskFields(taskID, patch), func(ctx context.Context) error {
		return d.backend.UpdateTask(ctx, taskID, patch)
	})
	if err != nil {
		return err
	}

	if patch.Title != nil && *patch.Title != before.Title {
		d.logActivity(ctx, taskID, model.ActivityTitleChanged, map[string]any{"from": before.Title, "to": *patch.Title})
	}
	if patch.Description != nil && *patch.Description != before.Description {
		d.logActivity(ctx, taskID, model.ActivityDescriptionChanged, nil)
	}
	if patch.DueDate != nil || patch.ClearDue {
		details := map[string]any{"from": before.DueDate, "to": patch.DueDate}
		d.logActivity(ctx, taskID, model.ActivityDueChanged, details)
	}
	return nil
}

// DeleteTask removes a task, stopping its timer first when it is live.
func (d *Dispatcher) DeleteTask(ctx context.Context, taskID string) error {
	release, err := d.queue.acquire(ctx, timerKey, taskKey(taskID))
	if err != nil {
		return err
	}
	defer release()

	if _, ok := d.store.Task(taskID); !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	if live, ok := d.timer.Live(); ok && live.TaskID == taskID {
		if _, err := d.timer.Stop(ctx, taskID); err != nil {
			log.Printf("[board] stopping timer of deleted task %s: %v", taskID, err)
		}
	}
	return d.store.Mutate(ctx, DeleteTask(taskID), func(ctx context.Context) error {
		return d.backend.DeleteTask(ctx, taskID)
	})
}

func (d *Dispatcher) ReorderFlowTasks(ctx context.Context, flowID string, orderedTaskIDs []string) error {
	release, err := d.queue.acquire(ctx, flowKey(flowID))
	if err != nil {
		return err
	}
	defer release()

	before, ok := d.store.Flow(flowID)
	if !ok {
		return fmt.Errorf("%w: flow %s", ErrNotFound, flowID)
	}
	if err := d.store.ReorderFlowTasks(ctx, flowID, orderedTaskIDs); err != nil {
		return err
	}
	for _, i := range shifted(before.Tasks, orderedTaskIDs) {
		d.logActivity(ctx, orderedTaskIDs[i], model.ActivityReordered, map[string]any{"flowId": flowID, "position": i})
	}
	return nil
}

// shifted returns the indexes in order whose task sat elsewhere in before.
// The flow may have gained or lost tasks since before was read.
func shifted(before []model.Task, order []string) []int {
	var out []int
	for i, id := range order {
		if i >= len(before) || before[i].TaskID != id {
			out = append(out, i)
		}
	}
	return out
}

// MoveTask moves a task to index within flowID, possibly across flows.
func (d *Dispatcher) MoveTask(ctx context.Context, taskID, flowID string, index int) error {
	for attempt := 0; attempt < 3; attempt++ {
		from, ok := d.store.FlowOf(taskID)
		if !ok {
			return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
		}
		release, err := d.queue.acquire(ctx, taskKey(taskID), flowKey(from), flowKey(flowID))
		if err != nil {
			return err
		}
		if now, _ := d.store.FlowOf(taskID); now != from {
			release()
			continue
		}
		err = d.moveLocked(ctx, taskID, from, flowID, index)
		release()
		return err
	}
	return fmt.Errorf("%w: task %s kept moving", ErrInvalidInput, taskID)
}

func (d *Dispatcher) moveLocked(ctx context.Context, taskID, from, flowID string, index int) error {
	var order []string
	err := d.store.Mutate(ctx, Batch(MoveTask(taskID, flowID, index), PatchFunc(func(st *State) (Patch, error) {
		_, f := st.flow(flowID)
		order = order[:0]
		for _, t := range f.Tasks {
			order = append(order, t.TaskID)
		}
		return noop, nil
	})), func(ctx context.Context) error {
		return d.backend.MoveTask(ctx, taskID, flowID, order)
	})
	if err != nil {
		return err
	}
	d.logActivity(ctx, taskID, model.ActivityReordered, map[string]any{"fromFlowId": from, "flowId": flowID, "position": index})
	return nil
}

// StartTimer starts tracking taskID. A different live task is stopped first.
func (d *Dispatcher) StartTimer(ctx context.Context, taskID string) error {
	keys := []string{timerKey, taskKey(taskID)}
	if live, ok := d.timer.Live(); ok {
		keys = append(keys, taskKey(live.TaskID))
	}
	release, err := d.queue.acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()

	t, ok := d.store.Task(taskID)
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	m, ok := d.store.Member(t.ProjectID, d.store.UserID())
	if !ok || (!m.CanTrack && m.Role != model.RoleOwner) {
		return fmt.Errorf("%w: timer on task %s", ErrNotPermitted, taskID)
	}

	if live, ok := d.timer.Live(); ok {
		if live.TaskID == taskID {
			return nil
		}
		if _, err := d.stopLocked(ctx, live.TaskID); err != nil {
			log.Printf("[board] auto-stop of %s before starting %s: %v", live.TaskID, taskID, err)
		}
	}

	if err := d.timer.Start(ctx, taskID, t.TrackedSeconds); err != nil {
		return &RemoteError{Op: "start timer on task " + taskID, Err: err}
	}
	d.logActivity(ctx, taskID, model.ActivityTimerStarted, nil)
	return nil
}

// StopTimer stops the live timer of taskID and returns the final seconds,
// which become the task's baseline until the next reload.
func (d *Dispatcher) StopTimer(ctx context.Context, taskID string) (int64, error) {
	release, err := d.queue.acquire(ctx, timerKey, taskKey(taskID))
	if err != nil {
		return 0, err
	}
	defer release()
	return d.stopLocked(ctx, taskID)
}

func (d *Dispatcher) stopLocked(ctx context.Context, taskID string) (int64, error) {
	final, stopErr := d.timer.Stop(ctx, taskID)
	if errors.Is(stopErr, timer.ErrNotRunning) {
		return 0, stopErr
	}
	err := d.store.Mutate(ctx, TrackedSeconds(taskID, final), func(context.Context) error { return nil })
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("[board] recording %ds on %s: %v", final, taskID, err)
	}
	d.logActivity(ctx, taskID, model.ActivityTimerStopped, map[string]any{"seconds": final})
	if stopErr != nil {
		return final, &RemoteError{Op: "stop timer on task " + taskID, Err: stopErr}
	}
	return final, nil
}

// logActivity records an activity without blocking the caller. Failures are
// logged and otherwise ignored.
func (d *Dispatcher) logActivity(ctx context.Context, taskID string, kind model.ActivityKind, details map[string]any) {
	d.activity.Add(1)
	go func() {
		defer d.activity.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activityTimeout)
		defer cancel()
		if err := d.backend.LogActivity(ctx, taskID, kind, details); err != nil {
			log.Printf("[board] activity %s on %s not recorded: %v", kind, taskID, err)
		}
	}()
}

// Wait blocks until pending activity writes finish.
func (d *Dispatcher) Wait() {
	d.activity.Wait()
}
