package board

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"flowboard/model"
	"flowboard/timer"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	d     *Dispatcher
	store *Store
	b     *fakeBackend
	clock *clock
	timer *timer.Session
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	s, b := loadedStore(t, userID)
	c := &clock{t: t0}
	b.mu.Lock()
	b.now = c.Now
	b.mu.Unlock()
	ts := timer.New(b, timer.WithClock(c.Now), timer.WithTick(time.Hour))
	t.Cleanup(ts.Close)
	return &harness{d: NewDispatcher(s, b, ts), store: s, b: b, clock: c, timer: ts}
}

func (h *harness) activity() []model.ActivityKind {
	h.d.Wait()
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	return append([]model.ActivityKind(nil), h.b.activity...)
}

func count(kinds []model.ActivityKind, k model.ActivityKind) int {
	n := 0
	for _, got := range kinds {
		if got == k {
			n++
		}
	}
	return n
}

func TestOwnerProtection(t *testing.T) {
	h := newHarness(t, "ann")
	ctx := context.Background()

	cases := map[string]error{
		"demote owner":     h.d.ChangeRole(ctx, "p1", "owner", model.RoleAdmin),
		"deactivate owner": h.d.SetActive(ctx, "p1", "owner", false),
		"remove owner":     h.d.RemoveMember(ctx, "p1", "owner"),
		"promote to owner": h.d.ChangeRole(ctx, "p1", "ann", model.RoleOwner),
		"add as owner":     h.d.AddMember(ctx, "p1", "dan", model.RoleOwner, nil),
	}
	for name, err := range cases {
		if !errors.Is(err, ErrOwnerProtected) {
			t.Errorf("%s: err=%v, want ErrOwnerProtected", name, err)
		}
	}
	for _, op := range []string{"UpdateMember", "RemoveMember", "AddMember"} {
		if n := h.b.called(op); n != 0 {
			t.Fatalf("%s called %d times for a protected change", op, n)
		}
	}
	if m, _ := h.store.Member("p1", "owner"); m.Role != model.RoleOwner || !m.Active {
		t.Fatalf("owner=%+v, want untouched", m)
	}

	rate := 80.0
	if err := h.d.SetRate(ctx, "p1", "owner", &rate); err != nil {
		t.Fatalf("SetRate(owner) err=%v, want nil", err)
	}
}

func TestDeactivateSoleAssigneeKeepsAssignment(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	if err := h.d.SetActive(ctx, "p1", "ben", false); err != nil {
		t.Fatalf("SetActive() err=%v", err)
	}
	task, _ := h.store.Task("t1")
	if !task.HasAssignee("ben") {
		t.Fatalf("t1 assignees=%v, want ben kept", task.AssigneeIDs)
	}
	if m, _ := h.store.Member("p1", "ben"); m.Active {
		t.Fatalf("ben still active")
	}

	if _, err := h.d.ToggleAssignee(ctx, "t2", "ben"); !errors.Is(err, ErrMemberInactive) {
		t.Fatalf("assign inactive err=%v, want ErrMemberInactive", err)
	}
	assigned, err := h.d.ToggleAssignee(ctx, "t1", "ben")
	if err != nil || assigned {
		t.Fatalf("unassign inactive=(%v, %v), want (false, nil)", assigned, err)
	}
}

func TestToggleAssignee(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	assigned, err := h.d.ToggleAssignee(ctx, "t2", "ann")
	if err != nil || !assigned {
		t.Fatalf("ToggleAssignee()=(%v, %v), want (true, nil)", assigned, err)
	}
	assigned, err = h.d.ToggleAssignee(ctx, "t2", "ann")
	if err != nil || assigned {
		t.Fatalf("ToggleAssignee()=(%v, %v), want (false, nil)", assigned, err)
	}
	if _, err := h.d.ToggleAssignee(ctx, "t2", "stranger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("assign non-member err=%v, want ErrNotFound", err)
	}

	kinds := h.activity()
	if count(kinds, model.ActivityAssigneeAdded) != 1 || count(kinds, model.ActivityAssigneeRemoved) != 1 {
		t.Fatalf("activity=%v, want one add and one remove", kinds)
	}
}

func TestUpdateMemberRollsBack(t *testing.T) {
	h := newHarness(t, "owner")
	h.b.setFail("UpdateMember", errors.New("permission denied"))

	rate := 200.0
	err := h.d.SetRate(context.Background(), "p1", "ann", &rate)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("SetRate() err=%v, want *RemoteError", err)
	}
	if m, _ := h.store.Member("p1", "ann"); m.HourlyRate == nil || *m.HourlyRate != 120 {
		t.Fatalf("ann rate=%v, want 120 restored", m.HourlyRate)
	}
}

func TestUpdateMemberValidation(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	neg := -1.0
	bad := model.Role("boss")

	for name, err := range map[string]error{
		"empty":    h.d.UpdateMember(ctx, "p1", "ann", MemberPatch{}),
		"negative": h.d.SetRate(ctx, "p1", "ann", &neg),
		"role":     h.d.ChangeRole(ctx, "p1", "ann", bad),
	} {
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err=%v, want ErrInvalidInput", name, err)
		}
	}
	if err := h.d.ChangeRole(ctx, "p1", "nobody", model.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown member err=%v, want ErrNotFound", err)
	}
	if n := h.b.called("UpdateMember"); n != 0 {
		t.Fatalf("UpdateMember called %d times for rejected patches", n)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	if err := h.d.AddMember(ctx, "p1", " dan ", model.RoleMember, nil); err != nil {
		t.Fatalf("AddMember() err=%v", err)
	}
	m, ok := h.store.Member("p1", "dan")
	if !ok || !m.Active || !m.CanTrack {
		t.Fatalf("dan=%+v (found %v), want an active tracking member", m, ok)
	}
	if err := h.d.RemoveMember(ctx, "p1", "dan"); err != nil {
		t.Fatalf("RemoveMember() err=%v", err)
	}
	if _, ok := h.store.Member("p1", "dan"); ok {
		t.Fatalf("dan still a member")
	}
}

func TestUpdateTask(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	blank := "   "
	if err := h.d.UpdateTask(ctx, "t1", TaskPatch{Title: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank title err=%v, want ErrInvalidInput", err)
	}
	urgent := model.Priority("Urgent")
	if err := h.d.UpdateTask(ctx, "t1", TaskPatch{Priority: &urgent}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad priority err=%v, want ErrInvalidInput", err)
	}
	if n := h.b.called("UpdateTask"); n != 0 {
		t.Fatalf("UpdateTask called %d times for invalid input", n)
	}

	title := "  Wireframes "
	desc := "low fidelity first"
	if err := h.d.UpdateTask(ctx, "t1", TaskPatch{Title: &title, Description: &desc}); err != nil {
		t.Fatalf("UpdateTask() err=%v", err)
	}
	task, _ := h.store.Task("t1")
	if task.Title != "Wireframes" || task.Description != desc {
		t.Fatalf("task=%q/%q, want trimmed title and description", task.Title, task.Description)
	}
	kinds := h.activity()
	if count(kinds, model.ActivityTitleChanged) != 1 || count(kinds, model.ActivityDescriptionChanged) != 1 {
		t.Fatalf("activity=%v, want title and description changes", kinds)
	}
}

func TestSameMemberRunsInDispatchOrder(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.b.before["UpdateMember"] = func(args ...string) {
		if args[1] != "ann" {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	first, second := 1.0, 2.0
	errs := make(chan error, 2)
	go func() { errs <- h.d.SetRate(ctx, "p1", "ann", &first) }()
	<-entered
	go func() { errs <- h.d.SetRate(ctx, "p1", "ann", &second) }()
	waitQueued(t, h.d.queue, memberKey("p1", "ann"), 2)

	// A different member is not held up.
	if err := h.d.ChangeRole(ctx, "p1", "ben", model.RoleAdmin); err != nil {
		t.Fatalf("ChangeRole(ben) err=%v", err)
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("SetRate() err=%v", err)
		}
	}
	if m, _ := h.store.Member("p1", "ann"); m.HourlyRate == nil || *m.HourlyRate != second {
		t.Fatalf("ann rate=%v, want %v from the later dispatch", m.HourlyRate, second)
	}
	if m, _ := h.store.Member("p1", "ben"); m.Role != model.RoleAdmin {
		t.Fatalf("ben role=%q, want admin", m.Role)
	}
}

func TestStartTimerStopsOtherTask(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()

	if err := h.d.StartTimer(ctx, "t1"); err != nil {
		t.Fatalf("StartTimer(t1) err=%v", err)
	}
	h.clock.Advance(90 * time.Second)
	if err := h.d.StartTimer(ctx, "t2"); err != nil {
		t.Fatalf("StartTimer(t2) err=%v", err)
	}
	if n := h.b.called("StopTimer"); n != 1 {
		t.Fatalf("StopTimer calls=%d, want 1", n)
	}
	if task, _ := h.store.Task("t1"); task.TrackedSeconds != 90 {
		t.Fatalf("t1 tracked=%d, want 90", task.TrackedSeconds)
	}
	live, ok := h.timer.Live()
	if !ok || live.TaskID != "t2" || live.BaselineSeconds != 600 {
		t.Fatalf("live=%+v (%v), want t2 from 600s", live, ok)
	}

	h.clock.Advance(30 * time.Second)
	final, err := h.d.StopTimer(ctx, "t2")
	if err != nil || final != 630 {
		t.Fatalf("StopTimer(t2)=(%d, %v), want (630, nil)", final, err)
	}
	if task, _ := h.store.Task("t2"); task.TrackedSeconds != 630 {
		t.Fatalf("t2 tracked=%d, want 630", task.TrackedSeconds)
	}
	kinds := h.activity()
	if count(kinds, model.ActivityTimerStarted) != 2 || count(kinds, model.ActivityTimerStopped) != 2 {
		t.Fatalf("activity=%v, want two starts and two stops", kinds)
	}
}

func TestStartTimerRequiresCapability(t *testing.T) {
	h := newHarness(t, "owner")
	// owner is a plain member of p2 without the timer capability.
	if err := h.d.StartTimer(context.Background(), "q1"); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("StartTimer(q1) err=%v, want ErrNotPermitted", err)
	}
	if n := h.b.called("StartTimer"); n != 0 {
		t.Fatalf("StartTimer reached the backend %d times", n)
	}
}

func TestStartTimerFailureClearsLive(t *testing.T) {
	h := newHarness(t, "owner")
	h.b.setFail("StartTimer", errors.New("unavailable"))
	err := h.d.StartTimer(context.Background(), "t1")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("StartTimer() err=%v, want *RemoteError", err)
	}
	if _, ok := h.timer.Live(); ok {
		t.Fatalf("timer still live after a rejected start")
	}
}

func TestStopTimerServerFailure(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	if err := h.d.StartTimer(ctx, "t1"); err != nil {
		t.Fatalf("StartTimer() err=%v", err)
	}
	h.clock.Advance(10 * time.Second)
	h.b.setFail("StopTimer", errors.New("unavailable"))

	final, err := h.d.StopTimer(ctx, "t1")
	var remote *RemoteError
	if final != 10 || !errors.As(err, &remote) {
		t.Fatalf("StopTimer()=(%d, %v), want (10, *RemoteError)", final, err)
	}
	if _, ok := h.timer.Live(); ok {
		t.Fatalf("timer still live after stop")
	}
	if _, err := h.d.StopTimer(ctx, "t1"); !errors.Is(err, timer.ErrNotRunning) {
		t.Fatalf("second StopTimer() err=%v, want ErrNotRunning", err)
	}
}

func TestActivityFailureIsIgnored(t *testing.T) {
	h := newHarness(t, "owner")
	h.b.setFail("LogActivity", errors.New("quota exceeded"))
	assigned, err := h.d.ToggleAssignee(context.Background(), "t3", "ann")
	if err != nil || !assigned {
		t.Fatalf("ToggleAssignee()=(%v, %v), want (true, nil)", assigned, err)
	}
	h.d.Wait()
	if task, _ := h.store.Task("t3"); !task.HasAssignee("ann") {
		t.Fatalf("assignment lost after activity failure")
	}
}

func TestDeleteTaskStopsItsTimer(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	if err := h.d.StartTimer(ctx, "t2"); err != nil {
		t.Fatalf("StartTimer() err=%v", err)
	}
	if err := h.d.DeleteTask(ctx, "t2"); err != nil {
		t.Fatalf("DeleteTask() err=%v", err)
	}
	if _, ok := h.timer.Live(); ok {
		t.Fatalf("timer still live on a deleted task")
	}
	if _, ok := h.store.Task("t2"); ok {
		t.Fatalf("t2 still present")
	}
	if err := h.d.DeleteTask(ctx, "t2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteTask() err=%v, want ErrNotFound", err)
	}
}

func TestMoveTaskAcrossFlows(t *testing.T) {
	h := newHarness(t, "owner")
	if err := h.d.MoveTask(context.Background(), "t2", "done", 0); err != nil {
		t.Fatalf("MoveTask() err=%v", err)
	}
	st := h.store.Snapshot()
	if got := taskOrder(st, "done"); len(got) != 2 || got[0] != "t2" {
		t.Fatalf("done=%v, want t2 first", got)
	}
	if flow, _ := h.store.FlowOf("t2"); flow != "done" {
		t.Fatalf("t2 in %s, want done", flow)
	}
	if count(h.activity(), model.ActivityReordered) != 1 {
		t.Fatalf("move not recorded as activity")
	}
}

func TestReorderLogsMovedTasks(t *testing.T) {
	h := newHarness(t, "owner")
	if err := h.d.ReorderFlowTasks(context.Background(), "todo", []string{"t1", "t3", "t2"}); err != nil {
		t.Fatalf("ReorderFlowTasks() err=%v", err)
	}
	if n := count(h.activity(), model.ActivityReordered); n != 2 {
		t.Fatalf("reordered activity=%d, want 2", n)
	}
}

// hold blocks the first call of op until the returned release is closed.
func (h *harness) hold(op string) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	h.b.mu.Lock()
	h.b.before[op] = func(...string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	h.b.mu.Unlock()
	return entered, release
}

func TestReorderRollbackKeepsConcurrentTaskEdit(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	boom := errors.New("boom")
	h.b.setFail("ReorderTasks", boom)
	entered, release := h.hold("ReorderTasks")

	done := make(chan error, 1)
	go func() { done <- h.d.ReorderFlowTasks(ctx, "todo", []string{"t3", "t2", "t1"}) }()
	<-entered

	title := "Design v2"
	if err := h.d.UpdateTask(ctx, "t1", TaskPatch{Title: &title}); err != nil {
		t.Fatalf("UpdateTask() err=%v", err)
	}
	h.b.setFail("FetchProjectGraph", errors.New("offline"))
	close(release)

	err := <-done
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Op != "reorder tasks of flow todo" {
		t.Fatalf("ReorderFlowTasks() err=%v, want RemoteError naming the reorder", err)
	}
	if got, _ := h.store.Task("t1"); got.Title != title {
		t.Fatalf("local t1 title=%q, want %q", got.Title, title)
	}
	if got := taskOrder(h.store.Snapshot(), "todo"); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("todo=%v, want [t1 t2 t3]", got)
	}
}

func TestDeleteRollbackKeepsConcurrentTaskEdit(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	h.b.setFail("DeleteTask", errors.New("boom"))
	entered, release := h.hold("DeleteTask")

	done := make(chan error, 1)
	go func() { done <- h.d.DeleteTask(ctx, "t3") }()
	<-entered

	title := "Build v2"
	if err := h.d.UpdateTask(ctx, "t2", TaskPatch{Title: &title}); err != nil {
		t.Fatalf("UpdateTask() err=%v", err)
	}
	h.b.setFail("FetchProjectGraph", errors.New("offline"))
	close(release)

	if err := <-done; err == nil {
		t.Fatalf("DeleteTask() err=nil, want the server failure")
	}
	if got, _ := h.store.Task("t2"); got.Title != title {
		t.Fatalf("local t2 title=%q, want %q", got.Title, title)
	}
	if got := taskOrder(h.store.Snapshot(), "todo"); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("todo=%v, want [t1 t2 t3]", got)
	}
}

func TestRemoveMemberRollbackKeepsConcurrentRateEdit(t *testing.T) {
	h := newHarness(t, "owner")
	ctx := context.Background()
	h.b.setFail("RemoveMember", errors.New("boom"))
	entered, release := h.hold("RemoveMember")

	done := make(chan error, 1)
	go func() { done <- h.d.RemoveMember(ctx, "p1", "ben") }()
	<-entered

	newRate := 99.0
	if err := h.d.SetRate(ctx, "p1", "ann", &newRate); err != nil {
		t.Fatalf("SetRate() err=%v", err)
	}
	h.b.setFail("FetchProjectGraph", errors.New("offline"))
	close(release)

	err := <-done
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Op != "remove member ben from project p1" {
		t.Fatalf("RemoveMember() err=%v, want RemoteError naming the removal", err)
	}
	if _, ok := h.store.Member("p1", "ben"); !ok {
		t.Fatalf("ben not restored")
	}
	if m, _ := h.store.Member("p1", "ann"); m.HourlyRate == nil || *m.HourlyRate != newRate {
		t.Fatalf("ann rate=%v, want %v", m.HourlyRate, newRate)
	}
}

func TestShiftedToleratesGrownFlow(t *testing.T) {
	before := []model.Task{{TaskID: "t1"}, {TaskID: "t2"}}
	got := shifted(before, []string{"t1", "t3", "t2"})
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("shifted()=%v, want [1 2]", got)
	}
}
