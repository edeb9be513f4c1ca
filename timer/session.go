// Package timer tracks the single live task timer of a client session.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultTick = 15 * time.Second

var (
	ErrBusy           = errors.New("another task timer is running")
	ErrAlreadyRunning = errors.New("timer already running for task")
	ErrNotRunning     = errors.New("no running timer for task")
)

// Backend is the server side of the timer. It owns the persisted time entries.
type Backend interface {
	StartTimer(ctx context.Context, taskID string) error
	StopTimer(ctx context.Context, taskID string) error
}

// Live is a snapshot of the running timer.
type Live struct {
	TaskID          string    `json:"taskId"`
	StartedAt       time.Time `json:"startedAt"`
	BaselineSeconds int64     `json:"baselineSeconds"`
	// ElapsedSeconds is now-StartedAt as of the last tick.
	ElapsedSeconds int64 `json:"elapsedSeconds"`
}

func (l Live) Displayed() int64 {
	return l.BaselineSeconds + l.ElapsedSeconds
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithTick(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithOnTick registers a callback run after every tick re-evaluation.
func WithOnTick(fn func(Live)) Option {
	return func(s *Session) { s.onTick = fn }
}

type Session struct {
	backend Backend
	now     func() time.Time
	tick    time.Duration
	onTick  func(Live)

	mu    sync.Mutex
	live  *Live
	gen   uint64
	sched *cron.Cron
}

func New(backend Backend, opts ...Option) *Session {
	s := &Session{backend: backend, now: time.Now, tick: DefaultTick}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start makes taskID the live timer, then asks the server to open an entry.
// A server failure clears the live timer again. Stopping a different live
// task first is the caller's job.
func (s *Session) Start(ctx context.Context, taskID string, baselineSeconds int64) error {
	s.mu.Lock()
	if s.live != nil {
		running := s.live.TaskID
		s.mu.Unlock()
		if running == taskID {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("%w: %s", ErrBusy, running)
	}
	s.gen++
	gen := s.gen
	s.live = &Live{TaskID: taskID, StartedAt: s.now(), BaselineSeconds: baselineSeconds}
	s.schedule()
	s.mu.Unlock()

	if err := s.backend.StartTimer(ctx, taskID); err != nil {
		s.mu.Lock()
		if s.gen == gen && s.live != nil {
			s.live = nil
			s.unschedule()
		}
		s.mu.Unlock()
		log.Printf("[timer] start %s rejected: %v", taskID, err)
		return fmt.Errorf("start timer for task %s: %w", taskID, err)
	}
	log.Printf("[timer] started %s (baseline %ds)", taskID, baselineSeconds)
	return nil
}

// Stop clears the live timer and returns the optimistic final seconds. The
// local timer stays stopped even when the server call fails; the error is
// returned alongside the final value.
func (s *Session) Stop(ctx context.Context, taskID string) (int64, error) {
	s.mu.Lock()
	if s.live == nil || s.live.TaskID != taskID {
		s.mu.Unlock()
		return 0, ErrNotRunning
	}
	final := s.live.BaselineSeconds + elapsed(s.live.StartedAt, s.now())
	s.live = nil
	s.gen++
	s.unschedule()
	s.mu.Unlock()

	if err := s.backend.StopTimer(ctx, taskID); err != nil {
		log.Printf("[timer] stop %s failed on server: %v", taskID, err)
		return final, fmt.Errorf("stop timer for task %s: %w", taskID, err)
	}
	log.Printf("[timer] stopped %s at %ds", taskID, final)
	return final, nil
}

// Live returns the running timer, if any.
func (s *Session) Live() (Live, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return Live{}, false
	}
	return *s.live, true
}

// Displayed returns the elapsed value to show for a task: its baseline, or
// the live value when the task is the running one.
func (s *Session) Displayed(taskID string, baselineSeconds int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil || s.live.TaskID != taskID {
		return baselineSeconds
	}
	return s.live.Displayed()
}

// Refresh re-evaluates the live elapsed seconds from the start instant.
// The value never decreases between refreshes.
func (s *Session) Refresh() (Live, bool) {
	s.mu.Lock()
	if s.live == nil {
		s.mu.Unlock()
		return Live{}, false
	}
	if e := elapsed(s.live.StartedAt, s.now()); e > s.live.ElapsedSeconds {
		s.live.ElapsedSeconds = e
	}
	snap := *s.live
	s.mu.Unlock()
	return snap, true
}

// Ticking reports whether the periodic refresh is scheduled.
func (s *Session) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

// Close drops the local timer state without calling the server.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = nil
	s.gen++
	s.unschedule()
}

func (s *Session) runTick() {
	snap, ok := s.Refresh()
	if ok && s.onTick != nil {
		s.onTick(snap)
	}
}

// schedule and unschedule must be called with mu held.
func (s *Session) schedule() {
	s.unschedule()
	s.sched = cron.New()
	s.sched.Schedule(cron.Every(s.tick), cron.FuncJob(s.runTick))
	s.sched.Start()
}

func (s *Session) unschedule() {
	if s.sched == nil {
		return
	}
	// Not waiting for a running tick: it needs mu, which the caller holds.
	s.sched.Stop()
	s.sched = nil
}

func elapsed(startedAt, now time.Time) int64 {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
