// Package session hosts one board workspace per signed-in user.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"flowboard/board"
	"flowboard/timer"
)

// Workspace is everything one user's client owns: the board mirror, the
// write path into it and the live timer.
type Workspace struct {
	UserID     string
	Backend    board.Backend
	Store      *board.Store
	Dispatcher *board.Dispatcher
	Timer      *timer.Session

	ready chan struct{}
	err   error
}

type BackendFactory func(userID string) board.Backend

type Manager struct {
	newBackend BackendFactory
	tick       time.Duration

	mu         sync.Mutex
	workspaces map[string]*Workspace
	closed     bool
}

func NewManager(newBackend BackendFactory, tick time.Duration) *Manager {
	if tick <= 0 {
		tick = timer.DefaultTick
	}
	return &Manager{newBackend: newBackend, tick: tick, workspaces: map[string]*Workspace{}}
}

// Get returns the user's workspace, loading the board on first access.
// Concurrent first calls share one load; a failed load is not cached.
func (m *Manager) Get(ctx context.Context, userID string) (*Workspace, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager closed")
	}
	if ws, ok := m.workspaces[userID]; ok {
		m.mu.Unlock()
		select {
		case <-ws.ready:
			return ws, ws.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	backend := m.newBackend(userID)
	store := board.NewStore(backend, userID)
	ts := timer.New(backend, timer.WithTick(m.tick))
	ws := &Workspace{
		UserID:     userID,
		Backend:    backend,
		Store:      store,
		Dispatcher: board.NewDispatcher(store, backend, ts),
		Timer:      ts,
		ready:      make(chan struct{}),
	}
	m.workspaces[userID] = ws
	m.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := store.LoadAll(loadCtx, ""); err != nil {
		ws.err = fmt.Errorf("load board for %s: %w", userID, err)
		ts.Close()
		m.mu.Lock()
		delete(m.workspaces, userID)
		m.mu.Unlock()
		close(ws.ready)
		log.Printf("[session] %v", ws.err)
		return nil, ws.err
	}
	close(ws.ready)
	log.Printf("[session] workspace ready for %s", userID)
	return ws, nil
}

// Close stops every live timer tick and waits for pending activity writes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		all = append(all, ws)
	}
	m.workspaces = map[string]*Workspace{}
	m.mu.Unlock()

	for _, ws := range all {
		<-ws.ready
		ws.Timer.Close()
		ws.Dispatcher.Wait()
	}
}
