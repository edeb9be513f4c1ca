package board

import (
	"context"
	"sort"
	"sync"
)

// serial hands out per-key turns in arrival order.
type serial struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

func newSerial() *serial {
	return &serial{queues: make(map[string][]chan struct{})}
}

// acquire waits for the turn on every key and returns the release func.
// Keys are taken in sorted order so overlapping key sets cannot deadlock.
func (s *serial) acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = uniqueSorted(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			s.release(held[i])
		}
	}
	for _, k := range keys {
		if err := s.acquireOne(ctx, k); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}
	return release, nil
}

func (s *serial) acquireOne(ctx context.Context, key string) error {
	s.mu.Lock()
	turn := make(chan struct{})
	q := append(s.queues[key], turn)
	s.queues[key] = q
	if len(q) == 1 {
		close(turn)
	}
	s.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	q = s.queues[key]
	if len(q) > 0 && q[0] == turn {
		// The turn arrived together with the cancellation; pass it on.
		s.mu.Unlock()
		s.release(key)
		return ctx.Err()
	}
	for i, c := range q {
		if c == turn {
			s.queues[key] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return ctx.Err()
}

func (s *serial) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[key]
	if len(q) <= 1 {
		delete(s.queues, key)
		return
	}
	q = q[1:]
	s.queues[key] = q
	close(q[0])
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if k == "" || (i > 0 && k == out[i-1]) {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
