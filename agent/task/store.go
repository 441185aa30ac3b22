package task

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskConflict = errors.New("task id already exists")
	ErrNilTask      = errors.New("task is nil")
)

// Store is the per-agent task persistence contract used for status polling.
// Each agent process owns its own store; nothing is shared across agents.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

const (
	defaultRetention     = time.Hour
	defaultSweepInterval = time.Minute
)

// MemoryOption customizes MemoryStore.
type MemoryOption func(*MemoryStore)

// WithRetention sets how long terminal tasks are kept before the janitor
// reclaims them. Zero disables reclamation entirely.
func WithRetention(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.retention = d
	}
}

func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// MemoryStore keeps task snapshots in process memory. Writes to one id are
// serialized by the mutex; snapshots are cloned on every read and write so a
// poller never observes a task mid-mutation.
//
// Terminal tasks are reclaimed after the configured retention so the map
// does not grow without bound (default one hour).
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	retention     time.Duration
	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tasks:         make(map[string]*Task),
		retention:     defaultRetention,
		sweepInterval: defaultSweepInterval,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.retention > 0 {
		go s.janitor()
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return ErrTaskConflict
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return ErrTaskNotFound
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// Close stops the retention janitor.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now.UTC())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.Status.Terminal() && now.Sub(t.UpdatedAt) > s.retention {
			delete(s.tasks, id)
		}
	}
}
