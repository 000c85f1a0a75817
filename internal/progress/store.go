package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"audiomill/internal/services"
)

// Status is the lifecycle state of one task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Query responses.
const (
	MessageNotFound  = "Task ID not found"
	MessageCompleted = "Completed"
	MessageFailed    = "Failed"
)

var (
	// ErrTaskExists is returned by Init for an ID already in the table.
	ErrTaskExists = errors.New("task already exists")
	// ErrTotalAlreadySet is returned by SetTotal after the first call for a task.
	ErrTotalAlreadySet = errors.New("segment total already set")
)

// Snapshot is a point-in-time copy of one entry.
type Snapshot struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message renders the poller-facing status string.
func (s Snapshot) Message() string {
	switch s.Status {
	case StatusCompleted:
		return MessageCompleted
	case StatusFailed:
		return MessageFailed
	default:
		return fmt.Sprintf("%d / %d completed", s.Completed, s.Total)
	}
}

type entry struct {
	mu        sync.Mutex
	status    Status
	total     int
	completed int
	created   time.Time
	updated   time.Time
}

func (e *entry) snapshot(id string) Snapshot {
	return Snapshot{
		TaskID:    id,
		Status:    e.status,
		Completed: e.completed,
		Total:     e.total,
		CreatedAt: e.created,
		UpdatedAt: e.updated,
	}
}

// Store is the shared task progress table. The zero value is not usable;
// construct with NewStore.
type Store struct {
	entries sync.Map // string -> *entry
	now     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty progress table.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(id string) (*entry, bool) {
	value, ok := s.entries.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*entry), true
}

// Init creates a Pending entry with zero counters.
func (s *Store) Init(id string) error {
	now := s.now()
	e := &entry{status: StatusPending, created: now, updated: now}
	if _, loaded := s.entries.LoadOrStore(id, e); loaded {
		return fmt.Errorf("init %s: %w", id, ErrTaskExists)
	}
	return nil
}

// SetTotal records the segment count and moves a Pending task to Running.
// Only the first call has effect; later calls return ErrTotalAlreadySet and
// leave the entry untouched. Terminal tasks are left as they are.
func (s *Store) SetTotal(id string, total int) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("set total %s: %w", id, services.ErrUnknownTask)
	}
	if total < 0 {
		return fmt.Errorf("set total %s: %w: negative total %d", id, services.ErrValidation, total)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPending {
		return fmt.Errorf("set total %s: %w", id, ErrTotalAlreadySet)
	}
	e.total = total
	e.status = StatusRunning
	e.updated = s.now()
	return nil
}

// Increment counts one finished segment for a Running task. Unknown IDs,
// non-Running tasks, and tasks already at their total are ignored.
func (s *Store) Increment(id string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning || e.completed >= e.total {
		return
	}
	e.completed++
	e.updated = s.now()
}

// Fail moves a task to Failed unless it is already terminal. It reports
// whether the transition happened.
func (s *Store) Fail(id string) bool {
	return s.finish(id, StatusFailed)
}

// Complete moves a task to Completed unless it is already terminal. It
// reports whether the transition happened.
func (s *Store) Complete(id string) bool {
	return s.finish(id, StatusCompleted)
}

func (s *Store) finish(id string, status Status) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return false
	}
	e.status = status
	e.updated = s.now()
	return true
}

// Query renders the status string for id. Unknown IDs yield MessageNotFound
// and are never created.
func (s *Store) Query(id string) string {
	snap, ok := s.Snapshot(id)
	if !ok {
		return MessageNotFound
	}
	return snap.Message()
}

// Snapshot returns a copy of the entry for id.
func (s *Store) Snapshot(id string) (Snapshot, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(id), true
}

// List returns snapshots of every entry in no particular order.
func (s *Store) List() []Snapshot {
	var out []Snapshot
	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		out = append(out, e.snapshot(key.(string)))
		e.mu.Unlock()
		return true
	})
	return out
}

// Remove deletes the entry for id.
func (s *Store) Remove(id string) {
	s.entries.Delete(id)
}

// SweepTerminal evicts terminal entries last updated before cutoff and
// returns the evicted IDs.
func (s *Store) SweepTerminal(cutoff time.Time) []string {
	var evicted []string
	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		stale := e.status.Terminal() && e.updated.Before(cutoff)
		e.mu.Unlock()
		if stale {
			s.entries.CompareAndDelete(key, value)
			evicted = append(evicted, key.(string))
		}
		return true
	})
	return evicted
}
