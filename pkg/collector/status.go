package collector

import (
	"sync"
	"time"
)

// Status is the process-wide view of grid collection. Only the Collector
// mutates it; everyone else reads a Snapshot.
type Status struct {
	mu             sync.RWMutex
	inProgress     bool
	activePoints   int
	totalCollected int64
	lastBatchID    string
	lastStartedAt  *time.Time
	lastFinishedAt *time.Time
}

// StatusSnapshot is a point-in-time copy of Status
type StatusSnapshot struct {
	InProgress     bool       `json:"in_progress"`
	ActivePoints   int        `json:"active_points"`
	TotalCollected int64      `json:"total_collected"`
	LastBatchID    string     `json:"last_batch_id,omitempty"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
}

// NewStatus returns a zeroed Status
func NewStatus() *Status {
	return &Status{}
}

// Snapshot copies the current state
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatusSnapshot{
		InProgress:     s.inProgress,
		ActivePoints:   s.activePoints,
		TotalCollected: s.totalCollected,
		LastBatchID:    s.lastBatchID,
		LastStartedAt:  s.lastStartedAt,
		LastFinishedAt: s.lastFinishedAt,
	}
}

func (s *Status) start(batchID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = true
	s.activePoints = 0
	s.lastBatchID = batchID
	s.lastStartedAt = &at
}

func (s *Status) pointStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePoints++
}

func (s *Status) pointFinished(newRecords int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePoints--
	s.totalCollected += int64(newRecords)
}

func (s *Status) finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.activePoints = 0
	s.lastFinishedAt = &at
}
