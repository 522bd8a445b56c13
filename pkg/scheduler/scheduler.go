package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/redis"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

	// ErrSkipped is returned by a task that decided there is nothing to do
	ErrSkipped = errors.New("task skipped")
)

const (
	// DefaultPollInterval is the default interval between due checks
	DefaultPollInterval = 30 * time.Second

	// DefaultLockTTL is the default TTL for task locks
	DefaultLockTTL = 30 * time.Minute

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:task:"
)

// Outcomes recorded per task run
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeLocked  = "locked"
)

// Locker serialises a task across instances
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Task is a named unit of work run every Interval
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often to check for due tasks
	PollInterval time.Duration

	// LockTTL bounds how long one instance may hold a task
	LockTTL time.Duration

	// RunOnStart runs every task on the first poll instead of one interval later
	RunOnStart bool
}

// Scheduler runs tasks on fixed intervals. Every run happens under a lock so
// only one instance executes a given task at a time.
type Scheduler struct {
	tasks  []Task
	locker Locker
	config Config
	logger ectologger.Logger
	now    func() time.Time

	next map[string]time.Time

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. Tasks with a non-positive interval are
// ignored.
func NewScheduler(tasks []Task, locker Locker, config Config, logger ectologger.Logger) *Scheduler {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	active := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Interval > 0 && task.Run != nil {
			active = append(active, task)
		}
	}

	return &Scheduler{
		tasks:    active,
		locker:   locker,
		config:   config,
		logger:   logger,
		now:      time.Now,
		next:     make(map[string]time.Time, len(active)),
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	start := s.now()
	for _, task := range s.tasks {
		if s.config.RunOnStart {
			s.next[task.Name] = start
		} else {
			s.next[task.Name] = start.Add(task.Interval)
		}
		s.logger.WithContext(ctx).Infof("Scheduled task %s every %s", task.Name, task.Interval)
	}

	go s.pollLoop(ctx)

	s.logger.WithContext(ctx).Infof("Scheduler started: poll_interval=%s tasks=%d", s.config.PollInterval, len(s.tasks))
	return nil
}

// Stop stops the scheduler gracefully, waiting for a task in flight
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runDue(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every task whose next run time has passed
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	for _, task := range s.tasks {
		if now.Before(s.next[task.Name]) {
			continue
		}
		s.next[task.Name] = now.Add(task.Interval)
		s.RunTask(ctx, task)
	}
}

// RunTask runs one task under its lock and returns the recorded outcome
func (s *Scheduler) RunTask(ctx context.Context, task Task) string {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunTask")
	defer span.End()

	start := s.now()
	err := s.locker.WithLock(ctx, LockKeyPrefix+task.Name, s.config.LockTTL, task.Run)

	outcome := OutcomeSuccess
	switch {
	case err == nil:
		s.logger.WithContext(ctx).Infof("Scheduled task %s completed in %s", task.Name, s.now().Sub(start))
	case errors.Is(err, redis.ErrLockNotAcquired):
		outcome = OutcomeLocked
		s.logger.WithContext(ctx).Debugf("Scheduled task %s is running on another instance, skipping", task.Name)
	case errors.Is(err, ErrSkipped):
		outcome = OutcomeSkipped
		s.logger.WithContext(ctx).WithError(err).Infof("Scheduled task %s skipped", task.Name)
	default:
		outcome = OutcomeError
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).Errorf("Scheduled task %s failed", task.Name)
	}

	metrics.RecordSchedulerRun(task.Name, outcome)
	return outcome
}
