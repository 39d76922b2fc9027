// Package autotask defines the autonomous task scheduler collaborator. The
// engine executes one cycle per tick and stays out of goal/plan internals.
package autotask

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task is one autonomously scheduled unit of work.
type Task struct {
	ID        string
	Name      string
	Priority  int
	Execute   func(ctx context.Context, dt float64) error
	CreatedAt time.Time
}

// Stats is the scheduler's read-only aggregate.
type Stats struct {
	Pending  int    `json:"pending"`
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
}

// Scheduler is the collaborator contract consumed by the brain.
type Scheduler interface {
	AddTask(t *Task)
	ExecuteCycle(ctx context.Context, dt float64) bool
	Statistics() Stats
}

// Queue is a FIFO scheduler executing at most one task per cycle.
type Queue struct {
	mu       sync.Mutex
	tasks    []*Task
	executed uint64
	failed   uint64
	logger   *zap.Logger
}

// NewQueue creates an empty task queue.
func NewQueue(logger *zap.Logger) *Queue {
	return &Queue{logger: logger}
}

// AddTask enqueues a task, assigning an ID if absent.
func (q *Queue) AddTask(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	q.tasks = append(q.tasks, t)
}

// ExecuteCycle pops and runs the oldest task. Returns whether any work ran.
func (q *Queue) ExecuteCycle(ctx context.Context, dt float64) bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	if t.Execute != nil {
		if err := t.Execute(ctx, dt); err != nil {
			q.mu.Lock()
			q.failed++
			q.mu.Unlock()
			q.logger.Warn("autonomous task failed",
				zap.String("task", t.ID),
				zap.String("name", t.Name),
				zap.Error(err))
			return true
		}
	}
	q.mu.Lock()
	q.executed++
	q.mu.Unlock()
	return true
}

// Statistics returns the aggregate.
func (q *Queue) Statistics() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: len(q.tasks), Executed: q.executed, Failed: q.failed}
}
