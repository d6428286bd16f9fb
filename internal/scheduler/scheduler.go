// Package scheduler enqueues the periodic lending jobs on cron schedules.
// Each tick only adds a task to the backlite queue; the queue runs it.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/tasks"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Enqueuer adds tasks to the queue.
type Enqueuer interface {
	Enqueue(tasks ...backlite.Task) ([]string, error)
}

// Job names.
const (
	JobOverdueSweep = "overdue_sweep"
	JobAuditCleanup = "audit_cleanup"
)

type job struct {
	name     string
	schedule string
	task     func() backlite.Task
	sched    cron.Schedule
}

// Scheduler manages the overdue sweep and audit cleanup schedules.
type Scheduler struct {
	queue Enqueuer
	jobs  []*job

	cron       *cron.Cron
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// New creates a scheduler for the configured schedules. An empty schedule
// disables that job.
func New(queue Enqueuer, schedules config.Schedules, auditCfg config.Audit) *Scheduler {
	s := &Scheduler{
		queue: queue,
		cron:  cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
	}
	if schedules.OverdueSweep != "" {
		s.jobs = append(s.jobs, &job{
			name:     JobOverdueSweep,
			schedule: schedules.OverdueSweep,
			task:     func() backlite.Task { return tasks.OverdueSweepTask{AsOf: time.Now().UTC()} },
		})
	}
	if schedules.AuditCleanup != "" {
		s.jobs = append(s.jobs, &job{
			name:     JobAuditCleanup,
			schedule: schedules.AuditCleanup,
			task: func() backlite.Task {
				return tasks.CleanupAuditEventsTask{RetentionDays: auditCfg.RetentionDays, ArchiveDir: auditCfg.ArchiveDir}
			},
		})
	}
	return s
}

// ValidateSchedule reports whether schedule is a valid five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// Start registers every job and starts the cron loop. It stops when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if len(s.jobs) == 0 {
		log.Printf("[SCHEDULER] No schedules configured")
		return nil
	}

	for _, j := range s.jobs {
		sched, err := parser.Parse(j.schedule)
		if err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", j.schedule, j.name, err)
		}
		j.sched = sched
	}
	for _, j := range s.jobs {
		j := j
		s.cron.Schedule(j.sched, cron.FuncJob(func() { _ = s.enqueue(j) }))
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	now := time.Now().UTC()
	for _, j := range s.jobs {
		log.Printf("[SCHEDULER] %s scheduled '%s', next run %v", j.name, j.schedule, j.sched.Next(now))
	}

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the cron loop and waits for running enqueues to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("[SCHEDULER] Stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRuns returns the next fire time of each scheduled job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := make(map[string]time.Time, len(s.jobs))
	if !s.isRunning {
		return next
	}
	now := time.Now().UTC()
	for _, j := range s.jobs {
		next[j.name] = j.sched.Next(now)
	}
	return next
}

// RunNow enqueues the named job immediately.
func (s *Scheduler) RunNow(name string) error {
	for _, j := range s.jobs {
		if j.name == name {
			return s.enqueue(j)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) enqueue(j *job) error {
	if _, err := s.queue.Enqueue(j.task()); err != nil {
		log.Printf("[SCHEDULER] Failed to enqueue %s: %v", j.name, err)
		return err
	}
	return nil
}
