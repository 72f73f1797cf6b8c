package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskFunc is the body of a periodic task. The scheduled time is passed in
// so handlers can use it as their reference clock.
type TaskFunc func(ctx context.Context, scheduledAt time.Time) error

// Scheduler runs registered periodic tasks in-process. A task never overlaps
// with itself: a run that is still in progress skips the next slot.
type Scheduler struct {
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	wg       sync.WaitGroup
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type scheduledTask struct {
	name     string
	schedule Schedule
	handler  TaskFunc
	timeout  time.Duration
	nextRun  time.Time
	running  bool
	runFirst bool
}

// NewScheduler creates a new task scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger,
		now:      options.now,
	}
}

// AddTask registers a periodic task.
func (s *Scheduler) AddTask(name string, schedule Schedule, handler TaskFunc, opts ...SchedulerTaskOption) error {
	if handler == nil {
		return ErrHandlerNil
	}
	taskOpts := &schedulerTaskOptions{}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}

	s.tasks[name] = &scheduledTask{
		name:     name,
		schedule: schedule,
		handler:  handler,
		timeout:  taskOpts.timeout,
		runFirst: taskOpts.runFirst,
	}

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start checks tasks until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.checkTasks(ctx)
		}
	}
}

// RunNow runs a registered task synchronously, outside of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.execute(ctx, task, s.now())
}

// ListTasks returns the names of all registered tasks.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) checkTasks(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*scheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.nextRun.IsZero() && !task.runFirst {
			task.nextRun = task.schedule.Next(now)
			continue
		}
		if task.running || now.Before(task.nextRun) {
			continue
		}
		task.running = true
		task.runFirst = false
		task.nextRun = task.schedule.Next(now)
		due = append(due, task)
	}
	s.mu.Unlock()

	for _, task := range due {
		s.wg.Add(1)
		go func(task *scheduledTask) {
			defer s.wg.Done()
			defer s.markDone(task)

			if err := s.execute(ctx, task, now); err != nil {
				s.logger.Error("periodic task failed",
					slog.String("task_name", task.name),
					slog.String("error", err.Error()))
			}
		}(task)
	}
}

func (s *Scheduler) execute(ctx context.Context, task *scheduledTask, at time.Time) error {
	if task.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.timeout)
		defer cancel()
	}

	start := s.now()
	err := task.handler(ctx, at)
	s.logger.Debug("periodic task finished",
		slog.String("task_name", task.name),
		slog.Duration("duration", s.now().Sub(start)))
	return err
}

func (s *Scheduler) markDone(task *scheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.running = false
}
