// Package queue runs periodic background work in-process.
//
// A Scheduler holds named tasks, each with a Schedule (fixed interval, daily
// time or cron expression parsed by robfig/cron) and a TaskFunc. Start checks
// the tasks every check interval and runs the due ones in their own goroutine;
// a task never overlaps with a previous run of itself. RunNow executes a task
// once on demand, which is what one-shot CLI commands use.
//
// ForEach fans a slice of work items out to a bounded number of goroutines.
//
//	s := queue.NewScheduler(queue.WithCheckInterval(10 * time.Second))
//	_ = s.AddTask("billing.sweep", queue.MustCron("*/5 * * * *"), sweeper.Sweep)
//	err := s.Start(ctx)
package queue
