package queue

import "errors"

var (
	// ErrHandlerNil is returned when a task is registered without a handler.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrInvalidSchedule is returned when a schedule expression cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule format")

	// ErrTaskAlreadyRegistered is returned when trying to register a duplicate task.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrSchedulerNotConfigured is returned when the scheduler has no tasks.
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")

	// ErrTaskNotFound is returned by RunNow for an unknown task name.
	ErrTaskNotFound = errors.New("task not found")
)
