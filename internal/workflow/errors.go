package workflow

import "errors"

// Fatal run errors. They end a thread in StatusFailed and are returned in
// Result.Err.
var (
	ErrCoordinator       = errors.New("coordinator failed")
	ErrPlanning          = errors.New("planning failed")
	ErrUnknownFeedback   = errors.New("unknown plan feedback")
	ErrTooManyEdits      = errors.New("too many plan edits")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrExecutor          = errors.New("step execution failed")
	ErrReport            = errors.New("report generation failed")
	ErrRunaway           = errors.New("recursion limit reached")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Engine errors. The thread state is left untouched when these are returned.
var (
	ErrCheckpoint     = errors.New("checkpoint store unavailable")
	ErrThreadNotFound = errors.New("thread not found")
	ErrNotSuspended   = errors.New("thread is not awaiting feedback")
	ErrSuspended      = errors.New("thread is awaiting feedback")
	ErrNotRunning     = errors.New("thread has no interrupted run")
	ErrThreadBusy     = errors.New("thread has an interrupted run")
)
