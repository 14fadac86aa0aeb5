package registry

import "errors"

var (
	// ErrTaskNotFound is returned when a task id is unknown
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNameRequired is returned when a draft has no name
	ErrTaskNameRequired = errors.New("task name is required")
)
