package executor

import "errors"

var (
	// ErrNoAccountsSelected is returned when a fan-out has no account targets
	ErrNoAccountsSelected = errors.New("no accounts selected")

	// ErrNoCapabilitiesSelected is returned when a fan-out has no capability targets
	ErrNoCapabilitiesSelected = errors.New("no capabilities selected")
)
