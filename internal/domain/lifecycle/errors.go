package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted
	// from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state belongs to neither lifecycle
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every candidate transition's guard
	// rejects the trigger
	ErrGuardFailed = errors.New("guard condition failed")
)
