package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound     = errors.New("resource not found")
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// Argument errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyTaskName   = fmt.Errorf("%w: task name must be non-empty", ErrInvalidArgument)
	ErrNoExamples      = fmt.Errorf("%w: need at least one calibration example", ErrInvalidArgument)

	// Capability errors
	ErrRuleFailure  = errors.New("rule failure")
	ErrJudgeFailure = errors.New("judge failure")

	// Storage errors
	ErrCacheCorruption = errors.New("cache entry corrupted")
)

// Error constructors with context
func NewTaskNotFoundError(name string) error {
	return fmt.Errorf("%w: '%s' is not registered", ErrTaskNotFound, name)
}

func NewRuleError(rule string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrRuleFailure, rule, reason)
}

func NewJudgeError(judge string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrJudgeFailure, judge, err)
}

func NewCorruptionError(key Fingerprint, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCacheCorruption, key, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsRuleFailure(err error) bool {
	return errors.Is(err, ErrRuleFailure)
}

func IsJudgeFailure(err error) bool {
	return errors.Is(err, ErrJudgeFailure)
}
