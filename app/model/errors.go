package model

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ExternalProviderError indicates a failed call to an external service
// (push provider, content fetch, transcript provider). Retryable.
type ExternalProviderError struct {
	Provider string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("external provider %s: %v", e.Provider, e.Err)
}

func (e *ExternalProviderError) Unwrap() error {
	return e.Err
}

func NewExternalProviderError(provider string, err error) error {
	return &ExternalProviderError{Provider: provider, Err: err}
}

func IsExternalProviderError(err error) bool {
	var pe *ExternalProviderError
	return errors.As(err, &pe)
}

// FatalConfigurationError indicates the service is misconfigured and
// must refuse to start. Never retried.
type FatalConfigurationError struct {
	Setting string
	Reason  string
}

func (e *FatalConfigurationError) Error() string {
	return fmt.Sprintf("fatal configuration error: %s %s", e.Setting, e.Reason)
}

func NewFatalConfigurationError(setting, reason string) error {
	return &FatalConfigurationError{Setting: setting, Reason: reason}
}

func IsFatalConfigurationError(err error) bool {
	var fc *FatalConfigurationError
	return errors.As(err, &fc)
}

// PartialBatchFailure reports a wipeout that stopped mid-sequence. Batches
// before BatchesCompleted are committed; re-running the wipeout resumes
// with whatever remains.
type PartialBatchFailure struct {
	BatchesCompleted int
	BatchesTotal     int
	Err              error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("batch %d of %d failed: %v", e.BatchesCompleted+1, e.BatchesTotal, e.Err)
}

func (e *PartialBatchFailure) Unwrap() error {
	return e.Err
}
