package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of provider calls
type ErrorKind string

const (
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindProvider   ErrorKind = "provider"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindValidation ErrorKind = "validation"
)

var (
	// ErrNetwork is matched by errors where the request never reached the provider or never returned
	ErrNetwork = errors.New("network error")

	// ErrProvider is matched by non-success statuses and semantically failed jobs
	ErrProvider = errors.New("provider error")

	// ErrTimeout is matched when an asynchronous job exceeds its retry budget
	ErrTimeout = errors.New("timeout")

	// ErrValidation is matched by inputs that must not reach a provider
	ErrValidation = errors.New("validation error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindNetwork:
		return ErrNetwork
	case ErrorKindProvider:
		return ErrProvider
	case ErrorKindTimeout:
		return ErrTimeout
	case ErrorKindValidation:
		return ErrValidation
	}
	return nil
}

// DetectionError is the tagged failure of a provider call
type DetectionError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *DetectionError) Error() string {
	msg := string(e.Kind) + " error"
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DetectionError) Unwrap() error { return e.Err }

func (e *DetectionError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func NewNetworkError(provider string, err error) *DetectionError {
	return &DetectionError{Kind: ErrorKindNetwork, Provider: provider, Err: err}
}

func NewProviderError(provider string, statusCode int, message string) *DetectionError {
	return &DetectionError{Kind: ErrorKindProvider, Provider: provider, StatusCode: statusCode, Message: message}
}

func NewTimeoutError(provider, message string, err error) *DetectionError {
	return &DetectionError{Kind: ErrorKindTimeout, Provider: provider, Message: message, Err: err}
}

func NewValidationError(format string, args ...any) *DetectionError {
	return &DetectionError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, defaulting to provider for
// untagged failures
func KindOf(err error) ErrorKind {
	var de *DetectionError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindProvider
}
