// Package resilience wraps calls to the remote mailing service with input
// validation, error classification, exponential-backoff retry and a circuit
// breaker.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the classification of a failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
	KindAPI        Kind = "api"
	KindOther      Kind = "other"
)

// Kinds lists every classification in tally order.
var Kinds = []Kind{KindValidation, KindRateLimit, KindAPI, KindOther}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown error kind %q", s)
}

// Sentinels for errors.Is. Every *Error matches exactly one of the first four.
var (
	ErrValidation   = errors.New("validation error")
	ErrRateLimited  = errors.New("rate limited")
	ErrAPI          = errors.New("api error")
	ErrUnclassified = errors.New("unclassified error")

	// ErrBreakerOpen is matched by *BreakerOpenError. It never matches any of
	// the service kinds above.
	ErrBreakerOpen = errors.New("circuit breaker open")
)

// Error is a classified failure: kind, message and optional cause.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
	// Final failures are not retried within the current call, whatever the
	// policy says about their kind.
	Final bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("http %d: %s", e.StatusCode, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrAPI:
		return e.Kind == KindAPI
	case ErrUnclassified:
		return e.Kind == KindOther
	}
	return false
}

// Validation returns a validation failure for op.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Throttled returns a final rate_limit failure raised locally while a
// Retry-After window is still open. Backing off inside the same call would
// only burn attempts against the window.
func Throttled(op, message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Message: message, RetryAfter: retryAfter, Final: true}
}

// IsFinal reports whether err must not be retried within the current call.
func IsFinal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Final
}

// RateLimited returns a throttling failure. retryAfter is zero when the
// service gave no hint.
func RateLimited(op, message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Message: message, RetryAfter: retryAfter}
}

// APIFailure returns a remote-side failure carrying the HTTP status.
func APIFailure(op string, status int, message string) *Error {
	return &Error{Kind: KindAPI, Op: op, StatusCode: status, Message: message}
}

// Unclassified wraps a transport or unknown failure.
func Unclassified(op string, err error) *Error {
	return &Error{Kind: KindOther, Op: op, Err: err}
}

// KindOf classifies err. Anything that is not an *Error is KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindRateLimit, KindAPI:
			return e.Kind
		}
	}
	return KindOther
}

// BreakerOpenError is returned when the breaker rejects a call without
// invoking the operation.
type BreakerOpenError struct {
	Name  string
	State State
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s", e.Name, e.State)
}

func (e *BreakerOpenError) Is(target error) bool {
	return target == ErrBreakerOpen
}

// Diagnosis tells a caller which corrective action fits a failure.
type Diagnosis int

const (
	DiagnosisNone Diagnosis = iota
	// InvalidInput: fix the request, retrying will not help.
	InvalidInput
	// TemporarilyUnavailable: the service throttled or failed transiently.
	TemporarilyUnavailable
	// PersistentlyFailing: the breaker is open, back off for the cool-down.
	PersistentlyFailing
	// Unknown: transport or unclassified failure.
	Unknown
)

func (d Diagnosis) String() string {
	switch d {
	case InvalidInput:
		return "invalid_input"
	case TemporarilyUnavailable:
		return "temporarily_unavailable"
	case PersistentlyFailing:
		return "persistently_failing"
	case Unknown:
		return "unknown"
	}
	return "none"
}

// Diagnose maps err to a Diagnosis.
func Diagnose(err error) Diagnosis {
	if err == nil {
		return DiagnosisNone
	}
	if errors.Is(err, ErrBreakerOpen) {
		return PersistentlyFailing
	}
	switch KindOf(err) {
	case KindValidation:
		return InvalidInput
	case KindRateLimit, KindAPI:
		return TemporarilyUnavailable
	}
	return Unknown
}
