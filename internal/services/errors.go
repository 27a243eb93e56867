package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorKind groups error codes by how a caller should react to them.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindStateConflict          ErrorKind = "state_conflict"
	KindNotFound               ErrorKind = "not_found"
	KindExternalSubmission     ErrorKind = "external_submission"
	KindReconciliationConflict ErrorKind = "reconciliation_conflict"
	KindResolution             ErrorKind = "resolution"
	KindBusinessRule           ErrorKind = "business_rule"
)

// Error is the error type returned by the services. Two errors match under errors.Is
// when their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation            = &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: "validation failed"}
	ErrInvalidState          = &Error{Kind: KindStateConflict, Code: "INVALID_STATE", Message: "invalid state"}
	ErrTemplateLocked        = &Error{Kind: KindStateConflict, Code: "TEMPLATE_LOCKED", Message: "template is locked"}
	ErrNotFound              = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrSubmission            = &Error{Kind: KindExternalSubmission, Code: "SUBMISSION_FAILED", Message: "transaction submission failed"}
	ErrConflictingResolution = &Error{Kind: KindReconciliationConflict, Code: "CONFLICTING_RESOLUTION", Message: "transaction already resolved with a different outcome"}
	ErrConsistencyViolation  = &Error{Kind: KindReconciliationConflict, Code: "CONSISTENCY_VIOLATION", Message: "outcome does not match the recorded state"}
	ErrAlreadyResolved       = &Error{Kind: KindResolution, Code: "ALREADY_RESOLVED", Message: "transaction already resolved"}
	ErrRevocationInProgress  = &Error{Kind: KindBusinessRule, Code: "REVOCATION_IN_PROGRESS", Message: "a revocation is already pending for this recipient"}
	ErrNothingToRevoke       = &Error{Kind: KindBusinessRule, Code: "NOTHING_TO_REVOKE", Message: "recipient has nothing left to revoke"}
	ErrDeploymentFailed      = &Error{Kind: KindBusinessRule, Code: "DEPLOYMENT_FAILED", Message: "deployment transaction failed"}
)

// errLostRace marks a compare-and-set that matched no row because another worker moved
// the entity first. It never leaves the package.
var errLostRace = errors.New("entity changed concurrently")

// newError derives an error from a sentinel with a specific message and cause.
func newError(sentinel *Error, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// notFoundOr maps gorm.ErrRecordNotFound to ErrNotFound and wraps anything else.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, nil, "%s not found", what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// KindOf returns the kind of a service error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
