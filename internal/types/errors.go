package types

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a failure for callers that translate errors into responses.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_failed"
	KindDuplicate       ErrorKind = "duplicate"
	KindThrottled       ErrorKind = "throttled"
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindStoreFailure    ErrorKind = "store_failure"
	KindNotFound        ErrorKind = "not_found"
	KindUnauthorized    ErrorKind = "unauthorized"
)

// Kinded is implemented by every error that carries an ErrorKind.
type Kinded interface {
	error
	Kind() ErrorKind
}

// ValidationError indicates input that failed a check.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

// Kind implements Kinded.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// DuplicateError indicates an application already exists for the same
// applicant and role. SubmittedAt and ReapplyAfter are nil when the conflict
// was detected by the unique index rather than the pre-check.
type DuplicateError struct {
	Role         string
	SubmittedAt  *time.Time
	ReapplyAfter *time.Time
}

func (e *DuplicateError) Error() string {
	if e.ReapplyAfter != nil {
		return fmt.Sprintf("an application for %q already exists; a new one is accepted after %s",
			e.Role, e.ReapplyAfter.Format(time.DateOnly))
	}
	return fmt.Sprintf("an application for %q already exists", e.Role)
}

// Kind implements Kinded.
func (e *DuplicateError) Kind() ErrorKind { return KindDuplicate }

// ThrottledError indicates the client exceeded its request allowance.
type ThrottledError struct {
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

// Kind implements Kinded.
func (e *ThrottledError) Kind() ErrorKind { return KindThrottled }

// PayloadTooLargeError indicates an attachment above the upload limit.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("attachment of %d bytes exceeds the %d byte limit", e.Size, e.Limit)
}

// Kind implements Kinded.
func (e *PayloadTooLargeError) Kind() ErrorKind { return KindPayloadTooLarge }

// StoreError indicates a record store or blob store operation failed.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Kind implements Kinded.
func (e *StoreError) Kind() ErrorKind { return KindStoreFailure }

// NotFoundError indicates a referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Kind implements Kinded.
func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// UnauthorizedError indicates a missing or rejected credential.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// Kind implements Kinded.
func (e *UnauthorizedError) Kind() ErrorKind { return KindUnauthorized }
