// Package errors is the error taxonomy shared by the session store, the CLI
// and the HTTP API.
//
// Every typed error matches exactly one taxonomy sentinel through Is:
//
//	NotFoundError    ErrNotFound (plus ErrSessionNotFound, ErrTaskNotFound, ErrProjectNotFound)
//	ValidationError  ErrInvalidInput
//	ConflictError    ErrConflict
//	IntegrityError   ErrCorrupt, ErrTooLarge or ErrSymlinkRejected
//	StoreError       its cause only
//
// Code and ExitCode turn any error chain into the machine code printed by
// the CLI and returned by the API:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//	code := errors.Code(err) // "NOT_FOUND", "VALIDATION_ERROR", ...
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Callers import only this package, so the standard helpers are re-exported.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

var (
	ErrNotFound        = New("not found")
	ErrInvalidInput    = New("invalid input")
	ErrConflict        = New("conflict")
	ErrCorrupt         = New("record corrupt")
	ErrTooLarge        = New("record too large")
	ErrSymlinkRejected = New("symlink rejected")

	// ErrLockFailed is returned when a session lock cannot be taken in time.
	ErrLockFailed = New("lock failed")
)

// Resource sentinels; each wraps ErrNotFound.
var (
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("task %w", ErrNotFound)
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)
)

var resourceSentinels = map[string]error{
	"session": ErrSessionNotFound,
	"task":    ErrTaskNotFound,
	"project": ErrProjectNotFound,
}

// withContext renders "prefix [k=v, ...]: message[: cause]", skipping
// empty context values.
func withContext(prefix string, kv []string, message string, cause error) string {
	var ctx []string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			ctx = append(ctx, kv[i]+"="+kv[i+1])
		}
	}
	var b strings.Builder
	b.WriteString(prefix)
	if len(ctx) > 0 {
		b.WriteString(" [" + strings.Join(ctx, ", ") + "]")
	}
	b.WriteString(": " + message)
	if cause != nil {
		b.WriteString(": " + cause.Error())
	}
	return b.String()
}

// StoreError is an I/O failure on the record store such as a full disk,
// a permission problem or a failed rename.
type StoreError struct {
	SessionID string
	Path      string
	msg       string
	cause     error
}

func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{msg: message, cause: cause}
}

func (e *StoreError) WithSessionID(id string) *StoreError {
	e.SessionID = id
	return e
}

func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

func (e *StoreError) Error() string {
	return withContext("store error", []string{"session", e.SessionID, "path", e.Path}, e.msg, e.cause)
}

func (e *StoreError) Unwrap() error { return e.cause }

// IntegrityKind says why a stored record cannot be trusted.
type IntegrityKind int

const (
	IntegrityCorrupt IntegrityKind = iota
	IntegrityTooLarge
	IntegritySymlink
)

var integrityNames = [...]string{"corrupt", "too_large", "symlink"}

func (k IntegrityKind) String() string {
	if k < 0 || int(k) >= len(integrityNames) {
		return "unknown"
	}
	return integrityNames[k]
}

func (k IntegrityKind) sentinel() error {
	switch k {
	case IntegrityTooLarge:
		return ErrTooLarge
	case IntegritySymlink:
		return ErrSymlinkRejected
	}
	return ErrCorrupt
}

// IntegrityError reports a record that exists but cannot be trusted.
type IntegrityError struct {
	Kind  IntegrityKind
	Path  string
	cause error
}

func NewIntegrityError(kind IntegrityKind, path string, cause error) *IntegrityError {
	return &IntegrityError{Kind: kind, Path: path, cause: cause}
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity error [%s]: %s", e.Path, e.Kind.sentinel())
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return e.cause }

func (e *IntegrityError) Is(target error) bool { return target == e.Kind.sentinel() }

// NotFoundError names the missing resource, e.g.
// "session 'sess_20260210T1430_a1b2' not found".
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.cause }

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == resourceSentinels[e.ResourceType]
}

// ConflictError is a uniqueness violation caught before anything was
// written, e.g. "task subject 'Write tests' already exists".
type ConflictError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

func NewConflictError(resourceType, resourceID string) *ConflictError {
	return &ConflictError{ResourceType: resourceType, ResourceID: resourceID}
}

func (e *ConflictError) WithCause(cause error) *ConflictError {
	e.cause = cause
	return e
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.cause }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError is input rejected before any I/O.
//
//	errors.NewValidationError("too long (612 chars, max 500)").WithField("intent")
type ValidationError struct {
	Field string
	Value any
	msg   string
	cause error
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{msg: message}
}

func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var value string
	if e.Value != nil {
		value = fmt.Sprint(e.Value)
	}
	return withContext("validation error", []string{"field", e.Field, "value", value}, e.msg, e.cause)
}

func (e *ValidationError) Unwrap() error { return e.cause }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Machine-readable codes shared by the CLI and HTTP layers.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeCorrupt    = "DATA_CORRUPT"
	CodeInternal   = "INTERNAL_ERROR"
)

var exitCodes = map[string]int{
	"":             0,
	CodeInternal:   1,
	CodeValidation: 2,
	CodeNotFound:   3,
	CodeConflict:   4,
	CodeCorrupt:    5,
}

// Code classifies err. Validation wins over the other classes so a bad
// argument that also misses a record reports as invalid input.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrInvalidInput):
		return CodeValidation
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrConflict):
		return CodeConflict
	case Is(err, ErrCorrupt), Is(err, ErrTooLarge), Is(err, ErrSymlinkRejected):
		return CodeCorrupt
	}
	return CodeInternal
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	return exitCodes[Code(err)]
}

// Wrap prefixes err with message, returning nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
