// Package errors provides centralized error definitions and error handling
// utilities for browserd. It defines sentinel errors, domain error types
// carrying the context an operator needs to act on a failure, and
// classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - ConfigurationError: an invalid or unavailable port, or an exhausted port range
//   - LockConflictError: a profile directory held by a live process
//   - RegistryError: an unreadable or malformed instance record
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// A process that does not die within its deadline is not an error at all;
// the lifecycle controller reports it as a result with Success=false.
//
// # Usage
//
//	err := errors.NewConfigurationError("port 9867 is already in use", errors.ErrPortInUse).
//		WithFlag("--port").WithPorts(9867)
//
//	var conflict *errors.LockConflictError
//	if errors.As(err, &conflict) {
//	    fmt.Println("held by", conflict.HolderPID)
//	}
package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Port allocation sentinel errors
var (
	// ErrInvalidPort indicates a port outside 1-65535 or an invalid pair.
	ErrInvalidPort = New("invalid port")
	// ErrPortInUse indicates an explicitly requested port could not be bound.
	ErrPortInUse = New("port already in use")
	// ErrPortRangeExhausted indicates no free pair was found within the attempt budget.
	ErrPortRangeExhausted = New("no free port pair in range")
)

// Profile lock sentinel errors
var (
	// ErrProfileLocked indicates the profile directory is held by a live process.
	ErrProfileLocked = New("profile directory is locked")
)

// Registry sentinel errors
var (
	// ErrInstanceNotFound indicates no record exists for a port.
	ErrInstanceNotFound = New("instance not found")
	// ErrRecordCorrupted indicates a record file could not be parsed.
	ErrRecordCorrupted = New("instance record corrupted")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BrowserdError is implemented by every domain error in this package.
type BrowserdError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	// IsUserFacing reports whether the message is safe to print to an operator.
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigurationError reports a startup configuration the process cannot run
// with: an invalid port, an explicitly requested port that is taken, or an
// exhausted auto-selection range. It is fatal to the startup attempt.
//
// Example:
//
//	err := errors.NewConfigurationError("port 9868 is already in use", errors.ErrPortInUse).
//		WithFlag("--cdp-port").WithPorts(9868)
//	fmt.Println(err) // "configuration error [flag=--cdp-port, ports=9868]: port 9868 is already in use: port already in use"
type ConfigurationError struct {
	baseError
	// Flag is the command-line flag the operator should change, if any.
	Flag string
	// Ports lists the ports involved in the failure.
	Ports []int
	// RangeStart and RangeEnd bound the scanned range for exhaustion errors.
	RangeStart int
	RangeEnd   int
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithFlag names the flag the operator should change.
func (e *ConfigurationError) WithFlag(flag string) *ConfigurationError {
	e.Flag = flag
	return e
}

// WithPorts records the ports involved.
func (e *ConfigurationError) WithPorts(ports ...int) *ConfigurationError {
	e.Ports = append(e.Ports, ports...)
	return e
}

// WithRange records the scanned port range.
func (e *ConfigurationError) WithRange(start, end int) *ConfigurationError {
	e.RangeStart = start
	e.RangeEnd = end
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Flag != "" {
		parts = append(parts, fmt.Sprintf("flag=%s", e.Flag))
	}
	if len(e.Ports) > 0 {
		ports := make([]string, len(e.Ports))
		for i, p := range e.Ports {
			ports[i] = strconv.Itoa(p)
		}
		parts = append(parts, fmt.Sprintf("ports=%s", strings.Join(ports, ",")))
	}
	if e.RangeEnd > 0 {
		parts = append(parts, fmt.Sprintf("range=%d-%d", e.RangeStart, e.RangeEnd))
	}
	return formatWithContext("configuration error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LockConflictError reports that a profile directory is held by another live
// process. The holder fields let an operator decide whether to stop it.
type LockConflictError struct {
	baseError
	Dir        string
	HolderPID  int
	HolderPort int
	AcquiredAt time.Time
}

// NewLockConflictError creates a LockConflictError for dir.
func NewLockConflictError(dir string, holderPID, holderPort int, acquiredAt time.Time) *LockConflictError {
	msg := fmt.Sprintf("profile %s is in use by pid %d", dir, holderPID)
	if holderPort > 0 {
		msg += fmt.Sprintf(" (port %d", holderPort)
		if !acquiredAt.IsZero() {
			msg += fmt.Sprintf(", since %s", acquiredAt.Format(time.RFC3339))
		}
		msg += ")"
	} else if holderPID == 0 {
		msg = fmt.Sprintf("profile %s is being claimed by another process", dir)
	}
	return &LockConflictError{
		baseError: baseError{
			message:    msg,
			cause:      ErrProfileLocked,
			severity:   SeverityError,
			userFacing: true,
		},
		Dir:        dir,
		HolderPID:  holderPID,
		HolderPort: holderPort,
		AcquiredAt: acquiredAt,
	}
}

// Error returns the formatted error message.
func (e *LockConflictError) Error() string {
	return e.message + "; stop that instance or choose a different profile"
}

// Is checks if this error matches the target.
func (e *LockConflictError) Is(target error) bool {
	if _, ok := target.(*LockConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RegistryError reports a registry record that could not be read or parsed.
// List and sweep operations log and skip these; only direct lookups return them.
type RegistryError struct {
	baseError
	Path string
	Port int
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(message string, cause error) *RegistryError {
	return &RegistryError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithPath records the offending file.
func (e *RegistryError) WithPath(path string) *RegistryError {
	e.Path = path
	return e
}

// WithPort records the port the file is keyed by.
func (e *RegistryError) WithPort(port int) *RegistryError {
	e.Port = port
	return e
}

// Error returns the formatted error message.
func (e *RegistryError) Error() string {
	var parts []string
	if e.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", e.Port))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return formatWithContext("registry error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *RegistryError) Is(target error) bool {
	if _, ok := target.(*RegistryError); ok {
		return true
	}
	return e.baseError.Is(target)
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("instance", "9867").WithCause(errors.ErrInstanceNotFound)
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause sets the underlying cause.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Unwrap returns the underlying cause.
func (e *NotFoundError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField sets the field name.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause sets the underlying cause.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	msg := "validation error"
	if e.Field != "" {
		msg = fmt.Sprintf("validation error [%s]", e.Field)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.Value != nil {
		msg = fmt.Sprintf("%s (got: %v)", msg, e.Value)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to an
// operator as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var domainErr BrowserdError
	if As(err, &domainErr) {
		return domainErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	return As(err, &notFound) || As(err, &validation)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BrowserdError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var domainErr BrowserdError
	if As(err, &domainErr) {
		return domainErr.Severity()
	}
	return SeverityError
}
