// Package errors provides standardized error values for the aida ORB runtime
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryProtocol   ErrorCategory = "PROTOCOL"
	CategoryKind       ErrorCategory = "KIND"
	CategoryCapacity   ErrorCategory = "CAPACITY"
	CategoryDispatch   ErrorCategory = "DISPATCH"
	CategoryConnection ErrorCategory = "CONNECTION"
	CategoryHandle     ErrorCategory = "HANDLE"
	CategoryRegistry   ErrorCategory = "REGISTRY"
	CategoryValidation ErrorCategory = "VALIDATION"
)

// Error codes. Two StandardErrors match under errors.Is when their codes are equal.
const (
	CodeProtocolViolation   = "PROTOCOL_VIOLATION"
	CodeKindMismatch        = "KIND_MISMATCH"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeMethodNotFound      = "METHOD_NOT_FOUND"
	CodeConnectionFailure   = "CONNECTION_FAILURE"
	CodeConnectionClosed    = "CONNECTION_CLOSED"
	CodeRegistryFrozen      = "REGISTRY_FROZEN"
	CodeDuplicateMethod     = "DUPLICATE_METHOD"
	CodeIncompatibleVersion = "INCOMPATIBLE_VERSION"
	CodeUnknownName         = "UNKNOWN_NAME"
	CodeNullHandle          = "NULL_HANDLE"
	CodeOrbidExhausted      = "ORBID_EXHAUSTED"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Is reports whether target is a StandardError carrying the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newStandardError(2, category, code, message, context)
}

func newStandardError(skip int, category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrProtocolViolation   = &StandardError{Category: CategoryProtocol, Code: CodeProtocolViolation}
	ErrKindMismatch        = &StandardError{Category: CategoryKind, Code: CodeKindMismatch}
	ErrCapacityExceeded    = &StandardError{Category: CategoryCapacity, Code: CodeCapacityExceeded}
	ErrMethodNotFound      = &StandardError{Category: CategoryDispatch, Code: CodeMethodNotFound}
	ErrConnectionFailure   = &StandardError{Category: CategoryConnection, Code: CodeConnectionFailure}
	ErrConnectionClosed    = &StandardError{Category: CategoryConnection, Code: CodeConnectionClosed}
	ErrRegistryFrozen      = &StandardError{Category: CategoryRegistry, Code: CodeRegistryFrozen}
	ErrDuplicateMethod     = &StandardError{Category: CategoryRegistry, Code: CodeDuplicateMethod}
	ErrIncompatibleVersion = &StandardError{Category: CategoryConnection, Code: CodeIncompatibleVersion}
	ErrUnknownName         = &StandardError{Category: CategoryValidation, Code: CodeUnknownName}
	ErrNullHandle          = &StandardError{Category: CategoryHandle, Code: CodeNullHandle}
	ErrOrbidExhausted      = &StandardError{Category: CategoryCapacity, Code: CodeOrbidExhausted}
)

// Common error constructors
func ProtocolViolation(details string, index, size uint32) *StandardError {
	return newStandardError(2, CategoryProtocol, CodeProtocolViolation,
		fmt.Sprintf("Protocol violation at slot %d of %d: %s", index, size, details),
		map[string]interface{}{"index": index, "size": size, "details": details})
}

func KindMismatch(operation string, want, got fmt.Stringer) *StandardError {
	return newStandardError(2, CategoryKind, CodeKindMismatch,
		fmt.Sprintf("%s: kind %s requested, value holds %s", operation, want, got),
		map[string]interface{}{"operation": operation, "want": want.String(), "got": got.String()})
}

func CapacityExceeded(size, capacity uint32) *StandardError {
	return newStandardError(2, CategoryCapacity, CodeCapacityExceeded,
		fmt.Sprintf("ProtoMsg capacity %d exceeded by append at slot %d", capacity, size),
		map[string]interface{}{"size": size, "capacity": capacity})
}

func MethodNotFound(hi, lo uint64) *StandardError {
	return newStandardError(2, CategoryDispatch, CodeMethodNotFound,
		fmt.Sprintf("No method registered for (0x%016x,0x%016x)", hi, lo),
		map[string]interface{}{"hi": hi, "lo": lo})
}

func ConnectionFailure(protocol, reason string) *StandardError {
	return newStandardError(2, CategoryConnection, CodeConnectionFailure,
		fmt.Sprintf("Connection to %q failed: %s", protocol, reason),
		map[string]interface{}{"protocol": protocol, "reason": reason})
}

func ConnectionClosed(protocol, operation string) *StandardError {
	return newStandardError(2, CategoryConnection, CodeConnectionClosed,
		fmt.Sprintf("Connection %q closed during %s", protocol, operation),
		map[string]interface{}{"protocol": protocol, "operation": operation})
}

func RegistryFrozen(hi, lo uint64) *StandardError {
	return newStandardError(2, CategoryRegistry, CodeRegistryFrozen,
		fmt.Sprintf("Method registration for (0x%016x,0x%016x) after first dispatch", hi, lo),
		map[string]interface{}{"hi": hi, "lo": lo})
}

func DuplicateMethod(hi, lo uint64) *StandardError {
	return newStandardError(2, CategoryRegistry, CodeDuplicateMethod,
		fmt.Sprintf("Conflicting registration for (0x%016x,0x%016x)", hi, lo),
		map[string]interface{}{"hi": hi, "lo": lo})
}

func IncompatibleVersion(version, constraint string) *StandardError {
	return newStandardError(2, CategoryConnection, CodeIncompatibleVersion,
		fmt.Sprintf("Protocol version %q does not satisfy %q", version, constraint),
		map[string]interface{}{"version": version, "constraint": constraint})
}

func UnknownName(scope, name, suggestion string) *StandardError {
	msg := fmt.Sprintf("Unknown %s %q", scope, name)
	if suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q?", suggestion)
	}
	return newStandardError(2, CategoryValidation, CodeUnknownName, msg,
		map[string]interface{}{"scope": scope, "name": name, "suggestion": suggestion})
}

func NullHandle(operation string) *StandardError {
	return newStandardError(2, CategoryHandle, CodeNullHandle,
		fmt.Sprintf("Null handle in %s", operation),
		map[string]interface{}{"operation": operation})
}

func OrbidExhausted(protocol, field string, limit uint64) *StandardError {
	return newStandardError(2, CategoryCapacity, CodeOrbidExhausted,
		fmt.Sprintf("Connection %q ran out of orbid %s values (limit %d)", protocol, field, limit),
		map[string]interface{}{"protocol": protocol, "field": field, "limit": limit})
}
