// Package errors provides standardized error handling for the intake gateway.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfigInvalid        ErrorCode = "CONFIG_INVALID"
	ErrCodeCredentialResolution ErrorCode = "CREDENTIAL_RESOLUTION_FAILED"
	ErrCodeTokenAcquisition     ErrorCode = "TOKEN_ACQUISITION_FAILED"

	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchUnavailable ErrorCode = "SEARCH_BACKEND_UNAVAILABLE"

	ErrCodeIntakeValidationFailed ErrorCode = "INTAKE_VALIDATION_FAILED"
	ErrCodeIntakePersistFailed    ErrorCode = "INTAKE_PERSIST_FAILED"
	ErrCodeIntakeAlreadyStored    ErrorCode = "INTAKE_ALREADY_STORED"

	ErrCodeUpstreamConnectFailed ErrorCode = "UPSTREAM_CONNECT_FAILED"
	ErrCodeUnknownTool           ErrorCode = "UNKNOWN_TOOL"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Tool Error Integration
// ==========================

// ToolError is the payload injected back into the model conversation when a
// tool invocation fails. It is session-scoped: the model may retry or tell
// the patient, but the session itself keeps running.
type ToolError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("ToolError[%s]: %s", e.Code, e.Message)
}

// Payload returns the map rendered into the tool-response output so the
// model can react to the failure.
func (e *ToolError) Payload() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":      e.Code,
			"message":   e.Message,
			"details":   e.Details,
			"retryable": e.Retryable,
		},
	}
}

// ConvertToToolError converts any error into the ToolError surfaced to the
// model. StandardError codes pass through; everything else is wrapped as a
// generic retryable tool failure.
func ConvertToToolError(err error) *ToolError {
	if te, ok := err.(*ToolError); ok {
		return te
	}
	if se, ok := err.(*StandardError); ok {
		return &ToolError{
			Code:      string(se.Code),
			Message:   se.Message,
			Details:   se.Details,
			Retryable: se.Retryable,
		}
	}
	return &ToolError{
		Code:      "TOOL_EXECUTION_FAILED",
		Message:   "Tool execution failed",
		Details:   err.Error(),
		Retryable: true,
	}
}

// ==========================
// 3. Error Constructors
// ==========================

// NewConfigInvalidError creates a startup-fatal configuration error.
func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid gateway configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenAcquisitionError creates a startup-fatal identity error.
func NewTokenAcquisitionError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenAcquisition,
		Message:   "Federated identity token acquisition failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Knowledge base query error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchUnavailableError creates a retryable search backend error.
func NewSearchUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchUnavailable,
		Message:   "Knowledge base backend unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntakeValidationFailedError creates a non-retryable record validation error.
// The model is expected to fix the record and call store again.
func NewIntakeValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntakeValidationFailed,
		Message:   "Intake record validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntakePersistFailedError creates a retryable persistence error.
func NewIntakePersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntakePersistFailed,
		Message:   "Intake record could not be persisted",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntakeAlreadyStoredError creates the protocol error for a second store
// call after a successful one.
func NewIntakeAlreadyStoredError(admissionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntakeAlreadyStored,
		Message:   "Intake record already stored for this session",
		Details:   fmt.Sprintf("admissionId: %s", admissionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamConnectFailedError creates a session-scoped upstream transport error.
func NewUpstreamConnectFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamConnectFailed,
		Message:   "Could not open upstream realtime channel",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownToolError creates the error for a tool-invocation event naming
// a tool the session does not expose.
func NewUnknownToolError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownTool,
		Message:   "Unknown tool invoked",
		Details:   fmt.Sprintf("tool: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsFatal reports whether an error must abort the process at startup.
func IsFatal(err error) bool {
	se, ok := err.(*StandardError)
	if !ok {
		return false
	}
	switch se.Code {
	case ErrCodeConfigInvalid, ErrCodeCredentialResolution, ErrCodeTokenAcquisition:
		return true
	default:
		return false
	}
}
