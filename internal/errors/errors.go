// Package errors provides standardized error codes for the live-editing client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (channel, protocol, diff, guard, config, storage)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by host applications for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes by domain.
const (
	// Channel domain - persistent connection errors
	CodeChannelDialFailed       = "channel.dial_failed"       // Transport could not be opened
	CodeChannelConnectionLost   = "channel.connection_lost"   // Open transport failed or closed
	CodeChannelRetriesExhausted = "channel.retries_exhausted" // Retry budget used up, manual reconnect needed
	CodeChannelNotConnected     = "channel.not_connected"     // Send attempted while not connected
	CodeChannelSendFailed       = "channel.send_failed"       // Outbound frame could not be queued
	CodeChannelRateLimited      = "channel.rate_limited"      // Too many outbound frames per second
	CodeChannelClosed           = "channel.closed"            // Channel was closed by the consumer

	// Protocol domain - inbound message decoding
	CodeProtocolDecodeFailed = "protocol.decode_failed" // Malformed envelope or payload
	CodeProtocolUnknownType  = "protocol.unknown_type"  // Unrecognized type discriminator

	// Diff domain - hunk parsing and reconciliation
	CodeDiffValidationFailed = "diff.validation_failed" // Malformed, out-of-order or overlapping hunks
	CodeDiffParseFailed      = "diff.parse_failed"      // Unified diff text could not be parsed

	// Guard domain - debounced/deduplicated operations
	CodeGuardOperationFailed = "guard.operation_failed" // Wrapped operation returned an error
	CodeGuardSuperseded      = "guard.superseded"       // A later invoke replaced this one
	CodeGuardCancelled       = "guard.cancelled"        // Pending invoke cleared by Cancel

	// Config domain
	CodeConfigNotFound    = "config.not_found"    // Explicit config path does not exist
	CodeConfigParseFailed = "config.parse_failed" // TOML could not be decoded
	CodeConfigInvalid     = "config.invalid"      // Value present but unusable

	// Storage domain - status journal
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "channel.not_connected")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to user-facing output.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// DialFailed creates a "channel.dial_failed" error.
func DialFailed(endpoint string, cause error) *CodedError {
	return Wrap(CodeChannelDialFailed, fmt.Sprintf("dial %s failed", endpoint), cause)
}

// ConnectionLost creates a "channel.connection_lost" error.
func ConnectionLost(endpoint string, cause error) *CodedError {
	return Wrap(CodeChannelConnectionLost, fmt.Sprintf("connection to %s lost", endpoint), cause)
}

// RetriesExhausted creates a "channel.retries_exhausted" error.
// It is attached to the terminal disconnected status, never returned from a call.
func RetriesExhausted(endpoint string, attempts int) *CodedError {
	msg := fmt.Sprintf("gave up on %s after %d reconnect attempts (manual reconnect required)", endpoint, attempts)
	return New(CodeChannelRetriesExhausted, msg)
}

// NotConnected creates a "channel.not_connected" error.
func NotConnected(status string) *CodedError {
	return New(CodeChannelNotConnected, fmt.Sprintf("channel is %s", status))
}

// RateLimited creates a "channel.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeChannelRateLimited, "too many outbound messages, slow down")
}

// ChannelClosed creates a "channel.closed" error.
func ChannelClosed() *CodedError {
	return New(CodeChannelClosed, "channel is closed")
}

// DecodeFailed creates a "protocol.decode_failed" error.
func DecodeFailed(reason string, cause error) *CodedError {
	return Wrap(CodeProtocolDecodeFailed, reason, cause)
}

// UnknownType creates a "protocol.unknown_type" error.
func UnknownType(msgType string) *CodedError {
	return New(CodeProtocolUnknownType, fmt.Sprintf("unrecognized message type %q", msgType))
}

// ValidationFailed creates a "diff.validation_failed" error.
// The cause usually joins one error per offending hunk.
func ValidationFailed(count int, cause error) *CodedError {
	msg := "hunk validation failed"
	if count > 0 {
		msg = fmt.Sprintf("%d hunk issue(s), rendered best-effort", count)
	}
	return Wrap(CodeDiffValidationFailed, msg, cause)
}

// OperationFailed creates a "guard.operation_failed" error.
func OperationFailed(operation string, cause error) *CodedError {
	msg := "operation failed"
	if operation != "" {
		msg = fmt.Sprintf("%s failed", operation)
	}
	return Wrap(CodeGuardOperationFailed, msg, cause)
}

// Superseded creates a "guard.superseded" error.
func Superseded(operation string) *CodedError {
	return New(CodeGuardSuperseded, fmt.Sprintf("%s invocation superseded by a later call", nonEmpty(operation, "operation")))
}

// Cancelled creates a "guard.cancelled" error.
func Cancelled(operation string) *CodedError {
	return New(CodeGuardCancelled, fmt.Sprintf("%s invocation cancelled before it started", nonEmpty(operation, "operation")))
}

// ConfigInvalid creates a "config.invalid" error naming the offending keys.
func ConfigInvalid(keys []string) *CodedError {
	msg := "invalid configuration"
	if len(keys) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(keys, ", "))
	}
	return New(CodeConfigInvalid, msg)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
