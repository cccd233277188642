/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package errdefs defines the error taxonomy shared by the bridge components.
//
// Every failure that can cross the protocol boundary is one of the codes
// below. Fatal faults are deliberately NOT errors: they are raised as panics
// carrying *FatalFault and no recovery boundary in this repository is allowed
// to swallow them (see IsFatalPanic).
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeInvalidProcessType   Code = "INVALID_PROCESS_TYPE"
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeToolNotFound         Code = "TOOL_NOT_FOUND"
	CodeState                Code = "STATE_ERROR"
	CodeBridge               Code = "BRIDGE_ERROR"
	CodeTimeout              Code = "TIMEOUT"
	CodeUnimplemented        Code = "UNIMPLEMENTED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is the envelope-ready error used across the bridge.
// Data carries machine-readable diagnostic fields; it never contains a stack trace.
type Error struct {
	Code    Code
	Message string
	Data    map[string]any

	// Retryable is a hint for bridge errors: whether the same call could
	// plausibly succeed if resolved and issued again.
	Retryable bool

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func Validation(message string, data map[string]any) *Error {
	return &Error{Code: CodeValidation, Message: message, Data: data}
}

func InvalidProcessType(pid int32, actualName string, expectedPattern string) *Error {
	return &Error{
		Code:    CodeInvalidProcessType,
		Message: fmt.Sprintf("process %d (%q) is not an automation host process", pid, actualName),
		Data: map[string]any{
			"processId":       pid,
			"processName":     actualName,
			"expectedPattern": expectedPattern,
		},
	}
}

func InvalidConfiguration(value string, allowed []string) *Error {
	return &Error{
		Code:    CodeInvalidConfiguration,
		Message: fmt.Sprintf("unknown build configuration %q", value),
		Data: map[string]any{
			"configuration": value,
			"allowed":       allowed,
		},
	}
}

func NotFound(kind string, name any) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", kind, name),
		Data:    map[string]any{"kind": kind, "name": fmt.Sprintf("%v", name)},
	}
}

func ToolNotFound(toolName string) *Error {
	return &Error{
		Code:    CodeToolNotFound,
		Message: fmt.Sprintf("tool %q is not registered", toolName),
		Data:    map[string]any{"tool": toolName},
	}
}

func State(operation string, currentState string) *Error {
	return &Error{
		Code:    CodeState,
		Message: fmt.Sprintf("operation %q is not valid in the %s state", operation, currentState),
		Data:    map[string]any{"operation": operation, "state": currentState},
	}
}

// Bridge wraps a fault that occurred while calling the foreign interface.
// The operation name and the retryability hint are always carried.
//
// An error that is already a bridge error is returned unchanged: bridge
// errors are wrapped exactly once, at the foreign call site.
func Bridge(operation string, cause error, retryable bool) *Error {
	var existing *Error
	if errors.As(cause, &existing) && existing.Code == CodeBridge {
		return existing
	}
	return &Error{
		Code:      CodeBridge,
		Message:   fmt.Sprintf("foreign call %q failed", operation),
		Data:      map[string]any{"operation": operation, "retryable": retryable},
		Retryable: retryable,
		cause:     cause,
	}
}

func Timeout(operation string, limit time.Duration) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("foreign call %q did not complete within %s", operation, limit),
		Data:    map[string]any{"operation": operation, "timeoutMs": limit.Milliseconds()},
	}
}

func Unimplemented(operation string, reason string) *Error {
	return &Error{
		Code:    CodeUnimplemented,
		Message: fmt.Sprintf("%s is not supported: %s", operation, reason),
		Data:    map[string]any{"operation": operation},
	}
}

func Internal(cause error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		cause:   cause,
	}
}

// CodeOf returns the taxonomy code for err, or CodeInternal for errors that
// did not originate from this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func IsValidation(err error) bool {
	return is(err, CodeValidation) || is(err, CodeInvalidProcessType) || is(err, CodeInvalidConfiguration)
}

func IsNotFound(err error) bool      { return is(err, CodeNotFound) || is(err, CodeToolNotFound) }
func IsState(err error) bool         { return is(err, CodeState) }
func IsBridge(err error) bool        { return is(err, CodeBridge) }
func IsTimeout(err error) bool       { return is(err, CodeTimeout) }
func IsUnimplemented(err error) bool { return is(err, CodeUnimplemented) }
