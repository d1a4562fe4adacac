// Package errors provides structured error types for pumlbook.
//
// Every failure that can happen while processing a single diagram is mapped
// to a machine-readable [Code] so that callers can tell render failures from
// resolution failures without string matching:
//
//   - RENDER_FAILED, ARTIFACT_MISSING: the external renderer failed, or it
//     succeeded but left no artifact where one was expected
//   - FILE_NOT_FOUND, DEPTH_EXCEEDED: a directive could not be resolved
//   - INVALID_PATH: a directive path cannot name a file
//   - INVALID_INPUT, INVALID_FORMAT, OUTPUT_DIR, INTERNAL_ERROR: everything else
//
// Per-diagram errors never abort a document. They are logged together with
// their cause chain (see [Causes]) and the diagram markup is left untouched.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPath, "include path %q has no file name", p)
//	if errors.Is(err, errors.ErrCodeInvalidPath) {
//	    // ...
//	}
//
//	err = errors.Wrap(errors.ErrCodeRender, cause, "plantuml exited with %d", code)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Render errors
	ErrCodeRender          Code = "RENDER_FAILED"
	ErrCodeArtifactMissing Code = "ARTIFACT_MISSING"

	// Resolution errors
	ErrCodeFileNotFound  Code = "FILE_NOT_FOUND"
	ErrCodeDepthExceeded Code = "DEPTH_EXCEEDED"

	// Environment errors
	ErrCodeOutputDir Code = "OUTPUT_DIR"
	ErrCodeInternal  Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error chain holds no *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Causes returns the errors wrapped by err, outermost first, excluding err
// itself. Joined errors contribute all of their members.
func Causes(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				out = append(out, next)
				walk(next)
			}
		case interface{ Unwrap() []error }:
			for _, next := range u.Unwrap() {
				if next == nil {
					continue
				}
				out = append(out, next)
				walk(next)
			}
		}
	}
	if err != nil {
		walk(err)
	}
	return out
}
