// Package apperrors provides coded errors shared by lgrbus packages.
package apperrors

import (
	"errors"
	"fmt"
)

// Error codes in CATEGORY.SPECIFIC form, so `grep "CONFIG\."` finds every
// configuration failure.
const (
	// CONFIG: programmer errors surfaced synchronously at setup.
	ErrConfigLoad            = "CONFIG.LOAD_FAILED"
	ErrConfigValidate        = "CONFIG.VALIDATION_FAILED"
	ErrConfigDuplicateWriter = "CONFIG.DUPLICATE_WRITER"
	ErrConfigInvalidLevel    = "CONFIG.INVALID_LEVEL"
	ErrConfigInvalidLocation = "CONFIG.INVALID_LOCATION"
	ErrConfigInvalidFilename = "CONFIG.INVALID_FILENAME"
	ErrConfigNegativeSkip    = "CONFIG.NEGATIVE_SKIP"

	// LEVEL: resolution failures.
	ErrLevelUnresolved = "LEVEL.UNRESOLVED"

	// SERDE: event encoding.
	ErrSerdeEncode = "SERDE.ENCODE_FAILED"
	ErrSerdeDecode = "SERDE.DECODE_FAILED"

	// BUS: delivery state.
	ErrBusShutDown = "BUS.SHUT_DOWN"

	// WRITER / TRANSPORT: destination I/O.
	ErrWriterIO       = "WRITER.IO_FAILED"
	ErrTransportSend  = "TRANSPORT.SEND_FAILED"
	ErrTransportClose = "TRANSPORT.CLOSED"
)

// AppError is a coded error with an optional wrapped cause.
//
// Two AppErrors match with errors.Is when their codes are equal, so exported
// sentinels built from a code match any error created later with that code.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code == e.Code
}

// NewAppError creates an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates an AppError without cause and with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AppError around cause. A nil cause yields nil.
func Wrap(code, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return NewAppError(code, message, cause)
}

// Code returns the code of the first AppError in err's chain, or "".
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
