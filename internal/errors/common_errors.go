package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeAuth               ErrorType = "AUTH"
	ErrTypeExportTrigger      ErrorType = "EXPORT_TRIGGER"
	ErrTypeNoProgress         ErrorType = "NO_PROGRESS"
	ErrTypeDownloadTimeout    ErrorType = "DOWNLOAD_TIMEOUT"
	ErrTypeAttachmentNotFound ErrorType = "ATTACHMENT_NOT_FOUND"
	ErrTypeAcquisition        ErrorType = "ACQUISITION"
	ErrTypeNoCandidate        ErrorType = "NO_CANDIDATE"
	ErrTypeUnsupportedFormat  ErrorType = "UNSUPPORTED_FORMAT"
	ErrTypeParsing            ErrorType = "PARSING"
	ErrTypePublish            ErrorType = "PUBLISH"
	ErrTypeStorage            ErrorType = "STORAGE"
	ErrTypeValidation         ErrorType = "VALIDATION"
	ErrTypeConfig             ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the type of the outermost AppError in the chain, or "" when
// err carries none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether any AppError in err's tree has the given type.
// Joined errors are searched branch by branch.
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok && appErr.Type == errType {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsType(e, errType) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return IsType(u.Unwrap(), errType)
	}
	return false
}

// Helper functions for common error types

// NewAuthError creates a login/session error
func NewAuthError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAuth, message, cause)
}

// NewExportTriggerError creates an error for an export that could not be started
func NewExportTriggerError(message string, cause error) *AppError {
	return NewAppError(ErrTypeExportTrigger, message, cause)
}

// NewNoProgressError signals that a download never showed any sign of life
func NewNoProgressError(message string) *AppError {
	return NewAppError(ErrTypeNoProgress, message, nil)
}

// NewDownloadTimeoutError signals that a download was seen but never stabilized
func NewDownloadTimeoutError(message string) *AppError {
	return NewAppError(ErrTypeDownloadTimeout, message, nil)
}

// NewAttachmentNotFoundError signals that no attachment response was captured
func NewAttachmentNotFoundError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAttachmentNotFound, message, cause)
}

// NewAcquisitionError wraps the exhausted fallback chain
func NewAcquisitionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAcquisition, message, cause)
}

// NewNoCandidateError is returned when no exported file is left to load
func NewNoCandidateError(dir string) *AppError {
	return NewAppError(ErrTypeNoCandidate, "no candidate file in download directory", nil).
		WithContext("dir", dir)
}

// NewUnsupportedFormatError creates an error for an unknown file extension
func NewUnsupportedFormatError(ext string) *AppError {
	return NewAppError(ErrTypeUnsupportedFormat, fmt.Sprintf("unsupported file format %q", ext), nil).
		WithContext("extension", ext)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewPublishError creates a warehouse write error
func NewPublishError(message string, cause error) *AppError {
	return NewAppError(ErrTypePublish, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
