package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeValidation    ErrCode = "VALIDATION_FAILED"
	ErrCodeConfiguration ErrCode = "CONFIGURATION_ERROR"
	ErrCodeRemote        ErrCode = "REMOTE_OPERATION_FAILED"
	ErrCodeUnexpected    ErrCode = "UNEXPECTED_ERROR"
	ErrCodeNotFound      ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrCode = "UNAUTHORIZED"
	ErrCodeInternal      ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest    ErrCode = "BAD_REQUEST"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates an error for a request that failed a validation rule.
// The message is reported verbatim in batch error entries.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewRemoteError wraps a failed call to the repository manager or the policy server.
func NewRemoteError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRemote,
		Message: message,
		Err:     err,
	}
}

// NewUnexpectedError creates a new unexpected error
func NewUnexpectedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeUnexpected,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeUnexpected.
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeUnexpected
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}
