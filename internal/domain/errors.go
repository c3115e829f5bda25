package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
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

// Is matches any AppError carrying the same code, so errors produced by
// WithError still satisfy errors.Is against the sentinel.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	// Engine errors

	ErrBackendUnavailable = &AppError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "Face detection or embedding backend is unavailable",
		StatusCode: 503,
	}

	ErrEmbeddingFailure = &AppError{
		Code:       "EMBEDDING_FAILURE",
		Message:    "Embedding backend failed to produce a vector",
		StatusCode: 502,
	}

	ErrGalleryIO = &AppError{
		Code:       "GALLERY_IO_ERROR",
		Message:    "Gallery persistence failed",
		StatusCode: 500,
	}

	ErrEnrollmentInsufficientSamples = &AppError{
		Code:       "ENROLLMENT_INSUFFICIENT_SAMPLES",
		Message:    "No sample produced a usable face embedding",
		StatusCode: 422,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not enrolled",
		StatusCode: 404,
	}

	ErrInvalidTemplate = &AppError{
		Code:       "INVALID_TEMPLATE",
		Message:    "Template must be a finite, non-zero vector",
		StatusCode: 422,
	}

	ErrInvalidIdentityKey = &AppError{
		Code:       "INVALID_IDENTITY_KEY",
		Message:    "Identity key must not be empty",
		StatusCode: 422,
	}
)
