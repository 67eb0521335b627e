package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so every layer maps them the same way.
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindValidation             Kind = "VALIDATION_ERROR"
	KindInvalidTransition      Kind = "INVALID_TRANSITION"
	KindPromotionExpired       Kind = "PROMOTION_EXPIRED"
	KindOverflow               Kind = "OVERFLOW"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindForbidden              Kind = "FORBIDDEN"
	KindInternal               Kind = "INTERNAL"
)

// HTTPStatus returns the response status used for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindOverflow:
		return http.StatusBadRequest
	case KindInvalidTransition, KindConcurrentModification:
		return http.StatusConflict
	case KindPromotionExpired:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Kind       Kind
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Kind: Kind(code), Message: message, HTTPStatus: status, Err: err}
}

// Errorf builds an AppError of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Code: string(kind), Kind: kind, Message: fmt.Sprintf(format, args...), HTTPStatus: kind.HTTPStatus()}
}

// Wrap attaches a kind and caller-facing message to err.
func Wrap(kind Kind, err error, message string) *AppError {
	return &AppError{Code: string(kind), Kind: kind, Message: message, HTTPStatus: kind.HTTPStatus(), Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var target *AppError
	if errors.As(err, &target) && target.Kind != "" {
		return target.Kind
	}
	return KindInternal
}
