package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the result shape every endpoint responds with.
type Envelope struct {
	StatusCode int        `json:"statusCode"`
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	Data       any        `json:"data,omitempty"`
	Error      *ErrorBody `json:"error,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Respond writes a successful envelope.
func Respond(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{StatusCode: status, Success: true, Message: message, Data: data})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{
		StatusCode: status,
		Message:    message,
		Error:      &ErrorBody{Code: code, Details: details},
	})
}

// WriteError maps err onto the envelope. Errors that are not AppErrors are
// reported as a generic internal failure.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = appErr.Kind.HTTPStatus()
		}
		code := appErr.Code
		if code == "" {
			code = string(appErr.Kind)
		}
		JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, string(KindInternal), "internal server error", nil)
}
