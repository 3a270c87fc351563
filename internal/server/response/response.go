// Package response writes catalog API responses. Successful calls return
// the resource itself as JSON. Failures return {"error": message}, except
// validation failures which return a map of field name to message.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/pkg/errors"
)

// InternalErrorMessage is the only detail clients see for unexpected failures.
const InternalErrorMessage = "Internal server error"

// Error is the body of non-validation failures.
type Error struct {
	Error string `json:"error"`
}

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes v with 200 status.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Created writes v with 201 status and a Location header.
func Created(w http.ResponseWriter, location string, v any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, http.StatusCreated, v)
}

// NoContent writes an empty 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail writes {"error": message} with the given status code.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Error{Error: message})
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, message)
}

// ValidationFailed writes a 400 response whose body maps each invalid field
// to its message.
func ValidationFailed(w http.ResponseWriter, verr *errors.ValidationError) {
	fields := verr.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	JSON(w, http.StatusBadRequest, fields)
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message string) {
	Fail(w, http.StatusUnauthorized, message)
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, message)
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, allowed string) {
	if allowed != "" {
		w.Header().Set("Allow", allowed)
	}
	Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// Conflict writes a 409 error response.
func Conflict(w http.ResponseWriter, message string) {
	Fail(w, http.StatusConflict, message)
}

// UnprocessableEntity writes a 422 error response.
func UnprocessableEntity(w http.ResponseWriter, message string) {
	Fail(w, http.StatusUnprocessableEntity, message)
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter) {
	Fail(w, http.StatusTooManyRequests, "Rate limit exceeded")
}

// InternalError writes a 500 response without exposing err.
func InternalError(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, InternalErrorMessage)
}

// ServiceUnavailable writes a 503 response with an arbitrary body.
func ServiceUnavailable(w http.ResponseWriter, v any) {
	JSON(w, http.StatusServiceUnavailable, v)
}

// ErrorFromType maps typed errors to HTTP responses. Unclassified errors
// are logged with their cause and reported as a generic 500.
func ErrorFromType(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	var (
		verr  *errors.ValidationError
		nferr *errors.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		ValidationFailed(w, verr)
	case errors.As(err, &nferr):
		NotFound(w, nferr.Error())
	default:
		if logger != nil {
			logger.Error().Err(err).Msg("Request failed")
		}
		InternalError(w)
	}
}
