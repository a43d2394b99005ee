package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// QueuePublisher defines the interface for publishing messages to a queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// ErrorResponse is the error response returned to API clients.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// AcceptedResponse is returned when a submission has been queued.
type AcceptedResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// readJSONBody reads a size-capped request body and unmarshals it into dst.
// It writes the error response itself and returns false when the request
// cannot be used.
func readJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	bodyReader := http.MaxBytesReader(w, r.Body, maxBytes)
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes), nil)
			return false
		}
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request",
			"Failed to read request body", nil)
		return false
	}

	if unmarshalErr := json.Unmarshal(body, dst); unmarshalErr != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_json",
			"Failed to parse JSON request body",
			map[string]string{"parse_error": unmarshalErr.Error()})
		return false
	}
	return true
}

// writeValidationError writes a 400 for a failed field validation.
func writeValidationError(w http.ResponseWriter, verr *ValidationError) {
	writeErrorResponse(w, http.StatusBadRequest, "validation_error",
		verr.Error(), map[string]string{"field": verr.Field})
}

// writeSuccessResponse writes a success JSON response.
func writeSuccessResponse(w http.ResponseWriter, statusCode int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorResponse writes an error JSON response.
func writeErrorResponse(
	w http.ResponseWriter,
	statusCode int,
	errorCode, message string,
	details map[string]string,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}
