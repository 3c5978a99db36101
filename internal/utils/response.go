package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"eventhub/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, errorKind string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     errorKind,
		Timestamp: time.Now(),
	}
}

// WriteJSON writes the success envelope with the given status.
func WriteJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse(message, data))
}

// WriteError maps a taxonomy error onto an HTTP status and writes the error
// envelope. Non-taxonomy errors surface as an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	message := "internal server error"
	var e *apperr.Error
	if errors.As(err, &e) {
		message = e.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse(message, kind.String()))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidState, apperr.KindExpired, apperr.KindAlreadyUsed,
		apperr.KindInvalidToken, apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
