package utils

import (
	"encoding/json"
	"net/http"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	// WireCode is the stable, machine-readable error taxonomy code
	// (e.g. "ROOM_NOT_FOUND"), distinct from the numeric HTTP Code.
	WireCode string `json:"wire_code,omitempty"`
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// RespondAppError maps an apperrors.Error onto the HTTP status its Kind
// carries and writes it with the wire code the API layer's clients key
// error handling off of.
func RespondAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := appErr.Kind.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:    http.StatusText(status),
		Message:  appErr.Error(),
		Code:     status,
		WireCode: string(appErr.Kind),
	})
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}
