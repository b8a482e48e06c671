package handler

import (
	"encoding/json"
	"net/http"
)

// Stable string codes surfaced to the client alongside HTTP status.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNoPlan        = "NO_PLAN"
	CodeLimitExceeded = "LIMIT_EXCEEDED"
	CodeBadImage      = "BAD_IMAGE"
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeRateLimited   = "RATE_LIMITED"
	CodeVisionFailed  = "VISION_FAILED"
	CodeInternal      = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteError writes the JSON error envelope {"error":{"code","message"}}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
