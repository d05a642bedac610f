package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"governance-gateway/apperr"
)

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, errType, message string) {
	writeJSON(w, statusCode, map[string]any{
		"success": false,
		"error":   apiError{Type: errType, Message: message},
	})
}

// writeAppError traduz a categoria do erro para status e corpo.
func writeAppError(w http.ResponseWriter, err error) {
	t := apperr.Classify(err)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	writeError(w, apperr.HTTPStatus(t), string(t), msg)
}
