package utils

import (
	"encoding/json"
	"net/http"

	"github.com/username/portfoliopulse/backend/src/logger"
)

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, payload any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

// SendJSONError writes a JSON error body with the given status code.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	SendJSON(w, map[string]string{"error": message}, statusCode)
}
