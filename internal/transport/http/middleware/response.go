package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeJSONError writes a failure response in the API's uniform envelope.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
