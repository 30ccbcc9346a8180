package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes {"error": message, "code": code}, the same envelope
// the httpapi handlers use.
func writeJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{
		Error: message,
		Code:  code,
	})
}
