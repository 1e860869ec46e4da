package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteEnvelope writes the storefront's {"message", "data"} response shape.
func WriteEnvelope(w http.ResponseWriter, code int, message string, data any) {
	WriteJSON(w, code, map[string]any{
		"message": message,
		"data":    data,
	})
}

// WriteDetail writes the storefront's {"detail"} error shape.
func WriteDetail(w http.ResponseWriter, code int, detail string) {
	WriteJSON(w, code, map[string]string{"detail": detail})
}
