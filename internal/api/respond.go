package api

import (
	"encoding/json"
	"net/http"

	"github.com/nimbusworks/artforge/pkg/genapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail mirrors the {"detail": "..."} error envelope of the API.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeValidationErrors emits the structured per-field failure list as a 422.
func writeValidationErrors(w http.ResponseWriter, details []genapi.ValidationDetail) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": details})
}

func fieldError(field, msg, errType string) genapi.ValidationDetail {
	return genapi.ValidationDetail{
		Location: []string{"body", field},
		Message:  msg,
		Type:     errType,
	}
}
