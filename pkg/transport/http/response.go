package httptransport

import (
	"encoding/json"
	"net/http"

	cerrors "github.com/porthorian/cityauthz/pkg/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    cerrors.Code `json:"code"`
	Message string       `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code cerrors.Code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// failureStatus is 503 for coded backend failures and 500 for anything untyped.
func failureStatus(err error) int {
	if cerrors.IsInternalCode(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
