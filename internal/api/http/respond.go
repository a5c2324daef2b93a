// Package apihttp carries the JSON plumbing shared by all feature
// handlers.
package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"freight-cloud/internal/apperror"
)

// RespondJSON writes v as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError maps an error to its HTTP status. Operational errors are
// returned with their message; anything else is logged in full and
// answered with a generic 500.
func RespondError(w http.ResponseWriter, logger *log.Logger, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && apperror.IsOperational(err) {
		RespondJSON(w, apperror.HTTPStatus(err), map[string]string{
			"status":  "error",
			"message": appErr.Message,
		})
		return
	}
	if logger != nil {
		logger.Printf("internal error: %v", err)
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"status":  "error",
		"message": "internal server error",
	})
}

// DecodeJSON reads the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, "read body error", err)
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, "invalid json", err)
	}
	return nil
}
