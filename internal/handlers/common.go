package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps typed errors to their status and hides everything else behind a 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error, fallback string) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.HTTPStatus() != http.StatusInternalServerError {
		msg := appErr.Message
		if appErr.Err != nil {
			msg = appErr.Err.Error()
		}
		writeJSON(w, appErr.HTTPStatus(), models.NewErrorResponse(msg))
		return
	}

	log.Error(fallback, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(fallback))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{ Validate() map[string]string }) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return false
	}
	if errs := dst.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return false
	}
	return true
}
