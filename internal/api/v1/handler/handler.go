package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/apperr"
	"app/internal/middleware"
)

func actingUser(r *http.Request) string { return middleware.UserID(r.Context()) }

func isAdmin(r *http.Request) bool { return middleware.IsAdmin(r.Context()) }

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict:
		return http.StatusConflict
	case apperr.KindInsufficientCredit:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError sends the error's Spanish user-facing message with the mapped
// status. Untyped errors collapse to a generic 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(err))
	json.NewEncoder(w).Encode(errorResponse{Error: apperr.MessageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireAdmin returns false and writes a 403 when the acting user is not
// an admin.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !isAdmin(r) {
		writeError(w, apperr.New(apperr.KindAuthorization, "se requiere rol de administrador"))
		return false
	}
	return true
}
