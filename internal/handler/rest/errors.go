package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/webitel/im-support-service/internal/domain/model"
)

type errorBody struct {
	Error string `json:"error"`
}

// StatusOf maps domain errors onto HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrAlreadyPaired),
		errors.Is(err, model.ErrRoomFull),
		errors.Is(err, model.ErrRoomClosed),
		errors.Is(err, model.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotInRoom):
		return http.StatusForbidden
	case errors.Is(err, model.ErrUnknownUser),
		errors.Is(err, model.ErrUnknownSession),
		errors.Is(err, model.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRoleMismatch),
		errors.Is(err, model.ErrSelfPair):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusOf(err), errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
