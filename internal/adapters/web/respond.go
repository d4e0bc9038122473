package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"safety-map/internal/domain"
	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/usecase/views"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httpinfra.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeLifecycleError переводит ошибку контроллера в HTTP-ответ.
func (s *Server) writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyStory):
		writeError(w, http.StatusBadRequest, "empty_story", views.MsgEmptyStory)
	case errors.Is(err, domain.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, "invalid_location", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNoDraft):
		writeJSON(w, http.StatusConflict, errorResponse{Error: views.MsgNoDraft, Code: "no_draft", Redirect: views.RouteStory})
	default:
		s.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("web: ошибка хранилища")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
