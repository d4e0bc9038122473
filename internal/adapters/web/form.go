package web

import (
	"net/http"

	"safety-map/internal/domain"
	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/usecase/views"
)

type createStoryRequest struct {
	Text string `json:"text"`
}

type storyResponse struct {
	Story    domain.Story `json:"story"`
	Message  string       `json:"message,omitempty"`
	Redirect string       `json:"redirect"`
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	story, err := s.life.CreateDraft(r.Context(), httpinfra.SessionFromContext(r.Context()), req.Text)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, storyResponse{Story: story, Redirect: views.RoutePinSafetyMap})
}
