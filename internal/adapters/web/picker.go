package web

import (
	"net/http"

	"safety-map/internal/domain"
	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/usecase/views"
)

type submitLocationRequest struct {
	Location *pinRequest `json:"location"`
}

// pinRequest различает отсутствующую координату и ноль.
type pinRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

func (s *Server) handleGetPicker(w http.ResponseWriter, r *http.Request) {
	draft, err := s.life.Draft(r.Context(), httpinfra.SessionFromContext(r.Context()))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	if draft == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: views.MsgNoDraft, Code: "no_draft", Redirect: views.RouteStory})
		return
	}
	writeJSON(w, http.StatusOK, views.Picker(s.mapSettings, *draft))
}

func (s *Server) handleSubmitLocation(w http.ResponseWriter, r *http.Request) {
	var req submitLocationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Location == nil || req.Location.Lat == nil || req.Location.Lng == nil {
		writeError(w, http.StatusBadRequest, "no_location", views.MsgNoLocation)
		return
	}
	loc := domain.Location{Lat: *req.Location.Lat, Lng: *req.Location.Lng}
	story, err := s.life.AttachLocationAndEnqueue(r.Context(), httpinfra.SessionFromContext(r.Context()), loc)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, storyResponse{Story: story, Message: views.MsgSubmitted, Redirect: views.RouteStory})
}

func (s *Server) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.life.CancelDraft(r.Context(), httpinfra.SessionFromContext(r.Context())); err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: views.RouteStory})
}
