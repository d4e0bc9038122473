package web

import (
	"net/http"

	"safety-map/internal/usecase/views"
)

func (s *Server) handleSafetyMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, views.SafetyMap(s.mapSettings, s.life.Snapshot().Approved))
}
