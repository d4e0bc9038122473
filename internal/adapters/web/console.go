package web

import (
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"safety-map/internal/usecase/views"
)

type moderationResponse struct {
	Changed bool              `json:"changed"`
	Console views.ConsoleView `json:"console"`
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	snap := s.life.Snapshot()
	writeJSON(w, http.StatusOK, views.Console(snap.Pending, snap.Approved))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, func(id int64) (bool, error) {
		_, ok, err := s.life.Approve(r.Context(), id)
		return ok, err
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, func(id int64) (bool, error) {
		return s.life.Reject(r.Context(), id)
	})
}

func (s *Server) handleDeleteApproved(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, func(id int64) (bool, error) {
		return s.life.DeleteApproved(r.Context(), id)
	})
}

// moderate выполняет действие над историей. Неизвестный id не ошибка: changed = false.
func (s *Server) moderate(w http.ResponseWriter, r *http.Request, action func(id int64) (bool, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid story id")
		return
	}
	changed, err := action(id)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	snap := s.life.Snapshot()
	writeJSON(w, http.StatusOK, moderationResponse{Changed: changed, Console: views.Console(snap.Pending, snap.Approved)})
}
