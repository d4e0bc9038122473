package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/usecase/stories"
)

const eventSnapshot = "snapshot"

// handleEvents отдаёт изменения хранилища потоком Server-Sent Events.
// Первое событие — текущий снимок; изменения черновика уходят только его сессии,
// а pending и изменения только pending видят только модераторы.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}
	session := httpinfra.SessionFromContext(r.Context())
	claims, _ := httpinfra.ClaimsFromContext(r.Context())
	admin := claims != nil && claims.Role == s.adminRole

	changes, unsubscribe := s.life.Subscribe(s.feedBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial := stories.Change{Snapshot: s.life.Snapshot()}
	if draft, err := s.life.Draft(r.Context(), session); err == nil && draft != nil {
		initial.Draft = draft
	}
	if err := writeChange(w, eventSnapshot, initial, admin); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			if !change.VisibleTo(session) || (!admin && change.Kind.PendingOnly()) {
				continue
			}
			if err := writeChange(w, string(change.Kind), change, admin); err != nil {
				s.log.Debug().Err(err).Msg("web: клиент потока отключился")
				return
			}
			flusher.Flush()
		}
	}
}

func writeChange(w http.ResponseWriter, event string, change stories.Change, admin bool) error {
	if !admin {
		change.Snapshot.Pending = nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
