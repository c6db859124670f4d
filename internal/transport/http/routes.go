package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// Register mounts the gateway and read endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /rooms/{roomID}", h.ServeRoom)
}

// ServeRoom returns the display projection of a room.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("roomID"), domain.RoleDisplay)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			log.Error().Err(err).Str("room_id", r.PathValue("roomID")).Msg("load room snapshot")
		}
		writeJSON(w, status, errorPayload{Message: http.StatusText(status), Code: domain.KindOf(err)})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
