package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/kitchenwatch/internal/store"
)

// DefaultEpisodeLimit caps listings when no limit is given.
const DefaultEpisodeLimit = 50

// EpisodeHandler handles HTTP requests for alert episode resources.
type EpisodeHandler struct {
	store *store.Store
}

// NewEpisodeHandler creates a new EpisodeHandler with the given store.
func NewEpisodeHandler(s *store.Store) *EpisodeHandler {
	return &EpisodeHandler{store: s}
}

// ServeHTTP routes /api/episodes and /api/episodes/{id}.
func (h *EpisodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/episodes")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type listEpisodesResponse struct {
	Episodes []*store.Episode `json:"episodes"`
}

type episodeResponse struct {
	*store.Episode
	Events []store.Event `json:"events"`
}

// list handles GET /api/episodes?limit=N, newest first.
func (h *EpisodeHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEpisodeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	episodes, err := h.store.Episodes().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list episodes")
		return
	}
	if episodes == nil {
		episodes = []*store.Episode{}
	}

	writeJSON(w, http.StatusOK, listEpisodesResponse{Episodes: episodes})
}

// get handles GET /api/episodes/{id} and includes the episode's events.
func (h *EpisodeHandler) get(w http.ResponseWriter, id string) {
	episode, err := h.store.Episodes().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Episode not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get episode")
		return
	}

	events, err := h.store.Episodes().Events(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get episode events")
		return
	}
	if events == nil {
		events = []store.Event{}
	}

	writeJSON(w, http.StatusOK, episodeResponse{Episode: episode, Events: events})
}

// delete handles DELETE /api/episodes/{id}.
func (h *EpisodeHandler) delete(w http.ResponseWriter, id string) {
	err := h.store.Episodes().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Episode not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete episode")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
