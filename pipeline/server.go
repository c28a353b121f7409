// ABOUTME: HTTP status server exposing run progress over a chi-routed JSON API.
// ABOUTME: Read-only view of the state store: summary counts, item listing, and per-item detail.

package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusServer serves a read-only JSON view of pipeline progress.
type StatusServer struct {
	store  *StateStore
	router chi.Router
}

// NewStatusServer builds the server around an open state store.
func NewStatusServer(store *StateStore) *StatusServer {
	s := &StatusServer{store: store}
	r := chi.NewRouter()
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/items", s.handleItems)
	r.Get("/api/items/{id}", s.handleItem)
	s.router = r
	return s
}

// ServeHTTP delegates to the chi router.
func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	counts := make(map[string]int, len(summary))
	total := 0
	for status, n := range summary {
		counts[string(status)] = n
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"counts": counts,
	})
}

func (s *StatusServer) handleItems(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAll()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		// An empty store serves a JSON array, not null.
		records = []*WorkItemRecord{}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *StatusServer) handleItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, found, err := s.store.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown item: " + id})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
