package api

import (
	"net/http"

	"github.com/nerrad567/c4bridge/internal/director"
)

// ItemListResponse wraps the persisted Director item snapshot.
type ItemListResponse struct {
	Items []director.Item `json:"items"`
	Count int             `json:"count"`
}

// handleListItems returns the item snapshot from the database, the last
// known inventory even when the Director is down. Supports
// ?category=lights style filtering on the snapshot categories.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUpstream, "item store not available")
		return
	}

	items, err := s.items.LoadItems(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []director.Item{}
	}

	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Count: len(items)})
}
