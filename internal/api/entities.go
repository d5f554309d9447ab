package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/c4bridge/internal/entity"
)

// EntityResponse is an entity with its current state.
type EntityResponse struct {
	entity.Metadata
	Available bool           `json:"available"`
	State     map[string]any `json:"state"`
}

// EntityListResponse wraps the entity inventory.
type EntityListResponse struct {
	Entities []EntityResponse `json:"entities"`
	Count    int              `json:"count"`
	ByType   map[string]int   `json:"by_type"`
}

func entityResponse(e entity.Entity) EntityResponse {
	return EntityResponse{
		Metadata:  e.Metadata(),
		Available: e.Available(),
		State:     e.State(),
	}
}

// handleListEntities returns the full inventory with live state.
// Supports ?type=light style filtering.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	registry := s.bridge.Registry()
	typeFilter := r.URL.Query().Get("type")

	entities := make([]EntityResponse, 0, registry.Len())
	for _, e := range registry.All() {
		if typeFilter != "" && e.Type() != typeFilter {
			continue
		}
		entities = append(entities, entityResponse(e))
	}

	writeJSON(w, http.StatusOK, EntityListResponse{
		Entities: entities,
		Count:    len(entities),
		ByType:   registry.CountByType(),
	})
}

// handleGetEntity returns a single entity by bus address.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	e, ok := s.bridge.Registry().ByAddress(address)
	if !ok {
		writeNotFound(w, "no entity at address "+address)
		return
	}

	writeJSON(w, http.StatusOK, entityResponse(e))
}

// handleEntityBindings proxies the Director's binding detail for an entity's
// item.
func (s *Server) handleEntityBindings(w http.ResponseWriter, r *http.Request) {
	s.proxyItemDetail(w, r, func(ctx context.Context, itemID int) (json.RawMessage, error) {
		return s.director.GetItemBindings(ctx, itemID)
	})
}

// handleEntityNetwork proxies the Director's network detail for an entity's
// item.
func (s *Server) handleEntityNetwork(w http.ResponseWriter, r *http.Request) {
	s.proxyItemDetail(w, r, func(ctx context.Context, itemID int) (json.RawMessage, error) {
		return s.director.GetItemNetwork(ctx, itemID)
	})
}

func (s *Server) proxyItemDetail(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int) (json.RawMessage, error)) {
	address := chi.URLParam(r, "address")

	e, ok := s.bridge.Registry().ByAddress(address)
	if !ok {
		writeNotFound(w, "no entity at address "+address)
		return
	}
	if s.director == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUpstream, "director not available")
		return
	}

	detail, err := fetch(r.Context(), e.ID())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(detail)
}
