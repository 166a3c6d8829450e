package chi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

// SearchItems handles GET /v1/items?bbox=west,south,east,north&limit=n.
// A missing bbox searches the whole world.
func (s *Server) SearchItems(w http.ResponseWriter, r *http.Request) {
	box := geo.World
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		parsed, err := geo.Parse(raw)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		box = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	res, err := s.engine.Search(r.Context(), box, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToDTO(box.Clamp(), res))
}

// GetItem handles GET /v1/items/{id}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetItemDataURL handles GET /v1/items/{id}/data-url.
func (s *Server) GetItemDataURL(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	url, err := s.engine.ResolveDataURL(rec)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataURLResponse{ID: rec.ID(), DataURL: url})
}

// CatalogStats handles GET /v1/catalog/stats. It never triggers an index load.
func (s *Server) CatalogStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsToDTO(s.engine.Stats()))
}

// ClearCatalogCache handles DELETE /v1/catalog/cache. The index reloads on the next request.
func (s *Server) ClearCatalogCache(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear(r.Context())
	s.engine.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}
