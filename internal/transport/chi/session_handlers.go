package chi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
)

type sessionCtxKey struct{}

// sessionLogger resolves {sid} once per request and tags the request logger.
func (s *Server) sessionLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(chi.URLParam(r, "sid"))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		ctx := logpkg.With(r.Context(), zap.String("session_id", sess.ID))
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *Session {
	return r.Context().Value(sessionCtxKey{}).(*Session)
}

func writeSession(w http.ResponseWriter, status int, sess *Session) {
	writeJSON(w, status, sessionResponse{
		ID:          sess.ID,
		CreatedAt:   sess.CreatedAt,
		State:       sess.Machine.State(),
		PointClouds: sess.PointClouds(),
	})
}

// CreateSession handles POST /v1/sessions.
func (s *Server) CreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	w.Header().Set("Location", "/v1/sessions/"+sess.ID)
	writeSession(w, http.StatusCreated, sess)
}

// GetSession handles GET /v1/sessions/{sid}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	writeSession(w, http.StatusOK, sessionFrom(r))
}

// DeleteSession handles DELETE /v1/sessions/{sid}. Loaded point clouds are released.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(sessionFrom(r).ID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionEvents handles GET /v1/sessions/{sid}/events?after=seq.
func (s *Server) SessionEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	events, next := sessionFrom(r).EventsAfter(after)
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Next: next})
}

// SessionSearch handles POST /v1/sessions/{sid}/search with {"bbox": [w,s,e,n]}.
// Search failures are reported in the returned state, not as an HTTP error.
func (s *Server) SessionSearch(w http.ResponseWriter, r *http.Request) {
	var req sessionSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BBox == nil {
		writeError(w, http.StatusBadRequest, codeInvalidBBox, "bbox is required")
		return
	}
	sess := sessionFrom(r)
	if _, err := sess.Machine.SearchByBox(r.Context(), *req.BBox); err != nil {
		logpkg.FromContext(r.Context()).Warn("Session search failed", zap.Error(err))
	}
	writeSession(w, http.StatusOK, sess)
}

// SessionClearResults handles DELETE /v1/sessions/{sid}/results.
func (s *Server) SessionClearResults(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.ClearResults()
	writeSession(w, http.StatusOK, sess)
}

// SessionDraw handles POST /v1/sessions/{sid}/draw/{action} where action is
// start, begin, update, finish or stop. begin, update and finish take {"lng","lat"}.
func (s *Server) SessionDraw(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	m := sess.Machine

	action := chi.URLParam(r, "action")
	switch action {
	case "start":
		m.StartDrawing()
		writeSession(w, http.StatusOK, sess)
		return
	case "stop":
		m.StopDrawing()
		writeSession(w, http.StatusOK, sess)
		return
	case "begin", "update", "finish":
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "unknown draw action "+strconv.Quote(action))
		return
	}

	var req drawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := req.point()
	if !ok || !geo.ValidateCoordinates(p.Lat, p.Lng) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "lng and lat must be valid coordinates")
		return
	}

	var err error
	switch action {
	case "begin":
		err = m.BeginDrag(p)
	case "update":
		err = m.UpdateDrag(p)
	case "finish":
		box, committed, ferr := m.FinishDrawing(r.Context(), p)
		if ferr != nil && !committed {
			s.handleDomainError(w, r, ferr)
			return
		}
		if ferr != nil {
			logpkg.FromContext(r.Context()).Warn("Search over drawn box failed", zap.Error(ferr))
		}
		resp := drawResponse{Committed: committed, State: m.State()}
		if committed {
			resp.BBox = &box
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, sess)
}

// SessionSelect handles PUT /v1/sessions/{sid}/selection/{id}.
func (s *Server) SessionSelect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.Select(chi.URLParam(r, "id"))
	writeSession(w, http.StatusOK, sess)
}

// SessionDeselect handles DELETE /v1/sessions/{sid}/selection/{id}.
func (s *Server) SessionDeselect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.Deselect(chi.URLParam(r, "id"))
	writeSession(w, http.StatusOK, sess)
}

// SessionToggle handles POST /v1/sessions/{sid}/selection/{id}.
func (s *Server) SessionToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.ToggleSelection(chi.URLParam(r, "id"))
	writeSession(w, http.StatusOK, sess)
}

// SessionSelectAll handles PUT /v1/sessions/{sid}/selection.
func (s *Server) SessionSelectAll(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.SelectAll()
	writeSession(w, http.StatusOK, sess)
}

// SessionClearSelection handles DELETE /v1/sessions/{sid}/selection.
func (s *Server) SessionClearSelection(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Machine.ClearSelection()
	writeSession(w, http.StatusOK, sess)
}

// SessionLoadSelected handles POST /v1/sessions/{sid}/load.
func (s *Server) SessionLoadSelected(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).Machine.LoadSelected(r.Context()))
}

// SessionLoadItem handles POST /v1/sessions/{sid}/items/{id}/load. The item
// does not need to be part of the session's current results.
func (s *Server) SessionLoadItem(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	rec, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if _, err := sess.Machine.LoadItem(r.Context(), rec); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, sess)
}

// SessionUnloadItem handles DELETE /v1/sessions/{sid}/items/{id}. A loader
// failure is logged; the item is dropped from the session either way.
func (s *Server) SessionUnloadItem(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	err := sess.Machine.UnloadItem(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		s.handleDomainError(w, r, err)
		return
	}
	if err != nil {
		logpkg.FromContext(r.Context()).Warn("Unload reported an error", zap.Error(err))
	}
	writeSession(w, http.StatusOK, sess)
}

// SessionUnloadAll handles DELETE /v1/sessions/{sid}/items.
func (s *Server) SessionUnloadAll(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Machine.UnloadAll(r.Context()); err != nil {
		logpkg.FromContext(r.Context()).Warn("Unload all reported an error", zap.Error(err))
	}
	writeSession(w, http.StatusOK, sess)
}
