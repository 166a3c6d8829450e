package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/metrics"
	cataloguc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/catalog"
	healthuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/health"
	interactionuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/interaction"
	searchuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/search"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeInvalidBBox      = "invalid_bbox"
	codeNotFound         = "not_found"
	codeSessionNotFound  = "session_not_found"
	codeCatalogFetch     = "catalog_unavailable"
	codeItemFetch        = "item_fetch_failed"
	codeMissingAsset     = "missing_asset"
	codeInvalidState     = "invalid_state"
	codePointCloudLoad   = "point_cloud_load_failed"
	codeRebuildRunning   = "rebuild_in_progress"
	codeUnauthorized     = "unauthorized"
	codeInternal         = "internal_error"
	maxRequestBodyBytes  = 1 << 20
	sessionEventCapacity = 100
)

// Rebuilder refreshes the catalog from the remote source.
type Rebuilder interface {
	Rebuild(ctx context.Context, onProgress cataloguc.ProgressFunc) ([]record.Record, error)
}

// CacheClearer drops the persisted catalog.
type CacheClearer interface {
	Clear(ctx context.Context)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the catalog search and interaction session API.
type Server struct {
	engine    *searchuc.Engine
	rebuilder Rebuilder
	cache     CacheClearer
	health    *healthuc.Service
	sessions  *Sessions
	logger    *zap.Logger

	apiKeys       []string
	rebuilds      *rebuildJob
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	engine *searchuc.Engine,
	rebuilder Rebuilder,
	cache CacheClearer,
	health *healthuc.Service,
	sessions *Sessions,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:    engine,
		rebuilder: rebuilder,
		cache:     cache,
		health:    health,
		sessions:  sessions,
		logger:    logger,
		rebuilds:  newRebuildJob(),
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrInvalidBBox, http.StatusBadRequest, codeInvalidBBox),
		sentinelHandler(domain.ErrMissingAsset, http.StatusUnprocessableEntity, codeMissingAsset),
		sentinelHandler(domain.ErrPointCloudLoad, http.StatusBadGateway, codePointCloudLoad),
		sentinelHandler(domain.ErrCatalogFetch, http.StatusBadGateway, codeCatalogFetch),
		sentinelHandler(domain.ErrItemFetch, http.StatusBadGateway, codeItemFetch),
		sentinelHandler(interactionuc.ErrNotDrawing, http.StatusConflict, codeInvalidState),
		sentinelHandler(interactionuc.ErrNoDrag, http.StatusConflict, codeInvalidState),
	}
	return s
}

// WithAPIKeys protects the catalog administration routes with Bearer tokens.
func (s *Server) WithAPIKeys(keys []string) *Server {
	s.apiKeys = keys
	return s
}

// Routes builds the chi router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/items", s.SearchItems)
		r.Get("/items/{id}", s.GetItem)
		r.Get("/items/{id}/data-url", s.GetItemDataURL)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/stats", s.CatalogStats)
			r.Get("/rebuild", s.RebuildStatus)
			r.Group(func(r chi.Router) {
				r.Use(BearerAuthMiddleware(s.apiKeys))
				r.Post("/rebuild", s.RebuildCatalog)
				r.Delete("/cache", s.ClearCatalogCache)
			})
		})

		r.Post("/sessions", s.CreateSession)
		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Use(s.sessionLogger)
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/events", s.SessionEvents)

			r.Post("/search", s.SessionSearch)
			r.Delete("/results", s.SessionClearResults)
			r.Post("/draw/{action}", s.SessionDraw)

			r.Put("/selection", s.SessionSelectAll)
			r.Delete("/selection", s.SessionClearSelection)
			r.Put("/selection/{id}", s.SessionSelect)
			r.Delete("/selection/{id}", s.SessionDeselect)
			r.Post("/selection/{id}", s.SessionToggle)

			r.Post("/load", s.SessionLoadSelected)
			r.Post("/items/{id}/load", s.SessionLoadItem)
			r.Delete("/items/{id}", s.SessionUnloadItem)
			r.Delete("/items", s.SessionUnloadAll)
		})
	})
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:   string(report.Status),
		Checks:   checks,
		Index:    statsToDTO(s.engine.Stats()),
		Sessions: s.sessions.Len(),
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("request canceled", zap.Error(err))
		writeError(w, 499, codeBadRequest, "request canceled")
		return
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees the sentinel text only; wrapped detail stays in the logs.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// decodeBody reads a JSON request body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
