package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"atlas-overwatch/api/middleware"
	"atlas-overwatch/api/services"
	"atlas-overwatch/db"
	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/services/atlas"
	"atlas-overwatch/pkg/services/remote"
	"atlas-overwatch/pkg/shared"

	"github.com/go-chi/chi/v5"
)

// HealthChecker is any dependency that can report its own health.
type HealthChecker interface {
	HealthCheck() error
}

type Handlers struct {
	featureService *services.FeatureService
	missionService *services.MissionService
	archiveService *services.ArchiveService

	engine  *atlas.Atlas
	dbSvc   *db.Service
	bus     HealthChecker
	version string
	started time.Time
}

// NewHandlers wires the HTTP surface. dbSvc and bus may be nil when the
// corresponding component is disabled.
func NewHandlers(engine *atlas.Atlas, dbSvc *db.Service, bus HealthChecker, version string) *Handlers {
	var archive *db.Archive
	if dbSvc != nil {
		archive = db.NewArchive(dbSvc)
	}
	return &Handlers{
		featureService: services.NewFeatureService(engine),
		missionService: services.NewMissionService(engine, archive),
		archiveService: services.NewArchiveService(archive),
		engine:         engine,
		dbSvc:          dbSvc,
		bus:            bus,
		version:        version,
		started:        time.Now(),
	}
}

// Routes builds the router. Everything under /api/v1 requires the bearer token.
func (h *Handlers) Routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(token))

		r.Get("/profile", h.GetProfile)

		r.Route("/features", func(r chi.Router) {
			r.Get("/", h.GetCollection)
			r.Post("/", h.CreateFeature)
			r.Post("/filter", h.FilterFeatures)
			r.Post("/filter/remove", h.FilterRemove)
			r.Post("/touching", h.TouchingFeatures)
			r.Post("/clear", h.ClearFeatures)
			r.Get("/{id}", h.GetFeature)
			r.Delete("/{id}", h.DeleteFeature)
			r.Post("/{id}/hide", h.HideFeature)
			r.Post("/{id}/unhide", h.UnhideFeature)
		})

		r.Get("/paths", h.ListPaths)
		r.Get("/paths/features", h.PathFeatures)
		r.Delete("/paths", h.RemovePath)
		r.Get("/groups", h.ListGroups)
		r.Get("/contacts", h.ListContacts)
		r.Get("/markers", h.ListMarkers)
		r.Get("/markers/{type}/features", h.MarkerFeatures)
		r.Get("/snapping", h.Snapping)

		r.Route("/missions", func(r chi.Router) {
			r.Get("/", h.ListMissions)
			r.Put("/active", h.SetActiveMission)
			r.Post("/{guid}", h.LoadMission)
			r.Delete("/{guid}", h.DeleteMission)
			r.Get("/{guid}/collection", h.MissionCollection)
			r.Get("/{guid}/bounds", h.MissionBounds)
			r.Get("/{guid}/logs", h.MissionLogs)
		})

		r.Get("/archive", h.GetArchive)
	})

	return r
}

// Feature handlers
func (h *Handlers) GetCollection(w http.ResponseWriter, r *http.Request) {
	fc, err := h.featureService.Collection(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, fc)
}

func (h *Handlers) CreateFeature(w http.ResponseWriter, r *http.Request) {
	var feat ontology.Feature
	if err := json.NewDecoder(r.Body).Decode(&feat); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	q := r.URL.Query()
	authored, _ := strconv.ParseBool(q.Get("authored"))
	out, err := h.featureService.CreateFeature(r.Context(), feat, q.Get("mission"), authored)
	if err != nil {
		sendEngineError(w, "CREATE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusCreated, out)
}

func (h *Handlers) GetFeature(w http.ResponseWriter, r *http.Request) {
	mission, _ := strconv.ParseBool(r.URL.Query().Get("mission"))
	feat, err := h.featureService.GetFeature(r.Context(), chi.URLParam(r, "id"), mission)
	if err != nil {
		sendEngineError(w, "GET_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, feat)
}

func (h *Handlers) DeleteFeature(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.ParseBool(r.URL.Query().Get("skip_network"))
	if err := h.featureService.DeleteFeature(r.Context(), chi.URLParam(r, "id"), skip); err != nil {
		sendEngineError(w, "DELETE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Feature deleted successfully"})
}

func (h *Handlers) HideFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.featureService.Hide(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendEngineError(w, "HIDE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Feature hidden"})
}

func (h *Handlers) UnhideFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.featureService.Unhide(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendEngineError(w, "UNHIDE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Feature unhidden"})
}

func (h *Handlers) FilterFeatures(w http.ResponseWriter, r *http.Request) {
	var req ontology.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	out, err := h.featureService.Filter(r.Context(), &req)
	if err != nil {
		sendEngineError(w, "FILTER_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) FilterRemove(w http.ResponseWriter, r *http.Request) {
	var req ontology.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.featureService.FilterRemove(r.Context(), &req); err != nil {
		sendEngineError(w, "DELETE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Matching features deleted"})
}

func (h *Handlers) TouchingFeatures(w http.ResponseWriter, r *http.Request) {
	var req ontology.TouchingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	out, err := h.featureService.Touching(r.Context(), &req)
	if err != nil {
		sendEngineError(w, "FILTER_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) ClearFeatures(w http.ResponseWriter, r *http.Request) {
	ignoreArchived, _ := strconv.ParseBool(r.URL.Query().Get("ignore_archived"))
	if err := h.featureService.Clear(r.Context(), ignoreArchived); err != nil {
		sendEngineError(w, "CLEAR_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Features cleared"})
}

// Store query handlers
func (h *Handlers) ListPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := h.featureService.Paths(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, nonNil(paths))
}

func (h *Handlers) PathFeatures(w http.ResponseWriter, r *http.Request) {
	out, err := h.featureService.PathFeatures(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) RemovePath(w http.ResponseWriter, r *http.Request) {
	if err := h.featureService.RemovePath(r.Context(), r.URL.Query().Get("path")); err != nil {
		sendEngineError(w, "DELETE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Path deleted successfully"})
}

func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.featureService.Groups(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, nonNil(groups))
}

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	out, err := h.featureService.Contacts(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) ListMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := h.featureService.Markers(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, nonNil(markers))
}

func (h *Handlers) MarkerFeatures(w http.ResponseWriter, r *http.Request) {
	out, err := h.featureService.MarkerFeatures(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) Snapping(w http.ResponseWriter, r *http.Request) {
	points, err := h.featureService.Snapping(r.Context(), r.URL.Query().Get("bbox"))
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, points)
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.featureService.Profile(r.Context())
	if err != nil {
		sendEngineError(w, "GET_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, profile)
}

// Mission handlers
func (h *Handlers) ListMissions(w http.ResponseWriter, r *http.Request) {
	out, err := h.missionService.ListMissions(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) LoadMission(w http.ResponseWriter, r *http.Request) {
	var req ontology.LoadMissionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}
	rec, err := h.missionService.LoadMission(r.Context(), chi.URLParam(r, "guid"), &req)
	if err != nil {
		sendEngineError(w, "LOAD_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, rec)
}

func (h *Handlers) DeleteMission(w http.ResponseWriter, r *http.Request) {
	if err := h.missionService.DeleteMission(r.Context(), chi.URLParam(r, "guid")); err != nil {
		sendEngineError(w, "DELETE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Mission unsubscribed"})
}

func (h *Handlers) SetActiveMission(w http.ResponseWriter, r *http.Request) {
	var req ontology.ActiveMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.missionService.SetActive(r.Context(), &req); err != nil {
		sendEngineError(w, "UPDATE_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, req)
}

func (h *Handlers) MissionCollection(w http.ResponseWriter, r *http.Request) {
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))
	out, err := h.missionService.Collection(r.Context(), chi.URLParam(r, "guid"), raw)
	if err != nil {
		sendEngineError(w, "GET_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) MissionBounds(w http.ResponseWriter, r *http.Request) {
	bound, err := h.missionService.Bounds(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		sendEngineError(w, "GET_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()})
}

func (h *Handlers) MissionLogs(w http.ResponseWriter, r *http.Request) {
	out, err := h.missionService.Logs(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) GetArchive(w http.ResponseWriter, r *http.Request) {
	out, err := h.archiveService.Listing(r.Context())
	if err != nil {
		sendEngineError(w, "LIST_FAILED", err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

// Health check
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := shared.HealthStatus{
		Status:    "healthy",
		Service:   "atlas",
		Version:   h.version,
		Uptime:    time.Since(h.started),
		Timestamp: time.Now(),
		Details:   make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.engine.Profile(ctx); err != nil {
		health.Status = "unhealthy"
		health.Details["engine"] = "unhealthy: " + err.Error()
	} else {
		health.Details["engine"] = "healthy"
	}

	if h.dbSvc != nil {
		if err := h.dbSvc.Health(); err != nil {
			health.Status = "unhealthy"
			health.Details["database"] = "unhealthy: " + err.Error()
		} else {
			health.Details["database"] = "healthy"
		}
	}

	if h.bus != nil {
		if err := h.bus.HealthCheck(); err != nil {
			health.Status = "unhealthy"
			health.Details["nats"] = "unhealthy: " + err.Error()
		} else {
			health.Details["nats"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	sendSuccess(w, statusCode, health)
}

// Helper functions
func sendSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := shared.Response{
		Success: true,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

func sendError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// sendEngineError maps engine and remote errors onto HTTP statuses. code is
// used for anything unclassified.
func sendEngineError(w http.ResponseWriter, code string, err error) {
	var apiErr *remote.APIError
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, atlas.ErrInvalidFilter):
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, atlas.ErrNotFound):
		sendError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, atlas.ErrMissionNotLoaded):
		sendError(w, http.StatusNotFound, "MISSION_NOT_LOADED", err.Error())
	case errors.Is(err, atlas.ErrProfileNotLoaded):
		sendError(w, http.StatusConflict, "PROFILE_NOT_LOADED", err.Error())
	case errors.Is(err, atlas.ErrDestroyed):
		sendError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	case errors.As(err, &apiErr):
		sendError(w, http.StatusBadGateway, "REMOTE_FAILED", err.Error())
	default:
		sendError(w, http.StatusInternalServerError, code, err.Error())
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
