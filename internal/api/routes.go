// Package api: HTTP surface of the directory, registered on its own mux so the entry point can mount it under API_BASE
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"org-directory/internal/directory"
	"org-directory/internal/geo"
	"org-directory/internal/logger"
	"org-directory/internal/model"
)

type Options struct {
	DefaultRadiusM float64
	Cache          *QueryCache
	Locator        IPLocator // nil disables lat/lon fallback to the caller's address
	Health         func(ctx context.Context) error
}

type handler struct {
	svc  *directory.Service
	opts Options
}

func BuildRoutes(svc *directory.Service, opts Options) *http.ServeMux {
	if opts.DefaultRadiusM <= 0 {
		opts.DefaultRadiusM = 1000
	}
	h := &handler{svc: svc, opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /organizations/by_building/{building_id}", h.byBuilding)
	mux.HandleFunc("GET /activities/{activity_id}/organizations", h.byActivity)
	mux.HandleFunc("GET /activities/{activity_id}/tree", h.activityTree)
	mux.HandleFunc("GET /organizations_by_nested_activity", h.byNestedActivity)
	mux.HandleFunc("GET /organization/{organization_id}", h.byID)
	mux.HandleFunc("GET /organization_by_name", h.byName)
	mux.HandleFunc("GET /organizations/nearby", h.nearby)
	mux.HandleFunc("GET /healthz", h.healthz)
	return mux
}

func (h *handler) byBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "building_id")
	if !ok {
		return
	}
	rows, err := cached(r.Context(), h.opts.Cache, idKey("by_building", id), func(ctx context.Context) ([]model.OrganizationOut, error) {
		return h.svc.OrganizationsByBuilding(ctx, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeDetail(w, http.StatusNotFound, "no organizations in the building")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) byActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "activity_id")
	if !ok {
		return
	}
	rows, err := cached(r.Context(), h.opts.Cache, idKey("by_activity", id), func(ctx context.Context) ([]model.OrganizationOut, error) {
		return h.svc.OrganizationsByActivity(ctx, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeDetail(w, http.StatusNotFound, "no organizations found for this activity")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// byNestedActivity: 200 with [] when nothing matches
func (h *handler) byNestedActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "activity_id")
	if !ok {
		return
	}
	rows, err := cached(r.Context(), h.opts.Cache, idKey("by_nested_activity", id), func(ctx context.Context) ([]model.OrganizationActivityOut, error) {
		return h.svc.OrganizationsByNestedActivity(ctx, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) byID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "organization_id")
	if !ok {
		return
	}
	o, err := cached(r.Context(), h.opts.Cache, idKey("by_id", id), func(ctx context.Context) (model.OrganizationOut, error) {
		return h.svc.OrganizationByID(ctx, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) byName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("organization_name")
	if name == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "organization_name is required")
		return
	}
	rows, err := cached(r.Context(), h.opts.Cache, "by_name:"+name, func(ctx context.Context) ([]model.OrganizationOut, error) {
		return h.svc.OrganizationsByName(ctx, name)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// nearby: lat and lon come together; both absent falls back to the caller's address when a locator is set
func (h *handler) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	radius := h.opts.DefaultRadiusM
	if s := q.Get("radius_m"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "radius_m must be a number")
			return
		}
		radius = v
	}
	var p geo.Point
	latS, lonS := q.Get("lat"), q.Get("lon")
	switch {
	case latS != "" && lonS != "":
		lat, err1 := strconv.ParseFloat(latS, 64)
		lon, err2 := strconv.ParseFloat(lonS, 64)
		if err1 != nil || err2 != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "lat and lon must be numbers")
			return
		}
		p = geo.Point{Lat: lat, Lon: lon}
	case latS == "" && lonS == "" && h.opts.Locator != nil:
		ip := clientIP(r)
		loc, ok := h.opts.Locator.Locate(ip)
		if !ok {
			writeDetail(w, http.StatusUnprocessableEntity, "lat and lon are required: caller location unknown")
			return
		}
		logger.L().Debug("nearby_center_from_ip", "ip", ip, "lat", loc.Lat, "lon", loc.Lon)
		p = loc
	default:
		writeDetail(w, http.StatusUnprocessableEntity, "lat and lon are required")
		return
	}
	rows, err := cached(r.Context(), h.opts.Cache, nearbyKey(p, radius), func(ctx context.Context) ([]model.OrganizationOut, error) {
		return h.svc.OrganizationsNearby(ctx, p.Lat, p.Lon, radius)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("no organizations within %sm", formatRadius(radius)))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) activityTree(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "activity_id")
	if !ok {
		return
	}
	nodes, err := cached(r.Context(), h.opts.Cache, idKey("activity_tree", id), func(ctx context.Context) ([]model.ActivityNode, error) {
		return h.svc.ActivityTree(ctx, id)
	})
	if errors.Is(err, directory.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "activity not found")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			logger.L().Error("health_check_error", "err", err)
			writeDetail(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	return parseID(w, name, r.PathValue(name))
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	return parseID(w, name, r.URL.Query().Get(name))
}

func parseID(w http.ResponseWriter, name, s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, name+" must be an integer")
		return 0, false
	}
	return id, true
}

func formatRadius(r float64) string {
	if math.IsInf(r, 1) {
		return "inf"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// writeError: service errors to status codes; store failures are logged and hidden
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "organization not found")
	case errors.Is(err, directory.ErrInvalidArgument):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.L().Error("query_error", "path", r.URL.Path, "request_id", logger.RequestID(r.Context()), "err", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
