package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/db"
	"github.com/manpreetbhatti/showroom/internal/ws"
	"github.com/rs/zerolog/log"
)

type API struct {
	hub      *ws.Hub
	database *db.Database
}

func New(hub *ws.Hub, database *db.Database) *API {
	return &API{
		hub:      hub,
		database: database,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encoding JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats(r.Context())
		if err == nil {
			stats["total_stores"] = dbStats["store_count"]
			stats["total_models"] = dbStats["model_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Store handlers

// Occupancy is never stored; it is read from the live rooms on every response.
func (a *API) withOccupancy(store catalog.Store) catalog.Store {
	store.ActiveUsers = a.hub.ActiveCount(store.ID)
	return store
}

func (a *API) ListStoresHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	stores, err := a.database.ListStores(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("listing stores")
		errorResponse(w, http.StatusInternalServerError, "Failed to list stores")
		return
	}

	for i := range stores {
		stores[i] = a.withOccupancy(stores[i])
	}

	jsonResponse(w, http.StatusOK, stores)
}

func (a *API) CreateStoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req catalog.Store
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Models == nil {
		req.Models = []catalog.Model{}
	}
	if err := catalog.Validate(req); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.database.CreateStore(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("store", req.ID).Msg("creating store")
		errorResponse(w, http.StatusInternalServerError, "Failed to create store")
		return
	}
	if !created {
		errorResponse(w, http.StatusConflict, "Store already exists")
		return
	}

	store, err := a.database.GetStore(r.Context(), req.ID)
	if err != nil || store == nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get store")
		return
	}

	jsonResponse(w, http.StatusCreated, a.withOccupancy(*store))
}

func (a *API) GetStoreHandler(w http.ResponseWriter, r *http.Request, storeID string) {
	store, err := a.database.GetStore(r.Context(), storeID)
	if err != nil {
		log.Error().Err(err).Str("store", storeID).Msg("getting store")
		errorResponse(w, http.StatusInternalServerError, "Failed to get store")
		return
	}

	if store == nil {
		errorResponse(w, http.StatusNotFound, "Store not found")
		return
	}

	jsonResponse(w, http.StatusOK, a.withOccupancy(*store))
}

func (a *API) DeleteStoreHandler(w http.ResponseWriter, r *http.Request, storeID string) {
	store, err := a.database.GetStore(r.Context(), storeID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get store")
		return
	}
	if store == nil {
		errorResponse(w, http.StatusNotFound, "Store not found")
		return
	}

	if err := a.database.DeleteStore(r.Context(), storeID); err != nil {
		log.Error().Err(err).Str("store", storeID).Msg("deleting store")
		errorResponse(w, http.StatusInternalServerError, "Failed to delete store")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "Store deleted"})
}

type UpdatePositionRequest struct {
	Position *coords.Position `json:"position"`
}

func (a *API) UpdateModelPositionHandler(w http.ResponseWriter, r *http.Request, storeID, modelID string) {
	var req UpdatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Position == nil {
		errorResponse(w, http.StatusBadRequest, "position is required")
		return
	}
	if err := catalog.ValidatePosition(*req.Position); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid position")
		return
	}

	model, err := a.database.UpdateModelPosition(r.Context(), storeID, modelID, *req.Position)
	if errors.Is(err, db.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "Store or model not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("store", storeID).Str("model", modelID).Msg("updating model position")
		errorResponse(w, http.StatusInternalServerError, "Failed to update model position")
		return
	}

	jsonResponse(w, http.StatusOK, model)
}

// Splits the escaped path below /api/stores so IDs may contain encoded slashes
func storePath(r *http.Request) ([]string, bool) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/api/stores")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil, true
	}

	parts := strings.Split(rest, "/")
	for i, p := range parts {
		unescaped, err := url.PathUnescape(p)
		if err != nil || unescaped == "" {
			return nil, false
		}
		parts[i] = unescaped
	}
	return parts, true
}

func (a *API) StoresRouter(w http.ResponseWriter, r *http.Request) {
	parts, ok := storePath(r)
	if !ok {
		errorResponse(w, http.StatusBadRequest, "Invalid path")
		return
	}

	switch len(parts) {
	// /api/stores or /api/stores/
	case 0:
		switch r.Method {
		case http.MethodGet:
			a.ListStoresHandler(w, r)
		case http.MethodPost:
			a.CreateStoreHandler(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	// /api/stores/{id}
	case 1:
		switch r.Method {
		case http.MethodGet:
			a.GetStoreHandler(w, r, parts[0])
		case http.MethodDelete:
			a.DeleteStoreHandler(w, r, parts[0])
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	// /api/stores/{id}/models/{modelId}
	case 3:
		if parts[1] != "models" {
			errorResponse(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method != http.MethodPatch {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.UpdateModelPositionHandler(w, r, parts[0], parts[2])

	default:
		errorResponse(w, http.StatusNotFound, "Not found")
	}
}
