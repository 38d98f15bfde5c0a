package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/database"
	"github.com/julienbonastre/tariff-helpers/internal/ingest"
	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/table"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
	"github.com/julienbonastre/tariff-helpers/internal/workspace"
)

// Options tunes handler limits
type Options struct {
	MaxUploadBytes    int64
	QuoteHistoryLimit int
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db         *database.DB
	ingest     *ingest.Service
	workspaces *workspace.Store
	logger     *zap.Logger
	opts       Options
}

// NewHandler creates a new handler
func NewHandler(db *database.DB, ingestSvc *ingest.Service, workspaces *workspace.Store, logger *zap.Logger, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.QuoteHistoryLimit <= 0 {
		opts.QuoteHistoryLimit = 10
	}
	return &Handler{
		db:         db,
		ingest:     ingestSvc,
		workspaces: workspaces,
		logger:     logger.Named("http"),
		opts:       opts,
	}
}

// Register adds every API route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"/api/health", h.HealthCheck},
		{"/api/settings", h.GetSettings},
		{"/api/settings/{key}", h.UpdateSetting},

		{"/api/tables", h.Tables},
		{"/api/tables/{id}", h.Table},
		{"/api/imports", h.GetImports},
		{"/api/options", h.GetOptions},

		{"/api/workspace", h.Workspace},
		{"/api/workspace/select", h.SelectProduct},
		{"/api/workspace/sources/{ingredient}", h.AddSource},
		{"/api/workspace/sources/{ingredient}/{index}", h.EditSource},
		{"/api/workspace/absorption", h.SetAbsorption},
		{"/api/workspace/snapshot", h.GetSnapshot},

		{"/api/weights", h.GetWeights},
		{"/api/impact", h.CalculateImpact},
		{"/api/tariffs", h.GetTariffs},
		{"/api/ingredients/{name}/comparison", h.ComparePrices},
		{"/api/materials/stats", h.GetMaterialStats},
		{"/api/materials/tariffs", h.GetMaterialTariffs},
		{"/api/supply/filtered", h.GetFilteredSupply},
		{"/api/pricing", h.PriceProducts},
		{"/api/quotes", h.Quotes},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, metrics.Instrument(rt.pattern, rt.handler))
	}
}

// JSON response helper
func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Error encoding JSON", zap.Error(err))
	}
}

// Error response helper
func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}

// serverError logs err and answers 500
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	metrics.ErrorsTotal.WithLabelValues("internal").Inc()
	h.errorResponse(w, http.StatusInternalServerError, err.Error())
}

// editError maps a rejected workspace edit to a user-facing status
func (h *Handler) editError(w http.ResponseWriter, r *http.Request, err error) {
	var reason string
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, tariff.ErrAllocationFull):
		reason, status = "allocation_full", http.StatusConflict
	case errors.Is(err, tariff.ErrSourceIndex):
		reason = "source_index"
	case errors.Is(err, tariff.ErrUnknownField):
		reason = "unknown_field"
	case errors.Is(err, workspace.ErrUnknownIngredient):
		reason = "unknown_ingredient"
	case errors.Is(err, workspace.ErrIncompleteSelection):
		reason = "incomplete_selection"
	case errors.Is(err, workspace.ErrNoSelection):
		reason, status = "no_selection", http.StatusConflict
	default:
		h.serverError(w, r, err)
		return
	}
	metrics.SourceEditsRejected.WithLabelValues(reason).Inc()
	h.logger.Debug("Edit rejected", zap.String("path", r.URL.Path), zap.String("reason", reason))
	h.errorResponse(w, status, err.Error())
}

// advisory returns the message for errors that should be shown as a notice
// with an empty result rather than failing the request
func advisory(err error) (string, bool) {
	var mc *table.MissingColumnsError
	if errors.As(err, &mc) {
		return mc.Error(), true
	}
	return "", false
}

func allowMethod(w http.ResponseWriter, r *http.Request, h *Handler, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	h.errorResponse(w, http.StatusMethodNotAllowed, methods[0]+" required")
	return false
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbOK := h.db.PingContext(r.Context()) == nil
	if !dbOK {
		status = "degraded"
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"database": dbOK,
	})
}

// GetSettings returns application settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}
	settings, err := h.db.GetAllSettings()
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"settings": settings,
		"total":    len(settings),
	})
}

// SettingRequest is the body of a settings update
type SettingRequest struct {
	Value string `json:"value"`
}

// UpdateSetting changes the value of a seeded setting
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPut) {
		return
	}
	key := r.PathValue("key")

	var req SettingRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	value := strings.TrimSpace(req.Value)
	if err := validateSetting(key, value); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.UpdateSetting(key, value); err != nil {
		if errors.Is(err, database.ErrSettingNotFound) {
			h.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}
	setting, err := h.db.GetSetting(key)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info("Setting updated", zap.String("key", key), zap.String("value", value))
	h.jsonResponse(w, http.StatusOK, setting)
}

// validateSetting checks a value against the rules of the known keys
func validateSetting(key, value string) error {
	switch key {
	case database.SettingUnitMultiplier:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	case database.SettingDisplayDecimals:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 || v > maxDisplayDecimals {
			return fmt.Errorf("%s must be a whole number from 0 to %d", key, maxDisplayDecimals)
		}
	}
	return nil
}

const maxDisplayDecimals = 6

// displayDecimals reads the configured display precision, falling back to
// tariff.DisplayDecimals when unset or invalid
func (h *Handler) displayDecimals() int32 {
	s, err := h.db.GetSetting(database.SettingDisplayDecimals)
	if err != nil || s == nil {
		return tariff.DisplayDecimals
	}
	v, err := strconv.Atoi(strings.TrimSpace(s.Value))
	if err != nil || v < 0 || v > maxDisplayDecimals {
		return tariff.DisplayDecimals
	}
	return int32(v)
}

// defaultUnits reads the configured unit multiplier, 1 when unset or invalid
func (h *Handler) defaultUnits() float64 {
	s, err := h.db.GetSetting(database.SettingUnitMultiplier)
	if err != nil || s == nil {
		return 1
	}
	v := tariff.ParseNumber(s.Value)
	if v <= 0 {
		return 1
	}
	return v
}
