package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/services"
)

// OracleHandler serves the oracle catalog, draw and export endpoints.
type OracleHandler struct {
	catalog services.CatalogService
	draws   services.DrawService
	exports services.ExportService
	auth    *RequestAuth
	logger  *zap.Logger
}

// NewOracleHandler creates a new OracleHandler.
func NewOracleHandler(
	catalog services.CatalogService,
	draws services.DrawService,
	exports services.ExportService,
	auth *RequestAuth,
	logger *zap.Logger,
) *OracleHandler {
	return &OracleHandler{
		catalog: catalog,
		draws:   draws,
		exports: exports,
		auth:    auth,
		logger:  logger.Named("oracle-handler"),
	}
}

// RegisterRoutes registers the oracle routes on the given mux.
func (h *OracleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/oracles", h.List)
	mux.HandleFunc("POST /api/oracles", h.Create)
	mux.HandleFunc("GET /api/oracles/{id}", h.Get)
	mux.HandleFunc("GET /api/oracles/{id}/items", h.ListItems)
	mux.HandleFunc("POST /api/oracles/{id}/draw", h.Draw)
	mux.HandleFunc("GET /api/oracles/{id}/export", h.Export)
	mux.HandleFunc("GET /api/oracles/{id}/history", h.History)
}

// List handles GET /api/oracles.
func (h *OracleHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)

	oracles, err := h.catalog.ListOracles(r.Context(), caller.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, oracles)
}

// Create handles POST /api/oracles.
func (h *OracleHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)

	var input models.CreateOracleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, apperrors.Validation("malformed JSON body"))
		return
	}
	if caller.ID != uuid.Nil {
		input.CreatedBy = &caller.ID
	}

	oracle, err := h.catalog.CreateOracle(r.Context(), &input, caller.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, oracle)
}

// Get handles GET /api/oracles/{id}.
func (h *OracleHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.Validation("invalid oracle id"))
		return
	}

	oracle, err := h.catalog.GetOracle(r.Context(), id, caller.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, oracle)
}

// ListItems handles GET /api/oracles/{id}/items.
func (h *OracleHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.Validation("invalid oracle id"))
		return
	}

	items, err := h.catalog.ListItems(r.Context(), id, caller.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// drawBody is the request payload for POST /api/oracles/{id}/draw.
type drawBody struct {
	Count           int            `json:"count"`
	Filters         map[string]any `json:"filters,omitempty"`
	WithReplacement bool           `json:"with_replacement"`
	SessionID       string         `json:"session_id,omitempty"`
}

// Draw handles POST /api/oracles/{id}/draw.
func (h *OracleHandler) Draw(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.Validation("invalid oracle id"))
		return
	}

	body := drawBody{Count: 1}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, apperrors.Validation("malformed JSON body"))
			return
		}
	}

	req := &services.DrawRequest{
		OracleID:        id,
		Count:           body.Count,
		Filters:         body.Filters,
		WithReplacement: body.WithReplacement,
		Role:            caller.Role,
		SessionID:       body.SessionID,
		ClientIP:        clientIP(r),
	}
	if caller.ID != uuid.Nil {
		userID := caller.ID
		req.UserID = &userID
	}

	result, err := h.draws.Draw(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Export handles GET /api/oracles/{id}/export?format=json|csv.
func (h *OracleHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)
	if !caller.Role.IsAdmin() {
		h.writeError(w, apperrors.Permission("export requires the admin role"))
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.Validation("invalid oracle id"))
		return
	}

	var (
		data        []byte
		filename    string
		contentType string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		data, filename, err = h.exports.ExportJSON(r.Context(), id)
		contentType = "application/json"
	case "csv":
		data, filename, err = h.exports.ExportCSV(r.Context(), id)
		contentType = "text/csv"
	default:
		h.writeError(w, apperrors.Validation("format must be json or csv"))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write export response", zap.Error(err))
	}
}

// History handles GET /api/oracles/{id}/history?limit=N.
func (h *OracleHandler) History(w http.ResponseWriter, r *http.Request) {
	caller := h.auth.Caller(r)
	if !caller.Role.IsAdmin() {
		h.writeError(w, apperrors.Permission("draw history requires the admin role"))
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.Validation("invalid oracle id"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.draws.ListHistory(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *OracleHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (h *OracleHandler) writeError(w http.ResponseWriter, err error) {
	writeAppError(w, h.logger, err)
}

// writeAppError maps an error to its HTTP status and JSON body.
func writeAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		// Do not leak storage internals to the client.
		_ = ErrorResponse(w, status, "internal_error", "internal error")
		return
	}
	_ = ErrorResponse(w, status, string(apperrors.CategoryOf(err)), err.Error())
}

// clientIP extracts the caller address, preferring the gateway-set header.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
