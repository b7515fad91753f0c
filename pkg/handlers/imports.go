package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/services"
)

// ImportHandler serves the import ledger endpoints. Every operation here
// requires the admin role.
type ImportHandler struct {
	imports services.ImportService
	auth    *RequestAuth
	logger  *zap.Logger

	maxBodyBytes int64
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(imports services.ImportService, auth *RequestAuth, maxBodyBytes int64, logger *zap.Logger) *ImportHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = services.DefaultMaxImportBytes
	}
	return &ImportHandler{
		imports:      imports,
		auth:         auth,
		logger:       logger.Named("import-handler"),
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes registers the import routes on the given mux.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports", h.Import)
	mux.HandleFunc("GET /api/imports", h.List)
	mux.HandleFunc("POST /api/imports/{id}/rollback", h.Rollback)
}

// Import handles POST /api/imports?filename=...&mode=CREATE with the raw
// document as the request body.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeAppError(w, h.logger, apperrors.Validation("filename query parameter is required"))
		return
	}

	mode := models.ImportMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = models.ImportModeCreate
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		writeAppError(w, h.logger, apperrors.Validation("failed to read request body"))
		return
	}

	outcome, err := h.imports.ImportFile(r.Context(), data, filename, mode, caller.ID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if outcome.Status != models.ImportStatusSuccess {
		// PARTIAL and FAILED outcomes are reported, not errored.
		status = http.StatusOK
	}
	if err := WriteJSON(w, status, outcome); err != nil {
		h.logger.Warn("Failed to encode import response", zap.Error(err))
	}
}

// List handles GET /api/imports?limit=N&mine=true.
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var adminFilter *uuid.UUID
	if r.URL.Query().Get("mine") == "true" && caller.ID != uuid.Nil {
		adminFilter = &caller.ID
	}

	records, err := h.imports.ListHistory(r.Context(), adminFilter, limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, records); err != nil {
		h.logger.Warn("Failed to encode import list", zap.Error(err))
	}
}

// Rollback handles POST /api/imports/{id}/rollback.
func (h *ImportHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeAppError(w, h.logger, apperrors.Validation("invalid import id"))
		return
	}

	outcome, err := h.imports.RollbackImport(r.Context(), id, caller.ID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, outcome); err != nil {
		h.logger.Warn("Failed to encode rollback response", zap.Error(err))
	}
}

func (h *ImportHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	caller := h.auth.Caller(r)
	if !caller.Role.IsAdmin() {
		writeAppError(w, h.logger, apperrors.Permission("imports require the admin role"))
		return caller, false
	}
	return caller, true
}
