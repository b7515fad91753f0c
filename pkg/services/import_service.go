package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/audit"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// DefaultMaxImportBytes caps uploaded files when no limit is configured.
const DefaultMaxImportBytes = 5 << 20

// ImportOutcome reports how an import attempt ended. A PARTIAL outcome is a
// result, not an error: the call succeeded and the per-item failures are
// itemized in Errors.
type ImportOutcome struct {
	ImportID      uuid.UUID                `json:"import_id"`
	Status        models.ImportStatus      `json:"status"`
	OracleID      *uuid.UUID               `json:"oracle_id,omitempty"`
	OracleName    string                   `json:"oracle_name,omitempty"`
	ItemsImported int                      `json:"items_imported"`
	ItemsFailed   int                      `json:"items_failed"`
	Errors        []models.ImportItemError `json:"errors,omitempty"`
	ProcessingMS  int64                    `json:"processing_time_ms"`
}

// RollbackOutcome reports what a rollback removed.
type RollbackOutcome struct {
	ImportID     uuid.UUID `json:"import_id"`
	OracleID     uuid.UUID `json:"oracle_id"`
	ItemsDeleted int64     `json:"items_deleted"`
	DrawsDeleted int64     `json:"draws_deleted"`
}

// ImportService turns uploaded JSON/CSV documents into persisted oracles
// with an auditable ledger, and reverses prior imports on request.
type ImportService interface {
	// ImportFile ingests one uploaded document in the given mode.
	ImportFile(ctx context.Context, data []byte, filename string, mode models.ImportMode, adminID uuid.UUID) (*ImportOutcome, error)

	// RollbackImport reverses a SUCCESS or PARTIAL CREATE-mode import.
	RollbackImport(ctx context.Context, importID, actorID uuid.UUID) (*RollbackOutcome, error)

	// ListHistory returns recent ledger entries, newest first, optionally
	// filtered to one admin.
	ListHistory(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error)
}

type importService struct {
	oracleRepo repositories.OracleRepository
	importRepo repositories.ImportRecordRepository
	auditor    *audit.Auditor
	logger     *zap.Logger
	maxBytes   int64
}

// ImportOption configures an ImportService.
type ImportOption func(*importService)

// WithMaxImportBytes overrides the upload size limit.
func WithMaxImportBytes(max int64) ImportOption {
	return func(s *importService) {
		if max > 0 {
			s.maxBytes = max
		}
	}
}

// NewImportService creates a new ImportService. The auditor may be nil.
func NewImportService(
	oracleRepo repositories.OracleRepository,
	importRepo repositories.ImportRecordRepository,
	auditor *audit.Auditor,
	logger *zap.Logger,
	opts ...ImportOption,
) ImportService {
	s := &importService{
		oracleRepo: oracleRepo,
		importRepo: importRepo,
		auditor:    auditor,
		logger:     logger.Named("import-service"),
		maxBytes:   DefaultMaxImportBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ImportService = (*importService)(nil)

func (s *importService) ImportFile(ctx context.Context, data []byte, filename string, mode models.ImportMode, adminID uuid.UUID) (*ImportOutcome, error) {
	started := time.Now()

	if !mode.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown import mode %q", mode))
	}
	if mode != models.ImportModeCreate {
		// REPLACE and MERGE are reserved enum values; refusing here keeps
		// them from silently behaving like CREATE.
		return nil, fmt.Errorf("import mode %s: %w", mode, apperrors.ErrUnsupportedMode)
	}
	if len(data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperrors.Validation(
			fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	importType, err := detectImportType(filename)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(data)
	fileHash := hex.EncodeToString(hash[:])

	// Checked before the transaction to avoid wasted work. The window
	// between this lookup and the ledger insert is a documented
	// relaxation: concurrent identical uploads may rarely both pass.
	duplicate, err := s.importRepo.HasSuccessfulHash(ctx, fileHash)
	if err != nil {
		return nil, err
	}
	if duplicate {
		s.recordRejected(ctx, filename, int64(len(data)), fileHash, importType, mode, adminID,
			"file was already imported")
		return nil, apperrors.Conflict(
			"this file was already imported successfully", apperrors.ErrDuplicateImport)
	}

	var doc *importDocument
	switch importType {
	case models.ImportTypeJSON:
		doc, err = parseImportJSON(data)
	case models.ImportTypeCSV:
		doc, err = parseImportCSV(data, filename)
	}
	if err != nil {
		s.recordRejected(ctx, filename, int64(len(data)), fileHash, importType, mode, adminID, err.Error())
		return nil, apperrors.Validation(err.Error())
	}

	if problems := validateImportDocument(doc); len(problems) > 0 {
		s.recordRejected(ctx, filename, int64(len(data)), fileHash, importType, mode, adminID, problems...)
		return nil, apperrors.Validation("import document is invalid", problems...)
	}

	// Name pre-check; the unique constraint is still the backstop.
	existing, err := s.oracleRepo.GetByName(ctx, doc.Oracle.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		reason := fmt.Sprintf("oracle name %q is already taken", doc.Oracle.Name)
		s.recordRejected(ctx, filename, int64(len(data)), fileHash, importType, mode, adminID, reason)
		return nil, apperrors.Conflict(reason, nil)
	}

	record := &models.ImportRecord{
		AdminID:    adminID,
		Filename:   filename,
		FileSize:   int64(len(data)),
		FileHash:   fileHash,
		ImportType: importType,
		ImportMode: mode,
		Status:     models.ImportStatusPending,
	}
	if err := s.importRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	oracleInput := &models.CreateOracleInput{
		Name:            doc.Oracle.Name,
		Description:     doc.Oracle.Description,
		PremiumRequired: doc.Oracle.PremiumRequired,
		Filters:         doc.Oracle.Filters,
		IsActive:        doc.Oracle.IsActive,
		CreatedBy:       &adminID,
	}

	oracle, bulk, err := s.oracleRepo.CreateWithItems(ctx, oracleInput, doc.toCreateInputs())
	if err != nil {
		record.Status = models.ImportStatusFailed
		record.Errors = []models.ImportItemError{{Message: err.Error()}}
		record.ProcessingMS = time.Since(started).Milliseconds()
		s.finalize(ctx, record)
		return nil, err
	}

	record.OracleID = &oracle.ID
	record.ItemsImported = bulk.Inserted
	record.ItemsFailed = bulk.Failed
	record.Errors = bulk.Errors
	record.ProcessingMS = time.Since(started).Milliseconds()
	record.Status = importStatusFor(bulk)
	s.finalize(ctx, record)

	if s.auditor != nil {
		s.auditor.LogImportCompleted(ctx, record)
	}

	return &ImportOutcome{
		ImportID:      record.ID,
		Status:        record.Status,
		OracleID:      record.OracleID,
		OracleName:    oracle.Name,
		ItemsImported: bulk.Inserted,
		ItemsFailed:   bulk.Failed,
		Errors:        bulk.Errors,
		ProcessingMS:  record.ProcessingMS,
	}, nil
}

func (s *importService) RollbackImport(ctx context.Context, importID, actorID uuid.UUID) (*RollbackOutcome, error) {
	result, err := s.importRepo.RollbackCreate(ctx, importID)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.LogImportRolledBack(ctx, importID, actorID, result.OracleID, result.ItemsDeleted)
	}

	return &RollbackOutcome{
		ImportID:     importID,
		OracleID:     result.OracleID,
		ItemsDeleted: result.ItemsDeleted,
		DrawsDeleted: result.DrawsDeleted,
	}, nil
}

func (s *importService) ListHistory(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error) {
	return s.importRepo.List(ctx, adminID, limit)
}

// recordRejected writes a FAILED ledger entry for an attempt that never
// reached the store. Ledger failures here are logged and swallowed; the
// caller still receives the original validation error.
func (s *importService) recordRejected(
	ctx context.Context,
	filename string,
	size int64,
	fileHash string,
	importType models.ImportType,
	mode models.ImportMode,
	adminID uuid.UUID,
	problems ...string,
) {
	record := &models.ImportRecord{
		AdminID:    adminID,
		Filename:   filename,
		FileSize:   size,
		FileHash:   fileHash,
		ImportType: importType,
		ImportMode: mode,
		Status:     models.ImportStatusPending,
	}
	for _, problem := range problems {
		record.Errors = append(record.Errors, models.ImportItemError{Message: problem})
	}
	record.ItemsFailed = len(problems)

	if err := s.importRepo.Create(ctx, record); err != nil {
		s.logger.Warn("failed to record rejected import", zap.Error(err))
		return
	}
	record.Status = models.ImportStatusFailed
	s.finalize(ctx, record)
}

func (s *importService) finalize(ctx context.Context, record *models.ImportRecord) {
	if err := s.importRepo.Finalize(ctx, record); err != nil {
		s.logger.Error("failed to finalize import record",
			zap.String("import_id", record.ID.String()),
			zap.Error(err))
	}
}

func importStatusFor(bulk *repositories.BulkItemResult) models.ImportStatus {
	switch {
	case bulk.Inserted == 0:
		return models.ImportStatusFailed
	case bulk.Failed > 0:
		return models.ImportStatusPartial
	default:
		return models.ImportStatusSuccess
	}
}

// detectImportType infers the format from the filename extension.
func detectImportType(filename string) (models.ImportType, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return models.ImportTypeJSON, nil
	case strings.HasSuffix(lower, ".csv"):
		return models.ImportTypeCSV, nil
	default:
		return "", apperrors.Validation(
			fmt.Sprintf("unsupported file type %q, expected .json or .csv", filename))
	}
}
