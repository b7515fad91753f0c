package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/database"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// RollbackResult summarizes what a rollback removed.
type RollbackResult struct {
	OracleID     uuid.UUID
	ItemsDeleted int64
	DrawsDeleted int64
}

// ImportRecordRepository provides access to the import ledger, including
// the transactional rollback of a CREATE-mode import.
type ImportRecordRepository interface {
	Create(ctx context.Context, record *models.ImportRecord) error
	Finalize(ctx context.Context, record *models.ImportRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportRecord, error)
	HasSuccessfulHash(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error)
	RollbackCreate(ctx context.Context, importID uuid.UUID) (*RollbackResult, error)
}

type importRecordRepository struct {
	db *database.DB
}

// NewImportRecordRepository creates a new ImportRecordRepository.
func NewImportRecordRepository(db *database.DB) ImportRecordRepository {
	return &importRecordRepository{db: db}
}

var _ ImportRecordRepository = (*importRecordRepository)(nil)

const importColumns = `id, admin_id, filename, file_size, file_hash, import_type, import_mode,
	items_imported, items_failed, errors, status, processing_time_ms, oracle_id, started_at, completed_at`

// Create inserts a new PENDING ledger entry.
func (r *importRecordRepository) Create(ctx context.Context, record *models.ImportRecord) error {
	if record.Status == "" {
		record.Status = models.ImportStatusPending
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO oracle_imports (admin_id, filename, file_size, file_hash, import_type, import_mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, started_at`,
		record.AdminID,
		record.Filename,
		record.FileSize,
		record.FileHash,
		record.ImportType,
		record.ImportMode,
		record.Status,
	).Scan(&record.ID, &record.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create import record: %w", err)
	}

	return nil
}

// Finalize writes the terminal status, stats, and timing of an import.
// Only a PENDING record can be finalized; the status transition is monotonic.
func (r *importRecordRepository) Finalize(ctx context.Context, record *models.ImportRecord) error {
	errorsJSON, err := marshalImportErrors(record.Errors)
	if err != nil {
		return err
	}

	completedAt := time.Now().UTC()
	result, err := r.db.Exec(ctx, `
		UPDATE oracle_imports
		SET status = $2, items_imported = $3, items_failed = $4, errors = $5,
		    processing_time_ms = $6, oracle_id = $7, completed_at = $8
		WHERE id = $1 AND status = $9`,
		record.ID,
		record.Status,
		record.ItemsImported,
		record.ItemsFailed,
		errorsJSON,
		record.ProcessingMS,
		record.OracleID,
		completedAt,
		models.ImportStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize import record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.Conflict(
			fmt.Sprintf("import %s is not pending and cannot be finalized", record.ID), nil)
	}

	record.CompletedAt = &completedAt
	return nil
}

func (r *importRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportRecord, error) {
	record, err := scanImportRecord(r.db.QueryRow(ctx,
		`SELECT `+importColumns+` FROM oracle_imports WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("import %s not found", id))
		}
		return nil, err
	}
	return record, nil
}

// HasSuccessfulHash reports whether identical bytes were already imported
// successfully. Checked before the import transaction begins; the window
// between this lookup and the ledger insert is deliberately not locked.
func (r *importRecordRepository) HasSuccessfulHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM oracle_imports WHERE file_hash = $1 AND status = $2
		)`, hash, models.ImportStatusSuccess).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check import hash: %w", err)
	}
	return exists, nil
}

func (r *importRecordRepository) List(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + importColumns + ` FROM oracle_imports`
	args := []any{limit}
	if adminID != nil {
		query += ` WHERE admin_id = $2`
		args = append(args, *adminID)
	}
	query += ` ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import history: %w", err)
	}
	defer rows.Close()

	var records []*models.ImportRecord
	for rows.Next() {
		record, err := scanImportRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import history: %w", err)
	}

	return records, nil
}

// RollbackCreate reverses a successful CREATE-mode import: draws, items,
// and the oracle are deleted and the ledger entry turns CANCELLED, all in
// one transaction.
func (r *importRecordRepository) RollbackCreate(ctx context.Context, importID uuid.UUID) (*RollbackResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	record, err := scanImportRecord(tx.QueryRow(ctx,
		`SELECT `+importColumns+` FROM oracle_imports WHERE id = $1 FOR UPDATE`, importID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("import %s not found", importID))
		}
		return nil, err
	}

	if !record.Status.CanRollback() {
		return nil, apperrors.Conflict(
			fmt.Sprintf("import %s has status %s and cannot be rolled back", importID, record.Status), nil)
	}
	if record.ImportMode != models.ImportModeCreate {
		return nil, apperrors.Conflict(
			fmt.Sprintf("import %s used mode %s; only CREATE imports can be rolled back", importID, record.ImportMode), nil)
	}
	if record.OracleID == nil {
		return nil, apperrors.Conflict(
			fmt.Sprintf("import %s has no oracle to roll back", importID), nil)
	}

	oracleID := *record.OracleID
	result := &RollbackResult{OracleID: oracleID}

	draws, err := tx.Exec(ctx, `DELETE FROM oracle_draws WHERE oracle_id = $1`, oracleID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete draw history: %w", err)
	}
	result.DrawsDeleted = draws.RowsAffected()

	items, err := tx.Exec(ctx, `DELETE FROM oracle_items WHERE oracle_id = $1`, oracleID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete items: %w", err)
	}
	result.ItemsDeleted = items.RowsAffected()

	// Clear the linkage first so deleting the oracle doesn't null it
	// through the FK before the status update lands.
	if _, err := tx.Exec(ctx, `
		UPDATE oracle_imports SET status = $2, oracle_id = NULL WHERE id = $1`,
		importID, models.ImportStatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to mark import cancelled: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM oracles WHERE id = $1`, oracleID); err != nil {
		return nil, fmt.Errorf("failed to delete oracle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

func scanImportRecord(row pgx.Row) (*models.ImportRecord, error) {
	var rec models.ImportRecord
	var errorsJSON []byte
	var processingMS *int64

	err := row.Scan(
		&rec.ID,
		&rec.AdminID,
		&rec.Filename,
		&rec.FileSize,
		&rec.FileHash,
		&rec.ImportType,
		&rec.ImportMode,
		&rec.ItemsImported,
		&rec.ItemsFailed,
		&errorsJSON,
		&rec.Status,
		&processingMS,
		&rec.OracleID,
		&rec.StartedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan import record: %w", err)
	}

	if processingMS != nil {
		rec.ProcessingMS = *processingMS
	}
	if len(errorsJSON) > 0 && string(errorsJSON) != "null" {
		if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal import errors: %w", err)
		}
	}

	return &rec, nil
}

func marshalImportErrors(errs []models.ImportItemError) ([]byte, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import errors: %w", err)
	}
	return data, nil
}
