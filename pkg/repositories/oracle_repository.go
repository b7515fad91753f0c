package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/database"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// BulkItemResult accounts for a bulk item insert where individual rows may
// fail without aborting the whole batch.
type BulkItemResult struct {
	Inserted int
	Failed   int
	Errors   []models.ImportItemError
}

// OracleRepository provides data access for oracles, including the
// transactional multi-row operations (cascade, purge, clone, bulk create).
type OracleRepository interface {
	Create(ctx context.Context, input *models.CreateOracleInput) (*models.Oracle, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Oracle, error)
	GetByName(ctx context.Context, name string) (*models.Oracle, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Oracle, error)
	Update(ctx context.Context, id uuid.UUID, input *models.UpdateOracleInput) (*models.Oracle, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Reactivate(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
	Clone(ctx context.Context, id uuid.UUID, newName string, actorID uuid.UUID) (*models.Oracle, error)
	CreateWithItems(ctx context.Context, oracle *models.CreateOracleInput, items []models.CreateItemInput) (*models.Oracle, *BulkItemResult, error)
}

type oracleRepository struct {
	db *database.DB
}

// NewOracleRepository creates a new OracleRepository.
func NewOracleRepository(db *database.DB) OracleRepository {
	return &oracleRepository{db: db}
}

var _ OracleRepository = (*oracleRepository)(nil)

const oracleColumns = `id, name, description, premium_required, total_weight,
	filters, is_active, created_by, created_at, updated_at`

func (r *oracleRepository) Create(ctx context.Context, input *models.CreateOracleInput) (*models.Oracle, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < models.MinOracleNameLength {
		return nil, apperrors.Validation(
			fmt.Sprintf("oracle name must be at least %d characters", models.MinOracleNameLength))
	}

	filtersJSON, err := jsonbValue(input.Filters)
	if err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	now := time.Now().UTC()
	oracle := &models.Oracle{
		Name:            name,
		Description:     strings.TrimSpace(input.Description),
		PremiumRequired: input.PremiumRequired,
		Filters:         input.Filters,
		IsActive:        isActive,
		CreatedBy:       input.CreatedBy,
	}

	query := `
		INSERT INTO oracles (name, description, premium_required, filters, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		oracle.Name,
		nullString(oracle.Description),
		oracle.PremiumRequired,
		filtersJSON,
		oracle.IsActive,
		oracle.CreatedBy,
		now,
	).Scan(&oracle.ID, &oracle.CreatedAt, &oracle.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict(fmt.Sprintf("oracle name %q is already taken", name), nil)
		}
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	return oracle, nil
}

func (r *oracleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Oracle, error) {
	query := `SELECT ` + oracleColumns + ` FROM oracles WHERE id = $1`

	oracle, err := scanOracle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
		}
		return nil, err
	}
	return oracle, nil
}

func (r *oracleRepository) GetByName(ctx context.Context, name string) (*models.Oracle, error) {
	query := `SELECT ` + oracleColumns + ` FROM oracles WHERE name = $1`

	oracle, err := scanOracle(r.db.QueryRow(ctx, query, strings.TrimSpace(name)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Name not taken
		}
		return nil, err
	}
	return oracle, nil
}

func (r *oracleRepository) List(ctx context.Context, activeOnly bool) ([]*models.Oracle, error) {
	query := `SELECT ` + oracleColumns + ` FROM oracles`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query oracles: %w", err)
	}
	defer rows.Close()

	var oracles []*models.Oracle
	for rows.Next() {
		oracle, err := scanOracle(rows)
		if err != nil {
			return nil, err
		}
		oracles = append(oracles, oracle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating oracles: %w", err)
	}

	return oracles, nil
}

func (r *oracleRepository) Update(ctx context.Context, id uuid.UUID, input *models.UpdateOracleInput) (*models.Oracle, error) {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if len(trimmed) < models.MinOracleNameLength {
			return nil, apperrors.Validation(
				fmt.Sprintf("oracle name must be at least %d characters", models.MinOracleNameLength))
		}
		input.Name = &trimmed
	}

	filtersJSON, err := jsonbValue(input.Filters)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE oracles
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    premium_required = COALESCE($4, premium_required),
		    filters = COALESCE($5, filters),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + oracleColumns

	oracle, err := scanOracle(r.db.QueryRow(ctx, query, id, input.Name, input.Description, input.PremiumRequired, filtersJSON))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
		}
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict(fmt.Sprintf("oracle name %q is already taken", *input.Name), nil)
		}
		return nil, err
	}
	return oracle, nil
}

func (r *oracleRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.setActive(ctx, id, false)
}

func (r *oracleRepository) Reactivate(ctx context.Context, id uuid.UUID) error {
	return r.setActive(ctx, id, true)
}

// setActive flips is_active on the oracle and cascades the flag to all its
// items inside one transaction, then refreshes total_weight.
func (r *oracleRepository) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	result, err := tx.Exec(ctx,
		`UPDATE oracles SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update oracle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
	}

	_, err = tx.Exec(ctx,
		`UPDATE oracle_items SET is_active = $2 WHERE oracle_id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to cascade activity flag: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *oracleRepository) Purge(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM oracle_draws WHERE oracle_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete draw history: %w", err)
	}
	// The ledger stays for audit; only the linkage is cleared.
	if _, err := tx.Exec(ctx, `UPDATE oracle_imports SET oracle_id = NULL WHERE oracle_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach import ledger: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM oracle_items WHERE oracle_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM oracles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete oracle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *oracleRepository) Clone(ctx context.Context, id uuid.UUID, newName string, actorID uuid.UUID) (*models.Oracle, error) {
	newName = strings.TrimSpace(newName)
	if len(newName) < models.MinOracleNameLength {
		return nil, apperrors.Validation(
			fmt.Sprintf("oracle name must be at least %d characters", models.MinOracleNameLength))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	source, err := scanOracle(tx.QueryRow(ctx, `SELECT `+oracleColumns+` FROM oracles WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
		}
		return nil, err
	}

	filtersJSON, err := jsonbValue(source.Filters)
	if err != nil {
		return nil, err
	}

	clone := &models.Oracle{
		Name:            newName,
		Description:     source.Description,
		PremiumRequired: source.PremiumRequired,
		Filters:         source.Filters,
		IsActive:        source.IsActive,
		CreatedBy:       &actorID,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO oracles (name, description, premium_required, filters, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		clone.Name,
		nullString(clone.Description),
		clone.PremiumRequired,
		filtersJSON,
		clone.IsActive,
		actorID,
	).Scan(&clone.ID, &clone.CreatedAt, &clone.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict(fmt.Sprintf("oracle name %q is already taken", newName), nil)
		}
		return nil, fmt.Errorf("failed to create clone: %w", err)
	}

	// Inactive items are copied too so the clone is a faithful replica.
	_, err = tx.Exec(ctx, `
		INSERT INTO oracle_items (oracle_id, value, weight, metadata, is_active, created_at)
		SELECT $1, value, weight, metadata, is_active, created_at
		FROM oracle_items
		WHERE oracle_id = $2`, clone.ID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to copy items: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, clone.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	clone.TotalWeight = source.TotalWeight
	return clone, nil
}

// CreateWithItems creates an oracle and inserts its items one by one under
// savepoints. An item failure is accounted and skipped rather than aborting
// the batch; the transaction commits the oracle and every successful item.
func (r *oracleRepository) CreateWithItems(ctx context.Context, oracle *models.CreateOracleInput, items []models.CreateItemInput) (*models.Oracle, *BulkItemResult, error) {
	name := strings.TrimSpace(oracle.Name)
	if len(name) < models.MinOracleNameLength {
		return nil, nil, apperrors.Validation(
			fmt.Sprintf("oracle name must be at least %d characters", models.MinOracleNameLength))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	filtersJSON, err := jsonbValue(oracle.Filters)
	if err != nil {
		return nil, nil, err
	}

	isActive := true
	if oracle.IsActive != nil {
		isActive = *oracle.IsActive
	}

	created := &models.Oracle{
		Name:            name,
		Description:     strings.TrimSpace(oracle.Description),
		PremiumRequired: oracle.PremiumRequired,
		Filters:         oracle.Filters,
		IsActive:        isActive,
		CreatedBy:       oracle.CreatedBy,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO oracles (name, description, premium_required, filters, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		created.Name,
		nullString(created.Description),
		created.PremiumRequired,
		filtersJSON,
		created.IsActive,
		created.CreatedBy,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, apperrors.Conflict(fmt.Sprintf("oracle name %q is already taken", name), nil)
		}
		return nil, nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	result := &BulkItemResult{}
	for i, item := range items {
		if itemErr := r.insertBulkItem(ctx, tx, created.ID, &item); itemErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.ImportItemError{
				Index:   i,
				Value:   strings.TrimSpace(item.Value),
				Message: itemErr.Error(),
			})
			continue
		}
		result.Inserted++
	}

	if err := recomputeTotalWeight(ctx, tx, created.ID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, result, nil
}

// insertBulkItem inserts one item under a savepoint so a failure only rolls
// back that row.
func (r *oracleRepository) insertBulkItem(ctx context.Context, tx pgx.Tx, oracleID uuid.UUID, item *models.CreateItemInput) error {
	value := strings.TrimSpace(item.Value)
	if value == "" {
		return fmt.Errorf("value is empty")
	}

	weight := 1
	if item.Weight != nil {
		weight = *item.Weight
	}
	if weight < 0 {
		return fmt.Errorf("weight must not be negative")
	}

	metadataJSON, err := jsonbValue(item.Metadata)
	if err != nil {
		return err
	}

	isActive := true
	if item.IsActive != nil {
		isActive = *item.IsActive
	}

	sp, err := tx.Begin(ctx) // savepoint
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	_, err = sp.Exec(ctx, `
		INSERT INTO oracle_items (oracle_id, value, weight, metadata, is_active)
		VALUES ($1, $2, $3, $4, $5)`,
		oracleID, value, weight, metadataJSON, isActive)
	if err != nil {
		_ = sp.Rollback(ctx)
		if isUniqueViolation(err) {
			return fmt.Errorf("duplicate value %q", value)
		}
		return fmt.Errorf("insert failed: %w", err)
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func scanOracle(row pgx.Row) (*models.Oracle, error) {
	var o models.Oracle
	var description *string
	var filters []byte

	err := row.Scan(
		&o.ID,
		&o.Name,
		&description,
		&o.PremiumRequired,
		&o.TotalWeight,
		&filters,
		&o.IsActive,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan oracle: %w", err)
	}

	if description != nil {
		o.Description = *description
	}
	if err := unmarshalJSONB(filters, &o.Filters); err != nil {
		return nil, err
	}

	return &o, nil
}

// nullString returns nil if the string is empty, otherwise the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
