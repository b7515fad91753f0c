package repositories

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/database"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// ItemRepository provides data access for oracle items, keeping the owning
// oracle's total_weight in sync with every mutation.
type ItemRepository interface {
	Create(ctx context.Context, input *models.CreateItemInput) (*models.Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListByOracle(ctx context.Context, oracleID uuid.UUID, activeOnly bool) ([]*models.Item, error)
	Update(ctx context.Context, id uuid.UUID, input *models.UpdateItemInput) (*models.Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateWeights(ctx context.Context, oracleID uuid.UUID, weights map[uuid.UUID]int) error
	NormalizeWeights(ctx context.Context, oracleID uuid.UUID) error
	DeactivateByOracle(ctx context.Context, oracleID uuid.UUID) error
	ReactivateByOracle(ctx context.Context, oracleID uuid.UUID) error
	DeleteByOracle(ctx context.Context, oracleID uuid.UUID) error
}

type itemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *database.DB) ItemRepository {
	return &itemRepository{db: db}
}

var _ ItemRepository = (*itemRepository)(nil)

const itemColumns = `id, oracle_id, value, weight, metadata, is_active, created_at`

func (r *itemRepository) Create(ctx context.Context, input *models.CreateItemInput) (*models.Item, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return nil, apperrors.Validation("item value must not be empty")
	}

	weight := 1
	if input.Weight != nil {
		weight = *input.Weight
	}
	if weight < 0 {
		return nil, apperrors.Validation("item weight must not be negative")
	}

	metadataJSON, err := jsonbValue(input.Metadata)
	if err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	item := &models.Item{
		OracleID: input.OracleID,
		Value:    value,
		Weight:   weight,
		Metadata: input.Metadata,
		IsActive: isActive,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO oracle_items (oracle_id, value, weight, metadata, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		item.OracleID, item.Value, item.Weight, metadataJSON, item.IsActive,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict(
				fmt.Sprintf("item value %q already exists in this oracle", value), nil)
		}
		if isForeignKeyViolation(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", input.OracleID))
		}
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, item.OracleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return item, nil
}

func (r *itemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM oracle_items WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("item %s not found", id))
		}
		return nil, err
	}
	return item, nil
}

// ListByOracle returns items in insertion order so cumulative-weight
// sampling is deterministic under a fixed random source.
func (r *itemRepository) ListByOracle(ctx context.Context, oracleID uuid.UUID, activeOnly bool) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM oracle_items WHERE oracle_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, oracleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func (r *itemRepository) Update(ctx context.Context, id uuid.UUID, input *models.UpdateItemInput) (*models.Item, error) {
	if input.Value != nil {
		trimmed := strings.TrimSpace(*input.Value)
		if trimmed == "" {
			return nil, apperrors.Validation("item value must not be empty")
		}
		input.Value = &trimmed
	}
	if input.Weight != nil && *input.Weight < 0 {
		return nil, apperrors.Validation("item weight must not be negative")
	}

	metadataJSON, err := jsonbValue(input.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	item, err := scanItem(tx.QueryRow(ctx, `
		UPDATE oracle_items
		SET value = COALESCE($2, value),
		    weight = COALESCE($3, weight),
		    metadata = COALESCE($4, metadata),
		    is_active = COALESCE($5, is_active)
		WHERE id = $1
		RETURNING `+itemColumns,
		id, input.Value, input.Weight, metadataJSON, input.IsActive))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("item %s not found", id))
		}
		if isUniqueViolation(err) {
			value := ""
			if input.Value != nil {
				value = *input.Value
			}
			return nil, apperrors.Conflict(
				fmt.Sprintf("item value %q already exists in this oracle", value), nil)
		}
		return nil, err
	}

	if err := recomputeTotalWeight(ctx, tx, item.OracleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return item, nil
}

func (r *itemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	var oracleID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM oracle_items WHERE id = $1 RETURNING oracle_id`, id).Scan(&oracleID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NotFound(fmt.Sprintf("item %s not found", id))
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, oracleID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateWeights applies a batch of weight changes in one transaction so
// either every requested weight changes or none do.
func (r *itemRepository) UpdateWeights(ctx context.Context, oracleID uuid.UUID, weights map[uuid.UUID]int) error {
	for id, weight := range weights {
		if weight < 0 {
			return apperrors.Validation(fmt.Sprintf("weight for item %s must not be negative", id))
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	for id, weight := range weights {
		result, err := tx.Exec(ctx, `
			UPDATE oracle_items SET weight = $2
			WHERE id = $1 AND oracle_id = $3`, id, weight, oracleID)
		if err != nil {
			return fmt.Errorf("failed to update weight for item %s: %w", id, err)
		}
		if result.RowsAffected() == 0 {
			return apperrors.NotFound(fmt.Sprintf("item %s not found in oracle %s", id, oracleID))
		}
	}

	if err := recomputeTotalWeight(ctx, tx, oracleID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NormalizeWeights rescales active item weights proportionally so they sum
// to ~100, each rounded to the nearest integer and floored at 1. No-op when
// there are no active items or the active sum is zero.
func (r *itemRepository) NormalizeWeights(ctx context.Context, oracleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	rows, err := tx.Query(ctx, `
		SELECT id, weight FROM oracle_items
		WHERE oracle_id = $1 AND is_active = true
		ORDER BY created_at, id`, oracleID)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}

	type weighted struct {
		id     uuid.UUID
		weight int
	}
	var items []weighted
	total := 0
	for rows.Next() {
		var w weighted
		if err := rows.Scan(&w.id, &w.weight); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan item weight: %w", err)
		}
		items = append(items, w)
		total += w.weight
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating item weights: %w", err)
	}

	if len(items) == 0 || total == 0 {
		return nil // Nothing to rescale
	}

	for _, item := range items {
		normalized := int(math.Round(float64(item.weight) * 100 / float64(total)))
		if normalized < 1 {
			normalized = 1
		}
		if _, err := tx.Exec(ctx,
			`UPDATE oracle_items SET weight = $2 WHERE id = $1`, item.id, normalized); err != nil {
			return fmt.Errorf("failed to normalize weight for item %s: %w", item.id, err)
		}
	}

	if err := recomputeTotalWeight(ctx, tx, oracleID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *itemRepository) DeactivateByOracle(ctx context.Context, oracleID uuid.UUID) error {
	return r.setActiveByOracle(ctx, oracleID, false)
}

func (r *itemRepository) ReactivateByOracle(ctx context.Context, oracleID uuid.UUID) error {
	return r.setActiveByOracle(ctx, oracleID, true)
}

func (r *itemRepository) setActiveByOracle(ctx context.Context, oracleID uuid.UUID, active bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx,
		`UPDATE oracle_items SET is_active = $2 WHERE oracle_id = $1`, oracleID, active); err != nil {
		return fmt.Errorf("failed to update items: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, oracleID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *itemRepository) DeleteByOracle(ctx context.Context, oracleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx,
		`DELETE FROM oracle_items WHERE oracle_id = $1`, oracleID); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}

	if err := recomputeTotalWeight(ctx, tx, oracleID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var i models.Item
	var metadata []byte

	err := row.Scan(
		&i.ID,
		&i.OracleID,
		&i.Value,
		&i.Weight,
		&metadata,
		&i.IsActive,
		&i.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	if err := unmarshalJSONB(metadata, &i.Metadata); err != nil {
		return nil, err
	}

	return &i, nil
}
