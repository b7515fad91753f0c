// Package repositories provides PostgreSQL data access for oracles, items,
// draw history, and the import ledger.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier abstracts a pool, connection, or transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// recomputeTotalWeight refreshes the derived total_weight of an oracle from
// its active items. Must run inside the same transaction as the item
// mutation it follows.
func recomputeTotalWeight(ctx context.Context, q querier, oracleID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE oracles
		SET total_weight = (
			SELECT COALESCE(SUM(weight), 0)
			FROM oracle_items
			WHERE oracle_id = $1 AND is_active = true
		), updated_at = now()
		WHERE id = $1`, oracleID)
	if err != nil {
		return fmt.Errorf("failed to recompute total weight: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// jsonbValue marshals a map for JSONB insertion, storing NULL for empty maps.
func jsonbValue(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	return data, nil
}

// unmarshalJSONB decodes a JSONB column into a map, tolerating NULL.
func unmarshalJSONB(data []byte, target *map[string]any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}
	return nil
}
