package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/database"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// DrawHistoryRepository provides append-only access to the draw audit log.
type DrawHistoryRepository interface {
	Create(ctx context.Context, record *models.DrawRecord) error
	ListByOracle(ctx context.Context, oracleID uuid.UUID, limit int) ([]*models.DrawRecord, error)
}

type drawHistoryRepository struct {
	db *database.DB
}

// NewDrawHistoryRepository creates a new DrawHistoryRepository.
func NewDrawHistoryRepository(db *database.DB) DrawHistoryRepository {
	return &drawHistoryRepository{db: db}
}

var _ DrawHistoryRepository = (*drawHistoryRepository)(nil)

func (r *drawHistoryRepository) Create(ctx context.Context, record *models.DrawRecord) error {
	resultsJSON, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal draw results: %w", err)
	}

	filtersJSON, err := jsonbValue(record.Filters)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO oracle_draws (oracle_id, user_id, session_id, results, filters, draw_count, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		record.OracleID,
		record.UserID,
		nullString(record.SessionID),
		resultsJSON,
		filtersJSON,
		record.DrawCount,
		nullString(record.ClientIP),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draw record: %w", err)
	}

	return nil
}

func (r *drawHistoryRepository) ListByOracle(ctx context.Context, oracleID uuid.UUID, limit int) ([]*models.DrawRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, oracle_id, user_id, session_id, results, filters, draw_count, client_ip, created_at
		FROM oracle_draws
		WHERE oracle_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, oracleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query draw history: %w", err)
	}
	defer rows.Close()

	var records []*models.DrawRecord
	for rows.Next() {
		var rec models.DrawRecord
		var sessionID, clientIP *string
		var results, filters []byte

		err := rows.Scan(
			&rec.ID,
			&rec.OracleID,
			&rec.UserID,
			&sessionID,
			&results,
			&filters,
			&rec.DrawCount,
			&clientIP,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw record: %w", err)
		}

		if sessionID != nil {
			rec.SessionID = *sessionID
		}
		if clientIP != nil {
			rec.ClientIP = *clientIP
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &rec.Results); err != nil {
				return nil, fmt.Errorf("failed to unmarshal draw results: %w", err)
			}
		}
		if err := unmarshalJSONB(filters, &rec.Filters); err != nil {
			return nil, err
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draw history: %w", err)
	}

	return records, nil
}
