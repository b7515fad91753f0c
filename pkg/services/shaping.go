package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/auth"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// OraclePayload is the outbound projection of an oracle. Privileged fields
// are pointers so they drop out of JSON entirely for standard callers.
type OraclePayload struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	PremiumRequired bool           `json:"premium_required"`
	TotalWeight     *int           `json:"total_weight,omitempty"`
	Filters         map[string]any `json:"filters,omitempty"`
	IsActive        bool           `json:"is_active"`
	CreatedBy       *uuid.UUID     `json:"created_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ItemPayload is the outbound projection of an item.
type ItemPayload struct {
	ID        uuid.UUID      `json:"id"`
	OracleID  uuid.UUID      `json:"oracle_id"`
	Value     string         `json:"value"`
	Weight    *int           `json:"weight,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

// ShapeOracle projects an oracle for the given role. Standard callers lose
// the weight total, the filters definition, and the creator reference.
// The stored record is never mutated.
func ShapeOracle(oracle *models.Oracle, role auth.Role) *OraclePayload {
	payload := &OraclePayload{
		ID:              oracle.ID,
		Name:            oracle.Name,
		Description:     oracle.Description,
		PremiumRequired: oracle.PremiumRequired,
		IsActive:        oracle.IsActive,
		CreatedAt:       oracle.CreatedAt,
		UpdatedAt:       oracle.UpdatedAt,
	}
	if role.CanViewWeights() {
		total := oracle.TotalWeight
		payload.TotalWeight = &total
		payload.Filters = oracle.Filters
		payload.CreatedBy = oracle.CreatedBy
	}
	return payload
}

// ShapeItem projects an item for the given role. Standard callers lose the
// weight and any internal-only metadata keys.
func ShapeItem(item *models.Item, role auth.Role) *ItemPayload {
	payload := &ItemPayload{
		ID:        item.ID,
		OracleID:  item.OracleID,
		Value:     item.Value,
		Metadata:  shapeMetadata(item.Metadata, role),
		IsActive:  item.IsActive,
		CreatedAt: item.CreatedAt,
	}
	if role.CanViewWeights() {
		weight := item.Weight
		payload.Weight = &weight
	}
	return payload
}

// ShapeSelections projects draw selections for the given role. Returns
// fresh copies; the sampled snapshots are left untouched.
func ShapeSelections(selections []models.Selection, role auth.Role) []models.Selection {
	shaped := make([]models.Selection, len(selections))
	for i, sel := range selections {
		shaped[i] = models.Selection{
			ItemID:   sel.ItemID,
			Value:    sel.Value,
			Metadata: shapeMetadata(sel.Metadata, role),
		}
		if role.CanViewWeights() && sel.Weight != nil {
			weight := *sel.Weight
			shaped[i].Weight = &weight
		}
	}
	return shaped
}

// shapeMetadata copies metadata, dropping internal-only keys for standard
// callers. A copy is returned even for privileged roles so callers can
// never mutate the stored map through the payload.
func shapeMetadata(metadata map[string]any, role auth.Role) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	shaped := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if !role.CanViewWeights() && isInternalKey(key) {
			continue
		}
		shaped[key] = value
	}
	if len(shaped) == 0 {
		return nil
	}
	return shaped
}

func isInternalKey(key string) bool {
	return key == models.MetadataKeyAdminOnly || key == models.MetadataKeyInternal
}
