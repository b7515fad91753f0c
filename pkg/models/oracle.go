package models

import (
	"time"

	"github.com/google/uuid"
)

// MinOracleNameLength is the minimum length of a trimmed oracle name.
const MinOracleNameLength = 3

// Oracle is a named weighted collection of items.
// Stored in the oracles table.
type Oracle struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	PremiumRequired bool      `json:"premium_required"`

	// TotalWeight is the sum of weight over active items. It is recomputed
	// by every transaction that touches item weight or activity, never
	// hand-edited.
	TotalWeight int `json:"total_weight"`

	// Filters describes the filter dimensions available on this oracle's
	// item metadata. Opaque to the engine; consumed by clients.
	Filters map[string]any `json:"filters,omitempty"`

	IsActive  bool       `json:"is_active"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateOracleInput is the writable field set for oracle creation.
type CreateOracleInput struct {
	Name            string
	Description     string
	PremiumRequired bool
	Filters         map[string]any
	IsActive        *bool // nil defaults to true
	CreatedBy       *uuid.UUID
}

// UpdateOracleInput is the writable field set for oracle updates.
// Nil pointers leave the stored value untouched.
type UpdateOracleInput struct {
	Name            *string
	Description     *string
	PremiumRequired *bool
	Filters         map[string]any
}
