package models

import (
	"time"

	"github.com/google/uuid"
)

// Selection is one drawn item, snapshotted at draw time.
type Selection struct {
	ItemID   uuid.UUID      `json:"item_id"`
	Value    string         `json:"value"`
	Weight   *int           `json:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DrawRecord is the immutable audit entry for one draw call.
// Stored append-only in the oracle_draws table; its write is best-effort
// and never fails the draw itself.
type DrawRecord struct {
	ID        uuid.UUID      `json:"id"`
	OracleID  uuid.UUID      `json:"oracle_id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Results   []Selection    `json:"results"`
	Filters   map[string]any `json:"filters,omitempty"`
	DrawCount int            `json:"draw_count"`
	ClientIP  string         `json:"client_ip,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
