package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportType identifies the parsed file format.
type ImportType string

const (
	ImportTypeJSON ImportType = "JSON"
	ImportTypeCSV  ImportType = "CSV"
)

// ImportMode controls how imported content is persisted. Only CREATE is
// executable; REPLACE and MERGE are accepted as values but rejected at
// execution time.
type ImportMode string

const (
	ImportModeCreate  ImportMode = "CREATE"
	ImportModeReplace ImportMode = "REPLACE"
	ImportModeMerge   ImportMode = "MERGE"
)

// Valid reports whether the mode is a known enum value.
func (m ImportMode) Valid() bool {
	return m == ImportModeCreate || m == ImportModeReplace || m == ImportModeMerge
}

// ImportStatus is the ledger state of one import attempt. Transitions are
// monotonic: PENDING moves to exactly one of SUCCESS/PARTIAL/FAILED, and
// only SUCCESS/PARTIAL may later move to CANCELLED via rollback.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "PENDING"
	ImportStatusSuccess   ImportStatus = "SUCCESS"
	ImportStatusPartial   ImportStatus = "PARTIAL"
	ImportStatusFailed    ImportStatus = "FAILED"
	ImportStatusCancelled ImportStatus = "CANCELLED"
)

// CanRollback reports whether a record in this status may be rolled back.
func (s ImportStatus) CanRollback() bool {
	return s == ImportStatusSuccess || s == ImportStatusPartial
}

// ImportItemError describes one failed row of an import.
type ImportItemError struct {
	Index   int    `json:"index"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ImportRecord is the append-only ledger entry for one import attempt.
// Stored in the oracle_imports table.
type ImportRecord struct {
	ID             uuid.UUID         `json:"id"`
	AdminID        uuid.UUID         `json:"admin_id"`
	Filename       string            `json:"filename"`
	FileSize       int64             `json:"file_size"`
	FileHash       string            `json:"file_hash"`
	ImportType     ImportType        `json:"import_type"`
	ImportMode     ImportMode        `json:"import_mode"`
	ItemsImported  int               `json:"items_imported"`
	ItemsFailed    int               `json:"items_failed"`
	Errors         []ImportItemError `json:"errors,omitempty"`
	Status         ImportStatus      `json:"status"`
	ProcessingMS   int64             `json:"processing_time_ms"`
	OracleID       *uuid.UUID        `json:"oracle_id,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}
