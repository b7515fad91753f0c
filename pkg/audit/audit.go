// Package audit provides structured audit logging for catalog mutations.
// Events are logged in structured JSON format for easy parsing and
// integration with log aggregation systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// EventType categorizes audit events for filtering and alerting.
type EventType string

const (
	// EventImportCompleted is logged when an import attempt reaches a
	// terminal status (SUCCESS, PARTIAL or FAILED).
	EventImportCompleted EventType = "import_completed"
	// EventImportRolledBack is logged when a prior import is reversed.
	EventImportRolledBack EventType = "import_rolled_back"
	// EventOraclePurged is logged when an oracle and its rows are deleted.
	EventOraclePurged EventType = "oracle_purged"
)

// Event represents an auditable catalog mutation with the context needed
// to reconstruct who changed what, and when.
type Event struct {
	Timestamp time.Time  `json:"timestamp"`
	EventType EventType  `json:"event_type"`
	ActorID   uuid.UUID  `json:"actor_id"`
	ImportID  *uuid.UUID `json:"import_id,omitempty"`
	OracleID  *uuid.UUID `json:"oracle_id,omitempty"`
	Details   any        `json:"details"`
	Severity  string     `json:"severity"` // info, warning
}

// Auditor logs catalog mutation events.
type Auditor struct {
	logger *zap.Logger
}

// NewAuditor creates an auditor with a dedicated logger namespace so audit
// lines are easy to filter downstream.
func NewAuditor(logger *zap.Logger) *Auditor {
	return &Auditor{logger: logger.Named("audit")}
}

// LogImportCompleted records a finished import attempt. PARTIAL and FAILED
// outcomes are logged at WARN level so they surface in monitoring.
func (a *Auditor) LogImportCompleted(ctx context.Context, record *models.ImportRecord) {
	severity := "info"
	if record.Status != models.ImportStatusSuccess {
		severity = "warning"
	}

	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventImportCompleted,
		ActorID:   record.AdminID,
		ImportID:  &record.ID,
		OracleID:  record.OracleID,
		Details: map[string]any{
			"filename":       record.Filename,
			"file_hash":      record.FileHash,
			"status":         record.Status,
			"items_imported": record.ItemsImported,
			"items_failed":   record.ItemsFailed,
		},
		Severity: severity,
	}

	// Marshaling known types should never fail.
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("import_id", record.ID.String()),
		zap.String("admin_id", record.AdminID.String()),
		zap.String("filename", record.Filename),
		zap.String("status", string(record.Status)),
		zap.Int("items_imported", record.ItemsImported),
		zap.Int("items_failed", record.ItemsFailed),
		zap.String("severity", severity),
	}
	if severity == "info" {
		a.logger.Info("import completed", fields...)
	} else {
		a.logger.Warn("import completed", fields...)
	}
}

// LogImportRolledBack records the reversal of a prior import.
func (a *Auditor) LogImportRolledBack(ctx context.Context, importID, actorID, oracleID uuid.UUID, itemsDeleted int64) {
	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventImportRolledBack,
		ActorID:   actorID,
		ImportID:  &importID,
		OracleID:  &oracleID,
		Details: map[string]any{
			"items_deleted": itemsDeleted,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("import rolled back",
		zap.String("event_json", string(eventJSON)),
		zap.String("import_id", importID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("oracle_id", oracleID.String()),
		zap.Int64("items_deleted", itemsDeleted),
		zap.String("severity", "warning"),
	)
}

// LogOraclePurged records the hard deletion of an oracle.
func (a *Auditor) LogOraclePurged(ctx context.Context, oracleID, actorID uuid.UUID, name string) {
	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventOraclePurged,
		ActorID:   actorID,
		OracleID:  &oracleID,
		Details: map[string]any{
			"name": name,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("oracle purged",
		zap.String("event_json", string(eventJSON)),
		zap.String("oracle_id", oracleID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("name", name),
		zap.String("severity", "warning"),
	)
}
