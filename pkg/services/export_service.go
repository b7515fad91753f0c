package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// ExportFormatVersion identifies the JSON export envelope layout so a future
// importer can detect and migrate older exports.
const ExportFormatVersion = "1.0"

// exportEnvelope is the JSON export document. Its oracle and items sections
// mirror the import document so an export can be re-imported as-is.
type exportEnvelope struct {
	Oracle exportOracle `json:"oracle"`
	Items  []exportItem `json:"items"`
	Export exportInfo   `json:"export_info"`
}

type exportOracle struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	PremiumRequired bool           `json:"premium_required"`
	Filters         map[string]any `json:"filters,omitempty"`
	IsActive        bool           `json:"is_active"`
}

type exportItem struct {
	Value    string         `json:"value"`
	Weight   int            `json:"weight"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IsActive bool           `json:"is_active"`
}

type exportInfo struct {
	ExportedAt    time.Time `json:"exported_at"`
	TotalItems    int       `json:"total_items"`
	TotalWeight   int       `json:"total_weight"`
	FormatVersion string    `json:"format_version"`
}

// ExportService serializes an oracle and its items to a portable document.
type ExportService interface {
	// ExportJSON renders the oracle as an indented JSON envelope that can
	// be fed back through the import pipeline.
	ExportJSON(ctx context.Context, oracleID uuid.UUID) ([]byte, string, error)

	// ExportCSV renders the oracle's items as CSV with one column per
	// distinct metadata key.
	ExportCSV(ctx context.Context, oracleID uuid.UUID) ([]byte, string, error)
}

type exportService struct {
	oracleRepo repositories.OracleRepository
	itemRepo   repositories.ItemRepository
	logger     *zap.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(
	oracleRepo repositories.OracleRepository,
	itemRepo repositories.ItemRepository,
	logger *zap.Logger,
) ExportService {
	return &exportService{
		oracleRepo: oracleRepo,
		itemRepo:   itemRepo,
		logger:     logger.Named("export-service"),
	}
}

var _ ExportService = (*exportService)(nil)

func (s *exportService) ExportJSON(ctx context.Context, oracleID uuid.UUID) ([]byte, string, error) {
	oracle, items, err := s.load(ctx, oracleID)
	if err != nil {
		return nil, "", err
	}

	envelope := exportEnvelope{
		Oracle: exportOracle{
			Name:            oracle.Name,
			Description:     oracle.Description,
			PremiumRequired: oracle.PremiumRequired,
			Filters:         oracle.Filters,
			IsActive:        oracle.IsActive,
		},
		Export: exportInfo{
			ExportedAt:    time.Now().UTC(),
			TotalItems:    len(items),
			TotalWeight:   oracle.TotalWeight,
			FormatVersion: ExportFormatVersion,
		},
	}
	for _, item := range items {
		envelope.Items = append(envelope.Items, exportItem{
			Value:    item.Value,
			Weight:   item.Weight,
			Metadata: item.Metadata,
			IsActive: item.IsActive,
		})
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal export document: %w", err)
	}

	return data, exportFilename(oracle.Name, "json"), nil
}

func (s *exportService) ExportCSV(ctx context.Context, oracleID uuid.UUID) ([]byte, string, error) {
	oracle, items, err := s.load(ctx, oracleID)
	if err != nil {
		return nil, "", err
	}

	metaKeys := collectMetadataKeys(items)

	var buf bytes.Buffer
	header := append([]string{"value", "weight", "is_active"}, metaKeys...)
	writeCSVRow(&buf, header)

	for _, item := range items {
		row := []string{
			item.Value,
			strconv.Itoa(item.Weight),
			strconv.FormatBool(item.IsActive),
		}
		for _, key := range metaKeys {
			row = append(row, metadataCell(item.Metadata[key]))
		}
		writeCSVRow(&buf, row)
	}

	return buf.Bytes(), exportFilename(oracle.Name, "csv"), nil
}

func (s *exportService) load(ctx context.Context, oracleID uuid.UUID) (*models.Oracle, []*models.Item, error) {
	oracle, err := s.oracleRepo.GetByID(ctx, oracleID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.itemRepo.ListByOracle(ctx, oracleID, false)
	if err != nil {
		return nil, nil, err
	}
	return oracle, items, nil
}

// collectMetadataKeys returns the sorted union of metadata keys so the CSV
// header is stable across exports of the same oracle.
func collectMetadataKeys(items []*models.Item) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for key := range item.Metadata {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// writeCSVRow emits one row with every field quoted. encoding/csv only
// quotes when forced to, which breaks diff-based comparisons of exports
// that carry leading or trailing whitespace in values.
func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

// metadataCell renders a metadata value for CSV. Scalars print naturally;
// anything structured falls back to its JSON encoding.
func metadataCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func exportFilename(oracleName, ext string) string {
	slug := strings.ToLower(strings.TrimSpace(oracleName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "oracle"
	}
	return fmt.Sprintf("%s-%s.%s", slug, time.Now().UTC().Format("20060102"), ext)
}
