package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
)

// importDocument is the canonical shape every import format parses into.
type importDocument struct {
	Oracle importOracle `json:"oracle"`
	Items  []importItem `json:"items"`
}

type importOracle struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	PremiumRequired bool           `json:"premium_required,omitempty"`
	Filters         map[string]any `json:"filters,omitempty"`
	IsActive        *bool          `json:"is_active,omitempty"`
}

type importItem struct {
	Value    string         `json:"value"`
	Weight   *float64       `json:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IsActive *bool          `json:"is_active,omitempty"`
}

// parseImportJSON decodes a JSON import document.
func parseImportJSON(data []byte) (*importDocument, error) {
	var doc importDocument
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return &doc, nil
}

// parseImportCSV translates header+rows into the canonical document. The
// value column is mandatory; weight and is_active are recognized when
// present; every other column folds into per-item metadata. The oracle
// name falls back to the filename stem.
func parseImportCSV(data []byte, filename string) (*importDocument, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // rows may omit trailing metadata columns

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	header := records[0]
	valueCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "value") {
			valueCol = i
			break
		}
	}
	if valueCol < 0 {
		return nil, fmt.Errorf("CSV header is missing the value column")
	}

	doc := &importDocument{
		Oracle: importOracle{Name: filenameStem(filename)},
	}

	for rowIdx, row := range records[1:] {
		item := importItem{}
		for colIdx, raw := range row {
			if colIdx >= len(header) {
				break
			}
			col := strings.ToLower(strings.TrimSpace(header[colIdx]))
			cell := strings.TrimSpace(raw)

			switch col {
			case "value":
				item.Value = cell
			case "weight":
				if cell == "" {
					continue
				}
				weight, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: weight %q is not a number", rowIdx+1, cell)
				}
				item.Weight = &weight
			case "is_active":
				if cell == "" {
					continue
				}
				active, err := strconv.ParseBool(cell)
				if err != nil {
					return nil, fmt.Errorf("row %d: is_active %q is not a boolean", rowIdx+1, cell)
				}
				item.IsActive = &active
			default:
				if cell == "" {
					continue
				}
				if item.Metadata == nil {
					item.Metadata = make(map[string]any)
				}
				item.Metadata[header[colIdx]] = cell
			}
		}
		doc.Items = append(doc.Items, item)
	}

	return doc, nil
}

// filenameStem strips the directory and extension from an upload filename.
func filenameStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// validateImportDocument checks the canonical document structurally.
// Returns every problem found rather than stopping at the first.
func validateImportDocument(doc *importDocument) []string {
	var problems []string

	if strings.TrimSpace(doc.Oracle.Name) == "" {
		problems = append(problems, "oracle name is required")
	} else if len(strings.TrimSpace(doc.Oracle.Name)) < models.MinOracleNameLength {
		problems = append(problems, fmt.Sprintf(
			"oracle name must be at least %d characters", models.MinOracleNameLength))
	}

	if len(doc.Items) == 0 {
		problems = append(problems, "items must be a non-empty array")
	}

	for i, item := range doc.Items {
		if strings.TrimSpace(item.Value) == "" {
			problems = append(problems, fmt.Sprintf("item %d: value is required", i))
		}
		if item.Weight != nil {
			if *item.Weight < 0 {
				problems = append(problems, fmt.Sprintf("item %d: weight must not be negative", i))
			} else if *item.Weight != float64(int(*item.Weight)) {
				problems = append(problems, fmt.Sprintf("item %d: weight must be an integer", i))
			}
		}
	}

	return problems
}

// toCreateInputs converts a validated document into store inputs.
func (doc *importDocument) toCreateInputs() []models.CreateItemInput {
	inputs := make([]models.CreateItemInput, 0, len(doc.Items))
	for _, item := range doc.Items {
		input := models.CreateItemInput{
			Value:    item.Value,
			Metadata: item.Metadata,
			IsActive: item.IsActive,
		}
		if item.Weight != nil {
			weight := int(*item.Weight)
			input.Weight = &weight
		}
		inputs = append(inputs, input)
	}
	return inputs
}
