package models

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys flagged internal-only. Stripped from payloads served to
// standard-role callers.
const (
	MetadataKeyAdminOnly = "admin_only"
	MetadataKeyInternal  = "internal"
)

// Item is one weighted entry belonging to exactly one oracle.
// Stored in the oracle_items table.
type Item struct {
	ID       uuid.UUID `json:"id"`
	OracleID uuid.UUID `json:"oracle_id"`
	Value    string    `json:"value"`

	// Weight is a non-negative integer controlling relative selection
	// probability. Zero-weight items are only drawable through the
	// uniform fallback when every active weight is zero.
	Weight int `json:"weight"`

	// Metadata is an arbitrary key/value map used for draw filtering.
	Metadata map[string]any `json:"metadata,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateItemInput is the writable field set for item creation.
type CreateItemInput struct {
	OracleID uuid.UUID
	Value    string
	Weight   *int // nil defaults to 1
	Metadata map[string]any
	IsActive *bool // nil defaults to true
}

// UpdateItemInput is the writable field set for item updates.
// Nil pointers leave the stored value untouched.
type UpdateItemInput struct {
	Value    *string
	Weight   *int
	Metadata map[string]any
	IsActive *bool
}

// MatchesFilters evaluates the generic filter predicate against the item's
// metadata: for each filter key the metadata value must equal the filter
// value, or be a member when the filter value is an array ("any of").
func (i *Item) MatchesFilters(filters map[string]any) bool {
	if len(filters) == 0 {
		return true
	}
	for key, want := range filters {
		have, ok := i.Metadata[key]
		if !ok {
			return false
		}
		if !filterValueMatches(have, want) {
			return false
		}
	}
	return true
}

func filterValueMatches(have, want any) bool {
	switch w := want.(type) {
	case []any:
		for _, candidate := range w {
			if scalarEqual(have, candidate) {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range w {
			if scalarEqual(have, candidate) {
				return true
			}
		}
		return false
	default:
		return scalarEqual(have, want)
	}
}

// scalarEqual compares two metadata scalars. JSON decoding yields float64
// for every number, so integer values are normalized before comparing.
func scalarEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
