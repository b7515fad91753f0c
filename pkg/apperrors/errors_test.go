package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf_TypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"validation", Validation("count out of range"), CategoryValidation},
		{"permission", Permission("premium required"), CategoryPermission},
		{"not found", NotFound("oracle not found"), CategoryNotFound},
		{"conflict", Conflict("name taken", nil), CategoryConflict},
		{"infrastructure", Infrastructure("tx failed", errors.New("boom")), CategoryInfrastructure},
		{"uncategorized", errors.New("boom"), CategoryInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryOf(tt.err))
		})
	}
}

func TestCategoryOf_Sentinels(t *testing.T) {
	assert.Equal(t, CategoryNotFound, CategoryOf(ErrNotFound))
	assert.Equal(t, CategoryConflict, CategoryOf(ErrDuplicateImport))
	assert.Equal(t, CategoryValidation, CategoryOf(ErrUnsupportedMode))
}

func TestErrorsIs_ThroughCategory(t *testing.T) {
	err := NotFound("oracle abc not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestErrorsIs_ThroughWrapping(t *testing.T) {
	err := Conflict("duplicate import", ErrDuplicateImport)
	assert.True(t, errors.Is(err, ErrDuplicateImport))

	wrapped := fmt.Errorf("import failed: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDuplicateImport))
	assert.Equal(t, CategoryConflict, CategoryOf(wrapped))
}

func TestValidation_CarriesDetails(t *testing.T) {
	err := Validation("file is invalid", "oracle name is required", "item 3: value is empty")
	assert.Len(t, err.Details, 2)
	assert.True(t, errors.Is(err, ErrValidation))
}
