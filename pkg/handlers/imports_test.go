package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/services"
)

// stubImports overrides only the import operations each test exercises.
type stubImports struct {
	services.ImportService

	importFn   func(ctx context.Context, data []byte, filename string, mode models.ImportMode, adminID uuid.UUID) (*services.ImportOutcome, error)
	rollbackFn func(ctx context.Context, importID, actorID uuid.UUID) (*services.RollbackOutcome, error)
	listFn     func(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error)
}

func (s *stubImports) ImportFile(ctx context.Context, data []byte, filename string, mode models.ImportMode, adminID uuid.UUID) (*services.ImportOutcome, error) {
	return s.importFn(ctx, data, filename, mode, adminID)
}

func (s *stubImports) RollbackImport(ctx context.Context, importID, actorID uuid.UUID) (*services.RollbackOutcome, error) {
	return s.rollbackFn(ctx, importID, actorID)
}

func (s *stubImports) ListHistory(ctx context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error) {
	return s.listFn(ctx, adminID, limit)
}

func newImportTestHandler(imports services.ImportService) *ImportHandler {
	return NewImportHandler(imports, NewRequestAuth(testSigningKey, zap.NewNop()), 0, zap.NewNop())
}

func TestImportHandler_Import(t *testing.T) {
	adminID := uuid.New()
	adminToken := signTestToken(t, adminID.String(), "admin")

	t.Run("success returns 201", func(t *testing.T) {
		var seenFilename string
		var seenMode models.ImportMode
		var seenAdmin uuid.UUID
		imports := &stubImports{
			importFn: func(_ context.Context, data []byte, filename string, mode models.ImportMode, admin uuid.UUID) (*services.ImportOutcome, error) {
				seenFilename = filename
				seenMode = mode
				seenAdmin = admin
				return &services.ImportOutcome{
					ImportID:      uuid.New(),
					Status:        models.ImportStatusSuccess,
					ItemsImported: len(data), // arbitrary echo for the test
				}, nil
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports?filename=weapons.json", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Import(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "weapons.json", seenFilename)
		assert.Equal(t, models.ImportModeCreate, seenMode)
		assert.Equal(t, adminID, seenAdmin)

		var outcome services.ImportOutcome
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
		assert.Equal(t, models.ImportStatusSuccess, outcome.Status)
	})

	t.Run("partial returns 200", func(t *testing.T) {
		imports := &stubImports{
			importFn: func(context.Context, []byte, string, models.ImportMode, uuid.UUID) (*services.ImportOutcome, error) {
				return &services.ImportOutcome{Status: models.ImportStatusPartial}, nil
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports?filename=weapons.json", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Import(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("explicit mode is forwarded", func(t *testing.T) {
		var seenMode models.ImportMode
		imports := &stubImports{
			importFn: func(_ context.Context, _ []byte, _ string, mode models.ImportMode, _ uuid.UUID) (*services.ImportOutcome, error) {
				seenMode = mode
				return &services.ImportOutcome{Status: models.ImportStatusSuccess}, nil
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports?filename=w.json&mode=MERGE", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Import(rec, req)

		assert.Equal(t, models.ImportMode("MERGE"), seenMode)
	})

	t.Run("missing filename rejected", func(t *testing.T) {
		handler := newImportTestHandler(&stubImports{})

		req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Import(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate hash maps to conflict", func(t *testing.T) {
		imports := &stubImports{
			importFn: func(context.Context, []byte, string, models.ImportMode, uuid.UUID) (*services.ImportOutcome, error) {
				return nil, apperrors.Conflict("this file was already imported", apperrors.ErrDuplicateImport)
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports?filename=weapons.json", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Import(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("non-admin denied", func(t *testing.T) {
		handler := newImportTestHandler(&stubImports{})

		for _, token := range []string{"", signTestToken(t, uuid.NewString(), "premium")} {
			req := httptest.NewRequest(http.MethodPost, "/api/imports?filename=weapons.json", strings.NewReader(`{}`))
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()

			handler.Import(rec, req)

			assert.Equal(t, http.StatusForbidden, rec.Code)
		}
	})
}

func TestImportHandler_List(t *testing.T) {
	adminID := uuid.New()
	adminToken := signTestToken(t, adminID.String(), "admin")

	var seenAdmin *uuid.UUID
	var seenLimit int
	imports := &stubImports{
		listFn: func(_ context.Context, admin *uuid.UUID, limit int) ([]*models.ImportRecord, error) {
			seenAdmin = admin
			seenLimit = limit
			return []*models.ImportRecord{}, nil
		},
	}
	handler := newImportTestHandler(imports)

	t.Run("unfiltered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/imports?limit=25", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, seenAdmin)
		assert.Equal(t, 25, seenLimit)
	})

	t.Run("mine filters to the caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/imports?mine=true", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		require.NotNil(t, seenAdmin)
		assert.Equal(t, adminID, *seenAdmin)
	})
}

func TestImportHandler_Rollback(t *testing.T) {
	adminID := uuid.New()
	importID := uuid.New()
	adminToken := signTestToken(t, adminID.String(), "admin")

	t.Run("success", func(t *testing.T) {
		imports := &stubImports{
			rollbackFn: func(_ context.Context, id, actor uuid.UUID) (*services.RollbackOutcome, error) {
				assert.Equal(t, importID, id)
				assert.Equal(t, adminID, actor)
				return &services.RollbackOutcome{ImportID: id, ItemsDeleted: 3}, nil
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports/"+importID.String()+"/rollback", nil)
		req.SetPathValue("id", importID.String())
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Rollback(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var outcome services.RollbackOutcome
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
		assert.Equal(t, int64(3), outcome.ItemsDeleted)
	})

	t.Run("non-rollbackable maps to conflict", func(t *testing.T) {
		imports := &stubImports{
			rollbackFn: func(context.Context, uuid.UUID, uuid.UUID) (*services.RollbackOutcome, error) {
				return nil, apperrors.Conflict("import cannot be rolled back", nil)
			},
		}
		handler := newImportTestHandler(imports)

		req := httptest.NewRequest(http.MethodPost, "/api/imports/"+importID.String()+"/rollback", nil)
		req.SetPathValue("id", importID.String())
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Rollback(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		handler := newImportTestHandler(&stubImports{})

		req := httptest.NewRequest(http.MethodPost, "/api/imports/nope/rollback", nil)
		req.SetPathValue("id", "nope")
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()

		handler.Rollback(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
