package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

const validImportJSON = `{
	"oracle": {"name": "Weapons", "description": "Loot table"},
	"items": [
		{"value": "Sword", "weight": 50},
		{"value": "Shield", "weight": 30},
		{"value": "Potion", "weight": 20}
	]
}`

func newTestImportService(oracleRepo *mockOracleRepo, importRepo *mockImportRepo, opts ...ImportOption) ImportService {
	return NewImportService(oracleRepo, importRepo, nil, zap.NewNop(), opts...)
}

func TestImportFile_JSONSuccess(t *testing.T) {
	oracleRepo := &mockOracleRepo{}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)
	adminID := uuid.New()

	outcome, err := svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.json", models.ImportModeCreate, adminID)

	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.ItemsImported)
	assert.Equal(t, 0, outcome.ItemsFailed)
	assert.Equal(t, "Weapons", outcome.OracleName)
	require.NotNil(t, outcome.OracleID)

	// Ledger entry finalized with the oracle reference.
	record := importRepo.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, models.ImportStatusSuccess, record.Status)
	assert.Equal(t, adminID, record.AdminID)
	assert.Equal(t, "weapons.json", record.Filename)
	assert.NotEmpty(t, record.FileHash)
	assert.Equal(t, models.ImportTypeJSON, record.ImportType)
	require.NotNil(t, record.OracleID)
	assert.Equal(t, *outcome.OracleID, *record.OracleID)
}

func TestImportFile_CSVSuccess(t *testing.T) {
	oracleRepo := &mockOracleRepo{}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)

	data := []byte("value,weight\nSword,50\nShield,30\n")
	outcome, err := svc.ImportFile(context.Background(),
		data, "loot.csv", models.ImportModeCreate, uuid.New())

	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.ItemsImported)
	// Oracle name came from the filename stem.
	assert.Equal(t, "loot", outcome.OracleName)
	assert.Equal(t, models.ImportTypeCSV, importRepo.lastRecord().ImportType)
}

func TestImportFile_DuplicateHashRejected(t *testing.T) {
	oracleRepo := &mockOracleRepo{}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)
	data := []byte(validImportJSON)

	_, err := svc.ImportFile(context.Background(), data, "weapons.json", models.ImportModeCreate, uuid.New())
	require.NoError(t, err)

	_, err = svc.ImportFile(context.Background(), data, "renamed.json", models.ImportModeCreate, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateImport)

	// The rejected attempt still left a FAILED ledger entry.
	record := importRepo.lastRecord()
	assert.Equal(t, models.ImportStatusFailed, record.Status)
	assert.Equal(t, "renamed.json", record.Filename)
	require.NotEmpty(t, record.Errors)
	assert.Contains(t, record.Errors[0].Message, "already imported")

	// No second oracle was created.
	assert.Len(t, oracleRepo.oracles, 1)
}

func TestImportFile_NameAlreadyTaken(t *testing.T) {
	oracleRepo := &mockOracleRepo{}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)

	_, err := oracleRepo.Create(context.Background(), &models.CreateOracleInput{Name: "Weapons"})
	require.NoError(t, err)

	_, err = svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.json", models.ImportModeCreate, uuid.New())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	record := importRepo.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, models.ImportStatusFailed, record.Status)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0].Message, "already taken")
	assert.Len(t, oracleRepo.oracles, 1, "no second oracle was created")
}

func TestImportFile_UnsupportedModes(t *testing.T) {
	svc := newTestImportService(&mockOracleRepo{}, &mockImportRepo{})

	for _, mode := range []models.ImportMode{models.ImportModeReplace, models.ImportModeMerge} {
		_, err := svc.ImportFile(context.Background(),
			[]byte(validImportJSON), "weapons.json", mode, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedMode, "mode %s", mode)
	}

	_, err := svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.json", models.ImportMode("UPSERT"), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestImportFile_ValidationFailureLeavesFailedLedgerEntry(t *testing.T) {
	oracleRepo := &mockOracleRepo{}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)

	data := []byte(`{"oracle": {"name": "ab"}, "items": []}`)
	_, err := svc.ImportFile(context.Background(), data, "bad.json", models.ImportModeCreate, uuid.New())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Len(t, appErr.Details, 2)

	record := importRepo.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, models.ImportStatusFailed, record.Status)
	assert.Len(t, record.Errors, 2)

	// Nothing reached the store.
	assert.Empty(t, oracleRepo.oracles)
}

func TestImportFile_EmptyAndOversized(t *testing.T) {
	svc := newTestImportService(&mockOracleRepo{}, &mockImportRepo{}, WithMaxImportBytes(16))

	_, err := svc.ImportFile(context.Background(), nil, "weapons.json", models.ImportModeCreate, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.ImportFile(context.Background(),
		[]byte(`{"oracle": {"name": "Weapons"}}`), "weapons.json", models.ImportModeCreate, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestImportFile_UnknownExtension(t *testing.T) {
	svc := newTestImportService(&mockOracleRepo{}, &mockImportRepo{})

	_, err := svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.xml", models.ImportModeCreate, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestImportFile_PartialAccounting(t *testing.T) {
	oracleRepo := &mockOracleRepo{
		bulkResult: &repositories.BulkItemResult{
			Inserted: 2,
			Failed:   1,
			Errors: []models.ImportItemError{
				{Index: 2, Value: "Potion", Message: `duplicate value "Potion"`},
			},
		},
	}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)

	outcome, err := svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.json", models.ImportModeCreate, uuid.New())

	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusPartial, outcome.Status)
	assert.Equal(t, 2, outcome.ItemsImported)
	assert.Equal(t, 1, outcome.ItemsFailed)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, 2, outcome.Errors[0].Index)

	assert.Equal(t, models.ImportStatusPartial, importRepo.lastRecord().Status)
}

func TestImportFile_AllItemsFailed(t *testing.T) {
	oracleRepo := &mockOracleRepo{
		bulkResult: &repositories.BulkItemResult{
			Inserted: 0,
			Failed:   3,
			Errors: []models.ImportItemError{
				{Index: 0, Message: "bad"}, {Index: 1, Message: "bad"}, {Index: 2, Message: "bad"},
			},
		},
	}
	importRepo := &mockImportRepo{}
	svc := newTestImportService(oracleRepo, importRepo)

	outcome, err := svc.ImportFile(context.Background(),
		[]byte(validImportJSON), "weapons.json", models.ImportModeCreate, uuid.New())

	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusFailed, outcome.Status)
	assert.Equal(t, 0, outcome.ItemsImported)
}

func TestRollbackImport(t *testing.T) {
	oracleID := uuid.New()
	importRepo := &mockImportRepo{
		rollbackResult: &repositories.RollbackResult{
			OracleID:     oracleID,
			ItemsDeleted: 3,
			DrawsDeleted: 7,
		},
	}
	record := &models.ImportRecord{
		AdminID:    uuid.New(),
		ImportMode: models.ImportModeCreate,
		OracleID:   &oracleID,
	}
	require.NoError(t, importRepo.Create(context.Background(), record))
	record.Status = models.ImportStatusSuccess
	record.OracleID = &oracleID

	svc := newTestImportService(&mockOracleRepo{}, importRepo)

	outcome, err := svc.RollbackImport(context.Background(), record.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, oracleID, outcome.OracleID)
	assert.Equal(t, int64(3), outcome.ItemsDeleted)
	assert.Equal(t, int64(7), outcome.DrawsDeleted)
	assert.Equal(t, models.ImportStatusCancelled, record.Status)
}

func TestRollbackImport_RejectsNonRollbackableStatus(t *testing.T) {
	importRepo := &mockImportRepo{}
	record := &models.ImportRecord{AdminID: uuid.New(), ImportMode: models.ImportModeCreate}
	require.NoError(t, importRepo.Create(context.Background(), record))
	record.Status = models.ImportStatusFailed

	svc := newTestImportService(&mockOracleRepo{}, importRepo)

	_, err := svc.RollbackImport(context.Background(), record.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestListHistory_FiltersByAdmin(t *testing.T) {
	importRepo := &mockImportRepo{}
	adminA := uuid.New()
	adminB := uuid.New()
	for _, admin := range []uuid.UUID{adminA, adminA, adminB} {
		require.NoError(t, importRepo.Create(context.Background(),
			&models.ImportRecord{AdminID: admin}))
	}

	svc := newTestImportService(&mockOracleRepo{}, importRepo)

	all, err := svc.ListHistory(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := svc.ListHistory(context.Background(), &adminA, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
