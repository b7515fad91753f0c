package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// mockOracleRepo implements repositories.OracleRepository for testing.
type mockOracleRepo struct {
	oracles []*models.Oracle

	createErr          error
	getErr             error
	listErr            error
	updateErr          error
	purgeErr           error
	cloneErr           error
	createWithItemsErr error

	// bulkResult is returned from CreateWithItems when set.
	bulkResult *repositories.BulkItemResult

	purged []uuid.UUID
}

func (m *mockOracleRepo) Create(_ context.Context, input *models.CreateOracleInput) (*models.Oracle, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	oracle := &models.Oracle{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(input.Name),
		Description:     input.Description,
		PremiumRequired: input.PremiumRequired,
		Filters:         input.Filters,
		IsActive:        isActive,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	m.oracles = append(m.oracles, oracle)
	return oracle, nil
}

func (m *mockOracleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Oracle, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, o := range m.oracles {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
}

func (m *mockOracleRepo) GetByName(_ context.Context, name string) (*models.Oracle, error) {
	for _, o := range m.oracles {
		if o.Name == name {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOracleRepo) List(_ context.Context, activeOnly bool) ([]*models.Oracle, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Oracle
	for _, o := range m.oracles {
		if activeOnly && !o.IsActive {
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

func (m *mockOracleRepo) Update(_ context.Context, id uuid.UUID, input *models.UpdateOracleInput) (*models.Oracle, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for _, o := range m.oracles {
		if o.ID != id {
			continue
		}
		if input.Name != nil {
			o.Name = *input.Name
		}
		if input.Description != nil {
			o.Description = *input.Description
		}
		if input.PremiumRequired != nil {
			o.PremiumRequired = *input.PremiumRequired
		}
		o.UpdatedAt = time.Now().UTC()
		return o, nil
	}
	return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
}

func (m *mockOracleRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	return m.setActive(id, false)
}

func (m *mockOracleRepo) Reactivate(_ context.Context, id uuid.UUID) error {
	return m.setActive(id, true)
}

func (m *mockOracleRepo) setActive(id uuid.UUID, active bool) error {
	for _, o := range m.oracles {
		if o.ID == id {
			o.IsActive = active
			return nil
		}
	}
	return apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
}

func (m *mockOracleRepo) Purge(_ context.Context, id uuid.UUID) error {
	if m.purgeErr != nil {
		return m.purgeErr
	}
	for i, o := range m.oracles {
		if o.ID == id {
			m.oracles = append(m.oracles[:i], m.oracles[i+1:]...)
			m.purged = append(m.purged, id)
			return nil
		}
	}
	return apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
}

func (m *mockOracleRepo) Clone(_ context.Context, id uuid.UUID, newName string, actorID uuid.UUID) (*models.Oracle, error) {
	if m.cloneErr != nil {
		return nil, m.cloneErr
	}
	src, err := m.GetByID(context.Background(), id)
	if err != nil {
		return nil, err
	}
	clone := *src
	clone.ID = uuid.New()
	clone.Name = newName
	clone.CreatedBy = &actorID
	m.oracles = append(m.oracles, &clone)
	return &clone, nil
}

func (m *mockOracleRepo) CreateWithItems(ctx context.Context, oracle *models.CreateOracleInput, items []models.CreateItemInput) (*models.Oracle, *repositories.BulkItemResult, error) {
	if m.createWithItemsErr != nil {
		return nil, nil, m.createWithItemsErr
	}
	created, err := m.Create(ctx, oracle)
	if err != nil {
		return nil, nil, err
	}
	if m.bulkResult != nil {
		return created, m.bulkResult, nil
	}
	return created, &repositories.BulkItemResult{Inserted: len(items)}, nil
}

// mockItemRepo implements repositories.ItemRepository for testing.
type mockItemRepo struct {
	items []*models.Item

	createErr error
	listErr   error
	updateErr error
	deleteErr error

	normalizeCalls []uuid.UUID
	weightUpdates  []map[uuid.UUID]int
}

func (m *mockItemRepo) Create(_ context.Context, input *models.CreateItemInput) (*models.Item, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	weight := 1
	if input.Weight != nil {
		weight = *input.Weight
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	item := &models.Item{
		ID:        uuid.New(),
		OracleID:  input.OracleID,
		Value:     strings.TrimSpace(input.Value),
		Weight:    weight,
		Metadata:  input.Metadata,
		IsActive:  isActive,
		CreatedAt: time.Now().UTC(),
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Item, error) {
	for _, item := range m.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, apperrors.NotFound(fmt.Sprintf("item %s not found", id))
}

func (m *mockItemRepo) ListByOracle(_ context.Context, oracleID uuid.UUID, activeOnly bool) ([]*models.Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Item
	for _, item := range m.items {
		if item.OracleID != oracleID {
			continue
		}
		if activeOnly && !item.IsActive {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

func (m *mockItemRepo) Update(_ context.Context, id uuid.UUID, input *models.UpdateItemInput) (*models.Item, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for _, item := range m.items {
		if item.ID != id {
			continue
		}
		if input.Value != nil {
			item.Value = *input.Value
		}
		if input.Weight != nil {
			item.Weight = *input.Weight
		}
		if input.IsActive != nil {
			item.IsActive = *input.IsActive
		}
		return item, nil
	}
	return nil, apperrors.NotFound(fmt.Sprintf("item %s not found", id))
}

func (m *mockItemRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, item := range m.items {
		if item.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound(fmt.Sprintf("item %s not found", id))
}

func (m *mockItemRepo) UpdateWeights(_ context.Context, oracleID uuid.UUID, weights map[uuid.UUID]int) error {
	m.weightUpdates = append(m.weightUpdates, weights)
	for _, item := range m.items {
		if w, ok := weights[item.ID]; ok {
			item.Weight = w
		}
	}
	return nil
}

func (m *mockItemRepo) NormalizeWeights(_ context.Context, oracleID uuid.UUID) error {
	m.normalizeCalls = append(m.normalizeCalls, oracleID)
	return nil
}

func (m *mockItemRepo) DeactivateByOracle(_ context.Context, oracleID uuid.UUID) error {
	return m.setActiveByOracle(oracleID, false)
}

func (m *mockItemRepo) ReactivateByOracle(_ context.Context, oracleID uuid.UUID) error {
	return m.setActiveByOracle(oracleID, true)
}

func (m *mockItemRepo) setActiveByOracle(oracleID uuid.UUID, active bool) error {
	for _, item := range m.items {
		if item.OracleID == oracleID {
			item.IsActive = active
		}
	}
	return nil
}

func (m *mockItemRepo) DeleteByOracle(_ context.Context, oracleID uuid.UUID) error {
	var kept []*models.Item
	for _, item := range m.items {
		if item.OracleID != oracleID {
			kept = append(kept, item)
		}
	}
	m.items = kept
	return nil
}

// mockDrawHistoryRepo implements repositories.DrawHistoryRepository. Writes
// are guarded by a mutex because the recorder flushes from its own goroutine.
type mockDrawHistoryRepo struct {
	mu      sync.Mutex
	records []*models.DrawRecord

	createErr error
}

func (m *mockDrawHistoryRepo) Create(_ context.Context, record *models.DrawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = uuid.New()
	record.CreatedAt = time.Now().UTC()
	m.records = append(m.records, record)
	return nil
}

func (m *mockDrawHistoryRepo) ListByOracle(_ context.Context, oracleID uuid.UUID, limit int) ([]*models.DrawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.DrawRecord
	for _, r := range m.records {
		if r.OracleID == oracleID {
			result = append(result, r)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockDrawHistoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockImportRepo implements repositories.ImportRecordRepository for testing.
type mockImportRepo struct {
	records []*models.ImportRecord

	createErr      error
	finalizeErr    error
	hashErr        error
	rollbackErr    error
	rollbackResult *repositories.RollbackResult

	knownHashes map[string]bool
}

func (m *mockImportRepo) Create(_ context.Context, record *models.ImportRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = uuid.New()
	record.Status = models.ImportStatusPending
	record.StartedAt = time.Now().UTC()
	m.records = append(m.records, record)
	return nil
}

func (m *mockImportRepo) Finalize(_ context.Context, record *models.ImportRecord) error {
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	for _, r := range m.records {
		if r.ID == record.ID {
			*r = *record
			now := time.Now().UTC()
			r.CompletedAt = &now
			return nil
		}
	}
	return apperrors.Conflict("import record is not pending", nil)
}

func (m *mockImportRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ImportRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NotFound(fmt.Sprintf("import %s not found", id))
}

func (m *mockImportRepo) HasSuccessfulHash(_ context.Context, hash string) (bool, error) {
	if m.hashErr != nil {
		return false, m.hashErr
	}
	if m.knownHashes[hash] {
		return true, nil
	}
	for _, r := range m.records {
		if r.FileHash == hash && r.Status == models.ImportStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockImportRepo) List(_ context.Context, adminID *uuid.UUID, limit int) ([]*models.ImportRecord, error) {
	var result []*models.ImportRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if adminID != nil && r.AdminID != *adminID {
			continue
		}
		result = append(result, r)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockImportRepo) RollbackCreate(_ context.Context, importID uuid.UUID) (*repositories.RollbackResult, error) {
	if m.rollbackErr != nil {
		return nil, m.rollbackErr
	}
	for _, r := range m.records {
		if r.ID != importID {
			continue
		}
		if !r.Status.CanRollback() {
			return nil, apperrors.Conflict(
				fmt.Sprintf("import with status %s cannot be rolled back", r.Status), nil)
		}
		if r.OracleID == nil {
			return nil, apperrors.Conflict("import has no oracle to roll back", nil)
		}
		result := m.rollbackResult
		if result == nil {
			result = &repositories.RollbackResult{OracleID: *r.OracleID}
		}
		r.Status = models.ImportStatusCancelled
		r.OracleID = nil
		return result, nil
	}
	return nil, apperrors.NotFound(fmt.Sprintf("import %s not found", importID))
}

func (m *mockImportRepo) lastRecord() *models.ImportRecord {
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}
