package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/audit"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/auth"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// CatalogService manages the oracle catalog. Reads are shaped by caller
// role; mutations require admin.
type CatalogService interface {
	// GetOracle returns one oracle shaped for the role. Inactive oracles
	// are hidden from non-admin callers.
	GetOracle(ctx context.Context, id uuid.UUID, role auth.Role) (*OraclePayload, error)

	// ListOracles returns the catalog shaped for the role. Non-admin
	// callers see active oracles only.
	ListOracles(ctx context.Context, role auth.Role) ([]*OraclePayload, error)

	// ListItems returns an oracle's items shaped for the role. Non-admin
	// callers see active items only.
	ListItems(ctx context.Context, oracleID uuid.UUID, role auth.Role) ([]*ItemPayload, error)

	// CreateOracle creates an empty oracle.
	CreateOracle(ctx context.Context, input *models.CreateOracleInput, role auth.Role) (*models.Oracle, error)

	// UpdateOracle applies a partial update.
	UpdateOracle(ctx context.Context, id uuid.UUID, input *models.UpdateOracleInput, role auth.Role) (*models.Oracle, error)

	// DeactivateOracle retires an oracle and its items in one transaction.
	DeactivateOracle(ctx context.Context, id uuid.UUID, role auth.Role) error

	// ReactivateOracle restores an oracle and its items in one transaction.
	ReactivateOracle(ctx context.Context, id uuid.UUID, role auth.Role) error

	// PurgeOracle hard-deletes an oracle, its items and its draw history.
	PurgeOracle(ctx context.Context, id uuid.UUID, actorID uuid.UUID, role auth.Role) error

	// CloneOracle copies an oracle and all its items under a new name.
	CloneOracle(ctx context.Context, id uuid.UUID, newName string, actorID uuid.UUID, role auth.Role) (*models.Oracle, error)

	// CreateItem adds an item to an oracle.
	CreateItem(ctx context.Context, input *models.CreateItemInput, role auth.Role) (*models.Item, error)

	// UpdateItem applies a partial update to an item.
	UpdateItem(ctx context.Context, id uuid.UUID, input *models.UpdateItemInput, role auth.Role) (*models.Item, error)

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, id uuid.UUID, role auth.Role) error

	// UpdateWeights applies a batch weight change, all or nothing.
	UpdateWeights(ctx context.Context, oracleID uuid.UUID, weights map[uuid.UUID]int, role auth.Role) error

	// NormalizeWeights rescales active item weights to sum to roughly 100.
	NormalizeWeights(ctx context.Context, oracleID uuid.UUID, role auth.Role) error
}

type catalogService struct {
	oracleRepo repositories.OracleRepository
	itemRepo   repositories.ItemRepository
	auditor    *audit.Auditor
	logger     *zap.Logger
}

// NewCatalogService creates a new CatalogService. The auditor may be nil.
func NewCatalogService(
	oracleRepo repositories.OracleRepository,
	itemRepo repositories.ItemRepository,
	auditor *audit.Auditor,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		oracleRepo: oracleRepo,
		itemRepo:   itemRepo,
		auditor:    auditor,
		logger:     logger.Named("catalog-service"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) GetOracle(ctx context.Context, id uuid.UUID, role auth.Role) (*OraclePayload, error) {
	oracle, err := s.oracleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !oracle.IsActive && !role.IsAdmin() {
		return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", id))
	}
	return ShapeOracle(oracle, role), nil
}

func (s *catalogService) ListOracles(ctx context.Context, role auth.Role) ([]*OraclePayload, error) {
	oracles, err := s.oracleRepo.List(ctx, !role.IsAdmin())
	if err != nil {
		return nil, err
	}
	payloads := make([]*OraclePayload, 0, len(oracles))
	for _, oracle := range oracles {
		payloads = append(payloads, ShapeOracle(oracle, role))
	}
	return payloads, nil
}

func (s *catalogService) ListItems(ctx context.Context, oracleID uuid.UUID, role auth.Role) ([]*ItemPayload, error) {
	oracle, err := s.oracleRepo.GetByID(ctx, oracleID)
	if err != nil {
		return nil, err
	}
	if !oracle.IsActive && !role.IsAdmin() {
		return nil, apperrors.NotFound(fmt.Sprintf("oracle %s not found", oracleID))
	}
	items, err := s.itemRepo.ListByOracle(ctx, oracleID, !role.IsAdmin())
	if err != nil {
		return nil, err
	}
	payloads := make([]*ItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, ShapeItem(item, role))
	}
	return payloads, nil
}

func (s *catalogService) CreateOracle(ctx context.Context, input *models.CreateOracleInput, role auth.Role) (*models.Oracle, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	return s.oracleRepo.Create(ctx, input)
}

func (s *catalogService) UpdateOracle(ctx context.Context, id uuid.UUID, input *models.UpdateOracleInput, role auth.Role) (*models.Oracle, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	return s.oracleRepo.Update(ctx, id, input)
}

func (s *catalogService) DeactivateOracle(ctx context.Context, id uuid.UUID, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	return s.oracleRepo.Deactivate(ctx, id)
}

func (s *catalogService) ReactivateOracle(ctx context.Context, id uuid.UUID, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	return s.oracleRepo.Reactivate(ctx, id)
}

func (s *catalogService) PurgeOracle(ctx context.Context, id uuid.UUID, actorID uuid.UUID, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	oracle, err := s.oracleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.oracleRepo.Purge(ctx, id); err != nil {
		return err
	}
	if s.auditor != nil {
		s.auditor.LogOraclePurged(ctx, id, actorID, oracle.Name)
	}
	return nil
}

func (s *catalogService) CloneOracle(ctx context.Context, id uuid.UUID, newName string, actorID uuid.UUID, role auth.Role) (*models.Oracle, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if len(newName) < models.MinOracleNameLength {
		return nil, apperrors.Validation(
			fmt.Sprintf("oracle name must be at least %d characters", models.MinOracleNameLength))
	}
	return s.oracleRepo.Clone(ctx, id, newName, actorID)
}

func (s *catalogService) CreateItem(ctx context.Context, input *models.CreateItemInput, role auth.Role) (*models.Item, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	return s.itemRepo.Create(ctx, input)
}

func (s *catalogService) UpdateItem(ctx context.Context, id uuid.UUID, input *models.UpdateItemInput, role auth.Role) (*models.Item, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	return s.itemRepo.Update(ctx, id, input)
}

func (s *catalogService) DeleteItem(ctx context.Context, id uuid.UUID, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	return s.itemRepo.Delete(ctx, id)
}

func (s *catalogService) UpdateWeights(ctx context.Context, oracleID uuid.UUID, weights map[uuid.UUID]int, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	if len(weights) == 0 {
		return apperrors.Validation("no weights provided")
	}
	for id, weight := range weights {
		if weight < 0 {
			return apperrors.Validation(fmt.Sprintf("weight for item %s must be non-negative", id))
		}
	}
	return s.itemRepo.UpdateWeights(ctx, oracleID, weights)
}

func (s *catalogService) NormalizeWeights(ctx context.Context, oracleID uuid.UUID, role auth.Role) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	return s.itemRepo.NormalizeWeights(ctx, oracleID)
}

func requireAdmin(role auth.Role) error {
	if !role.IsAdmin() {
		return apperrors.Permission("this operation requires the admin role")
	}
	return nil
}
