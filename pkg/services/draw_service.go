package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/apperrors"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/auth"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// DefaultMaxDrawCount is the upper bound on selections per draw call when
// no limit is configured.
const DefaultMaxDrawCount = 100

// DrawRequest carries everything one draw call needs.
type DrawRequest struct {
	OracleID        uuid.UUID
	Count           int
	Filters         map[string]any
	WithReplacement bool
	Role            auth.Role

	// Caller metadata, recorded on the draw history entry.
	UserID    *uuid.UUID
	SessionID string
	ClientIP  string
}

// DrawResult is the shaped outcome of one draw call. Selections are in
// sampling order, not re-sorted.
type DrawResult struct {
	OracleID        uuid.UUID          `json:"oracle_id"`
	OracleName      string             `json:"oracle_name"`
	Selections      []models.Selection `json:"selections"`
	Count           int                `json:"count"`
	WithReplacement bool               `json:"with_replacement"`
	DrawnAt         time.Time          `json:"drawn_at"`
}

// DrawService samples weighted selections from an oracle's active items.
type DrawService interface {
	// Draw produces count selections from the oracle's active,
	// filter-matching items, shaped for the caller's role.
	Draw(ctx context.Context, req *DrawRequest) (*DrawResult, error)

	// ListHistory returns recent draw records for an oracle, newest first.
	ListHistory(ctx context.Context, oracleID uuid.UUID, limit int) ([]*models.DrawRecord, error)
}

type drawService struct {
	oracleRepo  repositories.OracleRepository
	itemRepo    repositories.ItemRepository
	historyRepo repositories.DrawHistoryRepository
	recorder    *HistoryRecorder
	logger      *zap.Logger

	maxCount int

	mu  sync.Mutex
	rng *rand.Rand
}

// DrawOption configures a DrawService.
type DrawOption func(*drawService)

// WithMaxCount overrides the per-call selection limit.
func WithMaxCount(max int) DrawOption {
	return func(s *drawService) {
		if max > 0 {
			s.maxCount = max
		}
	}
}

// WithRand sets the random source. Used by tests for determinism.
func WithRand(rng *rand.Rand) DrawOption {
	return func(s *drawService) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// NewDrawService creates a new DrawService. The recorder may be nil, in
// which case draw history is not written.
func NewDrawService(
	oracleRepo repositories.OracleRepository,
	itemRepo repositories.ItemRepository,
	historyRepo repositories.DrawHistoryRepository,
	recorder *HistoryRecorder,
	logger *zap.Logger,
	opts ...DrawOption,
) DrawService {
	s := &drawService{
		oracleRepo:  oracleRepo,
		itemRepo:    itemRepo,
		historyRepo: historyRepo,
		recorder:    recorder,
		logger:      logger.Named("draw-service"),
		maxCount:    DefaultMaxDrawCount,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ DrawService = (*drawService)(nil)

func (s *drawService) Draw(ctx context.Context, req *DrawRequest) (*DrawResult, error) {
	if req.Count < 1 || req.Count > s.maxCount {
		return nil, apperrors.Validation(
			fmt.Sprintf("draw count must be between 1 and %d, got %d", s.maxCount, req.Count))
	}

	oracle, err := s.oracleRepo.GetByID(ctx, req.OracleID)
	if err != nil {
		return nil, err
	}
	if !oracle.IsActive {
		return nil, apperrors.NotFound(fmt.Sprintf("oracle %s is not active", req.OracleID))
	}
	if oracle.PremiumRequired && !req.Role.CanAccessPremium() {
		return nil, apperrors.Permission(
			fmt.Sprintf("oracle %q requires premium access", oracle.Name))
	}

	items, err := s.itemRepo.ListByOracle(ctx, req.OracleID, true)
	if err != nil {
		return nil, err
	}

	pool := make([]*models.Item, 0, len(items))
	for _, item := range items {
		if item.MatchesFilters(req.Filters) {
			pool = append(pool, item)
		}
	}
	if len(pool) == 0 {
		return nil, apperrors.NotFound("no items match the requested filters")
	}

	var selections []models.Selection
	if req.WithReplacement {
		selections = s.sampleWithReplacement(pool, req.Count)
	} else {
		selections = s.sampleWithoutReplacement(pool, req.Count)
	}

	s.recordDraw(oracle.ID, req, selections)

	return &DrawResult{
		OracleID:        oracle.ID,
		OracleName:      oracle.Name,
		Selections:      ShapeSelections(selections, req.Role),
		Count:           len(selections),
		WithReplacement: req.WithReplacement,
		DrawnAt:         time.Now().UTC(),
	}, nil
}

// sampleWithReplacement draws count selections, each over the full pool.
func (s *drawService) sampleWithReplacement(pool []*models.Item, count int) []models.Selection {
	totalWeight := 0
	for _, item := range pool {
		totalWeight += item.Weight
	}

	selections := make([]models.Selection, 0, count)
	for i := 0; i < count; i++ {
		selections = append(selections, snapshot(s.pick(pool, totalWeight)))
	}
	return selections
}

// sampleWithoutReplacement removes each chosen item from the pool. The
// result is min(count, poolSize) selections: asking for more than is
// available truncates instead of erroring, so the caller receives
// everything there is.
func (s *drawService) sampleWithoutReplacement(pool []*models.Item, count int) []models.Selection {
	remaining := make([]*models.Item, len(pool))
	copy(remaining, pool)

	totalWeight := 0
	for _, item := range remaining {
		totalWeight += item.Weight
	}

	if count > len(remaining) {
		count = len(remaining)
	}

	selections := make([]models.Selection, 0, count)
	for i := 0; i < count; i++ {
		idx := s.pickIndex(remaining, totalWeight)
		chosen := remaining[idx]
		selections = append(selections, snapshot(chosen))

		totalWeight -= chosen.Weight
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return selections
}

func (s *drawService) pick(pool []*models.Item, totalWeight int) *models.Item {
	return pool[s.pickIndex(pool, totalWeight)]
}

// pickIndex selects an index by cumulative weight. When every weight is
// zero, weighted sampling is undefined; selection falls back to uniform.
func (s *drawService) pickIndex(pool []*models.Item, totalWeight int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalWeight <= 0 {
		return s.rng.Intn(len(pool))
	}

	target := s.rng.Intn(totalWeight)
	cumulative := 0
	for i, item := range pool {
		cumulative += item.Weight
		if target < cumulative {
			return i
		}
	}
	// Unreachable when totalWeight equals the pool's weight sum.
	return len(pool) - 1
}

func snapshot(item *models.Item) models.Selection {
	weight := item.Weight
	return models.Selection{
		ItemID:   item.ID,
		Value:    item.Value,
		Weight:   &weight,
		Metadata: item.Metadata,
	}
}

// recordDraw hands the audit entry to the background recorder. Best-effort
// only; the draw response never waits on or fails with the history write.
func (s *drawService) recordDraw(oracleID uuid.UUID, req *DrawRequest, selections []models.Selection) {
	if s.recorder == nil {
		return
	}
	s.recorder.Submit(&models.DrawRecord{
		OracleID:  oracleID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Results:   selections,
		Filters:   req.Filters,
		DrawCount: req.Count,
		ClientIP:  req.ClientIP,
	})
}

func (s *drawService) ListHistory(ctx context.Context, oracleID uuid.UUID, limit int) ([]*models.DrawRecord, error) {
	if _, err := s.oracleRepo.GetByID(ctx, oracleID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByOracle(ctx, oracleID, limit)
}
