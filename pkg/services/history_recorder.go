package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RebelliousSmile/brumisa3-sub003/pkg/models"
	"github.com/RebelliousSmile/brumisa3-sub003/pkg/repositories"
)

// recordTimeout bounds each background history write.
const recordTimeout = 5 * time.Second

// HistoryRecorder persists draw records off the request path. Draw success
// is independent of history-logging success: write failures are logged and
// swallowed, and records are dropped when the queue is full.
type HistoryRecorder struct {
	repo   repositories.DrawHistoryRepository
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *models.DrawRecord
	wg     sync.WaitGroup
}

// NewHistoryRecorder starts a recorder draining into the given repository.
// queueSize bounds how many pending records are buffered before drops.
func NewHistoryRecorder(repo repositories.DrawHistoryRepository, queueSize int, logger *zap.Logger) *HistoryRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &HistoryRecorder{
		repo:   repo,
		logger: logger.Named("history-recorder"),
		queue:  make(chan *models.DrawRecord, queueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Submit enqueues a draw record for background persistence. Never blocks:
// when the queue is full or the recorder is closed the record is dropped
// with a warning.
func (r *HistoryRecorder) Submit(record *models.DrawRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("recorder closed, dropping draw record",
			zap.String("oracle_id", record.OracleID.String()))
		return
	}

	select {
	case r.queue <- record:
	default:
		r.logger.Warn("history queue full, dropping draw record",
			zap.String("oracle_id", record.OracleID.String()))
	}
}

// Close stops accepting records and waits for the queue to drain.
func (r *HistoryRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *HistoryRecorder) run() {
	defer r.wg.Done()
	for record := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.repo.Create(ctx, record); err != nil {
			r.logger.Warn("failed to persist draw record",
				zap.String("oracle_id", record.OracleID.String()),
				zap.Error(err))
		}
		cancel()
	}
}
