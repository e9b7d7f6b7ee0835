package service

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/pkg/logger"
	"github.com/reelpostly/repostly/internal/pkg/uuidv7"
)

const journalWriteTimeout = 10 * time.Second

// JournalWriter appends credit transaction rows off the request path through
// a bounded worker pool. Journal rows are best effort; a dropped or failed
// write never affects balances.
type JournalWriter struct {
	repo     JournalRepository
	pool     pond.Pool
	stopOnce sync.Once
}

// NewJournalWriter creates a JournalWriter with the given concurrency and
// queue bound.
func NewJournalWriter(repo JournalRepository, workers, queueSize int) *JournalWriter {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &JournalWriter{
		repo: repo,
		pool: pond.NewPool(workers, pond.WithQueueSize(queueSize), pond.WithNonBlocking(true)),
	}
}

// Record enqueues one journal row. When the queue is full the row is dropped
// with a log line rather than blocking the caller.
func (w *JournalWriter) Record(tx *CreditTransaction) {
	if tx.ID == "" {
		tx.ID = uuidv7.Must()
	}
	task := w.pool.SubmitErr(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		return w.repo.Create(ctx, tx)
	})
	go func() {
		if err := task.Wait(); err != nil {
			logger.Warn("journal write failed",
				zap.String("owner_key", tx.OwnerKey),
				zap.String("reason", tx.Reason),
				zap.Int64("delta", tx.Delta),
				zap.Error(err))
		}
	}()
}

// Stop drains queued writes and stops the pool.
func (w *JournalWriter) Stop() {
	w.stopOnce.Do(func() {
		w.pool.StopAndWait()
	})
}
