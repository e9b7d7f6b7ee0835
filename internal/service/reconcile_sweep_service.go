package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/config"
	"github.com/reelpostly/repostly/internal/pkg/logger"
)

const sweepRunTimeout = 2 * time.Minute

// ReconcileSweepService periodically re-drives webhook markers whose credit
// grant did not complete. The grace window keeps it from racing a delivery
// that is still in flight.
type ReconcileSweepService struct {
	events  WebhookEventRepository
	webhook *WebhookService
	cfg     *config.Config
	cron    *cron.Cron
}

// NewReconcileSweepService creates a ReconcileSweepService.
func NewReconcileSweepService(events WebhookEventRepository, webhook *WebhookService, cfg *config.Config) *ReconcileSweepService {
	return &ReconcileSweepService{
		events:  events,
		webhook: webhook,
		cfg:     cfg,
		cron:    cron.New(),
	}
}

// Start schedules the sweep.
func (s *ReconcileSweepService) Start() error {
	schedule := s.cfg.Sweep.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("reconcile sweep started", zap.String("schedule", schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *ReconcileSweepService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *ReconcileSweepService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepRunTimeout)
	defer cancel()

	grace := time.Duration(s.cfg.Sweep.GraceSeconds) * time.Second
	if grace <= 0 {
		grace = time.Minute
	}
	batch := s.cfg.Sweep.BatchSize
	if batch <= 0 {
		batch = 100
	}

	markers, err := s.events.ListUncredited(ctx, time.Now().Add(-grace), batch)
	if err != nil {
		logger.Error("sweep list failed", zap.Error(err))
		return
	}
	if len(markers) == 0 {
		return
	}

	var credited int
	for i := range markers {
		marker := markers[i]
		result, err := s.webhook.Reconcile(ctx, &marker)
		if err != nil {
			logger.Warn("sweep grant retry failed",
				zap.String("event_id", marker.EventID),
				zap.Error(err))
			continue
		}
		if result.Outcome == WebhookOutcomeCredited {
			credited++
		}
	}
	logger.Info("reconcile sweep finished",
		zap.Int("pending", len(markers)),
		zap.Int("credited", credited))
}
