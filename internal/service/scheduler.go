package service

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/liliang-cn/storerouter/internal/config"
	"go.uber.org/zap"
)

// ExportCleaner removes old export files
type ExportCleaner interface {
	Cleanup(maxAge time.Duration) (int, error)
}

// Scheduler runs periodic memory sweeps, export cleanup and store sync
type Scheduler struct {
	memory  ConversationStore
	exports ExportCleaner
	ingest  *IngestService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. exports and ingest may be nil.
func NewScheduler(
	memory ConversationStore,
	exports ExportCleaner,
	ingest *IngestService,
	cfg *config.Config,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		memory:  memory,
		exports: exports,
		ingest:  ingest,
		cfg:     cfg,
		logger:  logger.Named("scheduler"),
	}
}

// Run blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if interval := s.cfg.Memory.SweepInterval; interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, interval, s.Sweep)
		}()
	}
	if s.cfg.Sync.Enabled && s.cfg.Sync.Interval > 0 && s.ingest != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.cfg.Sync.Interval, s.ingest.SyncAll)
		}()
	}

	wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, job func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduled job failed", zap.Error(err))
			}
		}
	}
}

// Sweep forgets idle conversations and old export files
func (s *Scheduler) Sweep(ctx context.Context) error {
	var errs *multierror.Error

	removed, err := s.memory.Sweep(ctx, time.Now().Add(-s.cfg.MemoryRetention()))
	if err != nil {
		errs = multierror.Append(errs, err)
	} else if removed > 0 {
		s.logger.Info("swept conversations", zap.Int("scopes", removed))
	}

	if s.exports != nil && s.cfg.Export.RetentionHours > 0 {
		files, err := s.exports.Cleanup(time.Duration(s.cfg.Export.RetentionHours) * time.Hour)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else if files > 0 {
			s.logger.Info("removed old exports", zap.Int("files", files))
		}
	}

	return errs.ErrorOrNil()
}
