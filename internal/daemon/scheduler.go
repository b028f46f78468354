package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/status"
	intsync "github.com/matheus3301/tgvault/internal/sync"
)

// Scheduler runs a periodic tail-sync round over the configured
// conversations, one at a time. Serial on purpose: the remote source
// rate-limits per account, so parallel passes only trade progress for
// backoff.
type Scheduler struct {
	svc      *intsync.Service
	machine  *status.Machine
	logger   *zap.Logger
	interval time.Duration
	convs    []int64
	cancel   context.CancelFunc
}

// NewScheduler creates a sync scheduler from the sync config.
func NewScheduler(svc *intsync.Service, machine *status.Machine, cfg config.SyncConfig, logger *zap.Logger) *Scheduler {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		svc:      svc,
		machine:  machine,
		logger:   logger,
		interval: interval,
		convs:    cfg.Conversations,
	}
}

// Start begins the periodic sync rounds.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	if len(s.convs) == 0 {
		s.logger.Info("no conversations configured, scheduler idle")
		return
	}

	// First round right away; waiting a full interval on boot would
	// leave a fresh vault empty for no reason.
	s.RunRound(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunRound(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunRound tail-syncs every configured conversation once.
func (s *Scheduler) RunRound(ctx context.Context) {
	if err := s.machine.Transition(status.Syncing); err != nil {
		s.logger.Warn("skipping sync round", zap.Error(err))
		return
	}
	defer func() {
		if err := s.machine.Transition(status.Idle); err != nil {
			s.logger.Warn("failed to leave syncing state", zap.Error(err))
		}
	}()

	for _, conv := range s.convs {
		if ctx.Err() != nil {
			return
		}
		if err := s.svc.SyncRecent(ctx, conv); err != nil {
			s.logger.Error("sync round failed for conversation",
				zap.Error(err), zap.Int64("conversation_id", conv))
		}
	}
}
