package jobs

import (
	"context"
	"sync"
	"time"

	"dukasell/internal/metrics"
	"dukasell/internal/models"
	"dukasell/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PendingLister pages through purchases still pending at cutoff, in id order.
type PendingLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, afterID uint, limit int) ([]models.Transaction, error)
}

// Resolver asks the gateway about one order. *service.StatusService implements it.
type Resolver interface {
	Resolve(ctx context.Context, orderRef string) (*service.Resolution, error)
}

type SweepConfig struct {
	Interval    time.Duration
	MinAge      time.Duration
	Batch       int
	Concurrency int
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Checked  int
	Resolved int
	Failed   int
}

// PendingSweeper settles purchases whose webhook never arrived. Each pass
// continues after the last id it saw and wraps to the start once the backlog
// is exhausted, so orders the gateway never resolves cannot hide newer ones.
type PendingSweeper struct {
	pending  PendingLister
	resolver Resolver
	cfg      SweepConfig
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cursor uint
}

func NewPendingSweeper(pending PendingLister, resolver Resolver, cfg SweepConfig, log *zap.Logger) *PendingSweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &PendingSweeper{pending: pending, resolver: resolver, cfg: cfg, log: log.Named("sweeper"), now: time.Now}
}

// Run sweeps every Interval until ctx is done.
func (s *PendingSweeper) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.log.Info("pending sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass. A failure on one order does not stop the others.
func (s *PendingSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs, err := s.pending.ListPendingBefore(ctx, s.now().Add(-s.cfg.MinAge), s.cursor, s.cfg.Batch)
	if err != nil {
		return SweepResult{}, err
	}
	if len(txs) < s.cfg.Batch {
		s.cursor = 0
	} else {
		s.cursor = txs[len(txs)-1].ID
	}
	results := make([]string, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range txs {
		ref := txs[i].OrderReference
		g.Go(func() error {
			res, err := s.resolver.Resolve(gctx, ref)
			switch {
			case err != nil:
				s.log.Warn("resolve failed", zap.String("order_reference", ref), zap.Error(err))
				results[i] = "error"
			case res.Outcome == service.OutcomeApplied:
				results[i] = "resolved"
			default:
				results[i] = "open"
			}
			metrics.RecordPendingSweep(results[i])
			return nil
		})
	}
	_ = g.Wait()

	out := SweepResult{Checked: len(txs)}
	for _, r := range results {
		switch r {
		case "resolved":
			out.Resolved++
		case "error":
			out.Failed++
		}
	}
	if out.Checked > 0 {
		s.log.Info("sweep done", zap.Int("checked", out.Checked), zap.Int("resolved", out.Resolved), zap.Int("failed", out.Failed))
	}
	return out, nil
}
