package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sweepBatch       = 100
	sweepConcurrency = 4
)

// SweepOrphans deletes open objects created before now-olderThan. These are
// left behind when a process dies between Create and Finalize. It returns the
// number of objects removed.
func (s *Store) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.nowFunc().UTC().Add(-olderThan)

	ids, err := s.backend.ListOpen(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list orphans: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := s.backend.DeleteObject(gctx, id)
			switch {
			case err == nil:
				removed.Add(1)
			case errors.Is(err, ErrNotFound):
				// Raced with another cleanup.
			default:
				s.logger.Warn("orphan delete failed", zap.String("object_id", id.String()), zap.Error(err))
			}
			return gctx.Err()
		})
	}
	err = g.Wait()
	return int(removed.Load()), err
}

// RunSweeper calls SweepOrphans every interval until ctx is done. onSweep, when
// set, observes each pass.
func (s *Store) RunSweeper(ctx context.Context, interval, ttl time.Duration, onSweep func(removed int, err error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOrphans(ctx, ttl)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("orphan sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("orphan sweep completed", zap.Int("removed", n))
			}
			if onSweep != nil {
				onSweep(n, err)
			}
		}
	}
}
