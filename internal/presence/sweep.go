package presence

import (
	"context"
	"strings"
	"time"

	"lounge/internal/observability"
)

// ReapFunc is called for each participant whose presence record has
// expired while their set membership lingered.
type ReapFunc func(ctx context.Context, roomID string, userID uint)

// Sweeper periodically walks every room's participant set and removes
// members whose presence record has expired. The sweep is the
// authoritative convergence path: grace timers usually get there first,
// but a crashed or partitioned node leaves state that only the sweep
// will clean up.
type Sweeper struct {
	store  *Store
	onReap ReapFunc
	logger *observability.PresenceLogger
}

// NewSweeper returns a sweeper over the given store. onReap may be nil.
func NewSweeper(store *Store, onReap ReapFunc) *Sweeper {
	return &Sweeper{
		store:  store,
		onReap: onReap,
		logger: observability.NewPresenceLogger(),
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.store.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Each pass gets its own correlation ID so its log lines
			// group together.
			passCtx := observability.WithCorrelationID(ctx, observability.GenerateCorrelationID())
			observability.LogAsyncOperationStart(passCtx, "presence_sweep", nil)
			scanned, reaped := s.SweepOnce(passCtx)
			observability.LogAsyncOperationEnd(passCtx, "presence_sweep", map[string]interface{}{
				"scanned": scanned,
				"reaped":  reaped,
			})
		}
	}
}

// SweepOnce performs a single cleanup pass. Per-key failures are skipped
// rather than aborting the pass; a record that could not be checked this
// time will be checked again next time.
func (s *Sweeper) SweepOnce(ctx context.Context) (scanned, reaped int) {
	if s.store.rdb == nil {
		return 0, 0
	}
	start := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	iter := s.store.rdb.Scan(ctx, 0, "room:*:participants", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		roomID := roomIDFromParticipantsKey(key)
		if roomID == "" {
			continue
		}

		ids, err := s.store.Participants(ctx, roomID)
		if err != nil {
			continue
		}
		for _, userID := range ids {
			scanned++
			rec, err := s.store.Get(ctx, roomID, userID)
			if err != nil {
				continue
			}
			if rec != nil {
				continue
			}

			// Record expired but set membership lingered.
			if err := s.store.Remove(ctx, roomID, userID); err != nil {
				continue
			}
			reaped++
			observability.SweepReapedTotal.Inc()
			if s.onReap != nil {
				s.onReap(ctx, roomID, userID)
			}
		}
	}

	s.logger.LogSweep(ctx, scanned, reaped)
	return scanned, reaped
}

func roomIDFromParticipantsKey(key string) string {
	if !strings.HasPrefix(key, "room:") || !strings.HasSuffix(key, ":participants") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, "room:"), ":participants")
}
