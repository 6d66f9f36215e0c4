// Package syncer drains the device-local queue to the gateway once
// connectivity returns.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"presence/internal/offline/client"
	"presence/internal/offline/queue"
)

// Gateway uploads one batch and returns per-item classifications.
type Gateway interface {
	SyncBatch(ctx context.Context, items []queue.Item) ([]client.ItemOutcome, error)
}

// ConnectivityState reports the last observed gateway reachability.
type ConnectivityState interface {
	Online() bool
}

// Syncer runs the reconciliation loop. One batch per cycle; an item is only
// marked synced after the gateway acknowledged its classification, so a
// crashed upload is retried in full.
type Syncer struct {
	queue      *queue.Queue
	gateway    Gateway
	state      ConnectivityState
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	purgeAfter time.Duration
}

func New(q *queue.Queue, gateway Gateway, state ConnectivityState, logger *slog.Logger, interval time.Duration, batchSize int, purgeAfter time.Duration) *Syncer {
	return &Syncer{
		queue:      q,
		gateway:    gateway,
		state:      state,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
		purgeAfter: purgeAfter,
	}
}

// Run syncs on every tick while online, until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.state.Online() {
				continue
			}
			if _, err := s.SyncOnce(ctx); err != nil {
				s.logger.WarnContext(ctx, "sync cycle failed", "error", err)
			}
			if _, err := s.queue.PurgeSynced(ctx, time.Now().Add(-s.purgeAfter)); err != nil {
				s.logger.WarnContext(ctx, "queue purge failed", "error", err)
			}
		}
	}
}

// SyncOnce uploads at most one batch and reports how many items were
// reconciled. Rejected items are marked too, with the reason retained for
// review; retrying them would reject again.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	items, err := s.queue.Pending(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	outcomes, err := s.gateway.SyncBatch(ctx, items)
	if err != nil {
		// Nothing is marked; the whole batch goes again next cycle.
		return 0, err
	}

	byStatus := make(map[string][]int64)
	for _, outcome := range outcomes {
		status := outcome.Status
		if outcome.Reason != "" && status != string(client.OutcomeAccepted) {
			status = status + ":" + outcome.Reason
		}
		byStatus[status] = append(byStatus[status], outcome.ItemID)
	}

	marked := 0
	for status, ids := range byStatus {
		if err := s.queue.MarkSynced(ctx, ids, status); err != nil {
			return marked, err
		}
		marked += len(ids)
	}

	s.logger.InfoContext(ctx, "offline batch reconciled",
		"items", len(items),
		"marked", marked,
	)
	return marked, nil
}
