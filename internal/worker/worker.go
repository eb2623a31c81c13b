// Package worker runs the background loops: transfer reconciliation and
// combat power recomputation.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"game-economy-service/internal/broker"
	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
	"game-economy-service/internal/service"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// ReconcileWorker drains the pending-credit queue: each entry is a transfer
// whose debit landed but whose credit did not. The worker retries the credit
// until it is confirmed; an entry that still fails goes back on the queue so
// debited gold is never dropped.
type ReconcileWorker struct {
	store    store.Store
	ledger   *service.Ledger
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcileWorker creates a reconcile worker polling at the given interval.
func NewReconcileWorker(st store.Store, ledger *service.Ledger, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReconcileWorker{
		store:    st,
		ledger:   ledger,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start polls until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain resolves queued credits until the queue is empty. Entries that fail
// again are re-parked at the tail; the pass stops after re-parking once to
// avoid spinning on a poisoned entry.
func (w *ReconcileWorker) drain(ctx context.Context) {
	for {
		pc, err := w.store.PopPendingCredit(ctx)
		if err != nil {
			w.logger.Error("Failed to pop pending credit", zap.Error(err))
			return
		}
		if pc == nil {
			return
		}

		if err := w.ledger.ResolvePendingCredit(ctx, *pc); err != nil {
			w.logger.Warn("Pending credit still unresolved, re-parking",
				zap.String("transfer_id", pc.TransferID),
				zap.String("to", pc.To), zap.Int64("amount", pc.Amount), zap.Error(err))
			if pushErr := w.store.PushPendingCredit(ctx, *pc); pushErr != nil {
				w.logger.Error("CRITICAL: failed to re-park pending credit",
					zap.String("transfer_id", pc.TransferID), zap.Error(pushErr))
			}
			return
		}

		w.logger.Info("Reconciled pending credit",
			zap.String("transfer_id", pc.TransferID),
			zap.String("to", pc.To), zap.Int64("amount", pc.Amount))
	}
}

// processedEventTTL bounds how long consumed event ids are remembered for
// idempotency.
const processedEventTTL = 24 * time.Hour

// PowerWorker consumes PowerChanged events and recomputes the account's
// combat power, publishing the result to the power leaderboard.
type PowerWorker struct {
	consumer *broker.Consumer
	power    *service.PowerService
	redis    *redisclient.Client
	logger   *zap.Logger
}

// NewPowerWorker creates a power worker. The redis client may be nil, which
// disables the duplicate-delivery check.
func NewPowerWorker(consumer *broker.Consumer, power *service.PowerService, redis *redisclient.Client) *PowerWorker {
	return &PowerWorker{
		consumer: consumer,
		power:    power,
		redis:    redis,
		logger:   util.GetLogger(),
	}
}

// Start consumes until the context is cancelled.
func (w *PowerWorker) Start(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop closes the underlying consumer.
func (w *PowerWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Warn("Error closing power consumer", zap.Error(err))
	}
}

func (w *PowerWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PowerChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("Failed to unmarshal power event, skipping", zap.Error(err))
		return nil // malformed messages commit, they can never succeed
	}

	if w.redis != nil {
		fresh, err := w.redis.MarkEventProcessed(ctx, event.EventID, processedEventTTL)
		if err != nil {
			return err
		}
		if !fresh {
			w.logger.Debug("Skipping duplicate power event",
				zap.String("event_id", event.EventID))
			return nil
		}
	}

	power, err := w.power.RecomputeAndPublish(ctx, event.Username)
	if err != nil {
		return err
	}

	w.logger.Info("Recomputed combat power",
		zap.String("username", event.Username),
		zap.String("cause", event.Cause),
		zap.Int64("power", power))
	return nil
}
