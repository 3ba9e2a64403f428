// Package reconciler applies confirmed mint events to the record store.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"mintgate/internal/mint/chainwatch"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
)

// Confirmer moves a record to confirmed. Implementations must be idempotent.
type Confirmer interface {
	Confirm(ctx context.Context, ev models.ConfirmationEvidence) error
}

// Reconciler drains watcher batches. A batch is acknowledged with the first
// failure so the watcher redelivers the whole range; events already applied
// are harmless to apply again.
type Reconciler struct {
	confirmer Confirmer
	in        <-chan chainwatch.Batch
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func New(confirmer Confirmer, in <-chan chainwatch.Batch, opts ...Option) *Reconciler {
	r := &Reconciler{confirmer: confirmer, in: in, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run applies batches until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-r.in:
			b.Done <- r.Apply(ctx, b)
		}
	}
}

// Apply confirms every event of b in order.
func (r *Reconciler) Apply(ctx context.Context, b chainwatch.Batch) error {
	for _, ev := range b.Events {
		if err := r.confirmer.Confirm(ctx, ev); err != nil {
			r.metrics.IncrementReconcileFailure()
			r.logger.ErrorContext(ctx, "reconcile failed, awaiting redelivery",
				"token_id", ev.TokenID,
				"transaction_hash", ev.TransactionHash,
				"from_block", b.FromBlock,
				"to_block", b.ToBlock,
				"error", err,
			)
			return fmt.Errorf("confirm token %d: %w", ev.TokenID, err)
		}
	}
	return nil
}
