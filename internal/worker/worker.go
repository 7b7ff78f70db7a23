// Package worker provides async batch scoring driven by the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/scoring"
)

// Worker scores ingested batches asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	pipeline *scoring.Pipeline

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, pipeline *scoring.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing batch-ingested events for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// processBatch loads a batch's tenders, runs the scoring pipeline, persists
// the reports and publishes the outcome.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	batchMsg, err := bus.DecodeBatchIngested(msg)
	if err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if batchMsg.TenantID != "" {
		tenantID = batchMsg.TenantID
	}

	slog.Debug("processing batch",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
	)

	tenders, err := w.repo.ListTenders(ctx, tenantID, batchMsg.BatchID)
	if err != nil {
		return w.failBatch(ctx, tenantID, batchMsg.BatchID, err)
	}

	reports, err := w.pipeline.ScoreBatch(ctx, tenantID, batchMsg.BatchID, tenders)
	if err != nil {
		return w.failBatch(ctx, tenantID, batchMsg.BatchID, err)
	}

	if err := w.repo.SaveReports(ctx, tenantID, reports); err != nil {
		return w.failBatch(ctx, tenantID, batchMsg.BatchID, err)
	}
	if err := w.repo.MarkBatchScored(ctx, tenantID, batchMsg.BatchID, time.Now().UTC()); err != nil {
		slog.Error("failed to mark batch scored",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
	}

	scored := bus.BatchScoredEvent{
		BatchID:    batchMsg.BatchID,
		TenantID:   tenantID,
		Records:    len(reports),
		DurationMS: time.Since(start).Milliseconds(),
	}
	for _, r := range reports {
		if r.RiskCategory == domain.RiskHigh {
			scored.HighCount++
			w.publishAlert(ctx, tenantID, domain.TopicHighRisk, r)
		}
		if r.HiddenRisk {
			scored.HiddenCount++
			w.publishAlert(ctx, tenantID, domain.TopicHiddenRisk, r)
		}
	}

	if err := bus.PublishEvent(ctx, w.bus, tenantID, domain.TopicBatchScored, scored); err != nil {
		slog.Error("failed to publish scored event",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
		"records", scored.Records,
		"high_count", scored.HighCount,
		"hidden_count", scored.HiddenCount,
		"duration_ms", scored.DurationMS,
	)

	return nil
}

func (w *Worker) publishAlert(ctx context.Context, tenantID, topic string, r *domain.RiskReport) {
	payload, _ := json.Marshal(r)
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish alert",
			"tender_id", r.TenderID,
			"topic", topic,
			"error", err,
		)
	}
}

func (w *Worker) failBatch(ctx context.Context, tenantID, batchID string, cause error) error {
	slog.Error("batch scoring failed",
		"batch_id", batchID,
		"tenant_id", tenantID,
		"error", cause,
	)

	failed := bus.BatchFailedEvent{
		BatchID:  batchID,
		TenantID: tenantID,
		Error:    cause.Error(),
	}
	if err := bus.PublishEvent(ctx, w.bus, tenantID, domain.TopicBatchFailed, failed); err != nil {
		slog.Error("failed to publish failure event",
			"batch_id", batchID,
			"error", err,
		)
	}
	return cause
}

// Stats holds worker runtime statistics.
type Stats struct {
	SubscriptionCount int
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	return Stats{SubscriptionCount: len(w.subscriptions)}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}
