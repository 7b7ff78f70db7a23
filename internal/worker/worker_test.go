package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-procurement/kestrel/internal/anomaly"
	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
	"github.com/opensource-procurement/kestrel/internal/fusion"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/scoring"
)

func testPipeline(t *testing.T) *scoring.Pipeline {
	t.Helper()

	scorer, err := rules.NewScorer(rules.NewRegistry(rules.BuiltinIndicators()...))
	if err != nil {
		t.Fatalf("failed to build scorer: %v", err)
	}
	t.Cleanup(func() { scorer.Close() })

	names := features.SchemaV1()
	art := anomaly.Artifact{
		Version:       "test-1",
		SchemaVersion: features.SchemaVersionV1,
		Features:      names,
		Orientation:   anomaly.OrientHigher,
		Means:         make([]float64, len(names)),
		Scales:        ones(len(names)),
		Weights:       amountOnly(names),
		ReferenceRaw:  []float64{0, 10000, 50000, 100000, 500000},
	}
	data, _ := json.Marshal(art)
	model, err := anomaly.ParseArtifact(data)
	if err != nil {
		t.Fatalf("failed to parse test artifact: %v", err)
	}
	adapter, err := anomaly.NewAdapter(model)
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}

	fuser, err := fusion.NewEngine(domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("failed to build fusion engine: %v", err)
	}

	return scoring.NewPipeline(scorer, adapter, fuser, 4)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// amountOnly makes the raw statistic track the amount feature so higher
// amounts rank as more anomalous.
func amountOnly(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		if name == "amount" {
			out[i] = 1
		}
	}
	return out
}

func testRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	pipeline := testPipeline(t)
	repo := testRepo(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, repo, pipeline)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if stats := w.GetStats(); stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessBatch", func(t *testing.T) {
		ctx := context.Background()
		tenantID := "tenant-test"

		w := NewWorker(eventBus, repo, pipeline)
		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		batch := &domain.Batch{
			ID:        "batch-w1",
			Size:      3,
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.SaveBatch(ctx, tenantID, batch); err != nil {
			t.Fatalf("SaveBatch failed: %v", err)
		}

		tenders := []*domain.Tender{
			{ID: "w-t1", Department: "Public Works", Vendor: "Apex", Amount: 100000, BidderCount: 5, DurationDays: 90, ProcurementMethod: "Open Tender", PublishDate: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
			{ID: "w-t2", Department: "Public Works", Vendor: "Borealis", Amount: 120000, BidderCount: 4, DurationDays: 60, ProcurementMethod: "Open Tender", PublishDate: time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)},
			{ID: "w-t3", Department: "Public Works", Vendor: "Cairn", Amount: 950000, BidderCount: 1, DurationDays: 10, ProcurementMethod: "Direct Award", PublishDate: time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC)},
		}
		if err := repo.SaveTenders(ctx, tenantID, batch.ID, tenders); err != nil {
			t.Fatalf("SaveTenders failed: %v", err)
		}

		var scoredReceived atomic.Bool
		var scoredPayload []byte
		eventBus.Subscribe(ctx, tenantID, domain.TopicBatchScored, func(ctx context.Context, msg *domain.Message) error {
			scoredPayload = msg.Payload
			scoredReceived.Store(true)
			return nil
		})

		var highRiskAlerts atomic.Int32
		eventBus.Subscribe(ctx, tenantID, domain.TopicHighRisk, func(ctx context.Context, msg *domain.Message) error {
			highRiskAlerts.Add(1)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		event := bus.BatchIngestedEvent{BatchID: batch.ID, TenantID: tenantID, Size: len(tenders)}
		if err := bus.PublishEvent(ctx, eventBus, tenantID, domain.TopicBatchIngested, event); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for !scoredReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if !scoredReceived.Load() {
			t.Fatal("timeout waiting for scored event")
		}

		var scored bus.BatchScoredEvent
		if err := json.Unmarshal(scoredPayload, &scored); err != nil {
			t.Fatalf("failed to parse scored message: %v", err)
		}
		if scored.Records != 3 {
			t.Errorf("expected 3 records scored, got %d", scored.Records)
		}

		// The single-bidder direct award right under the approval threshold
		// must come out high risk.
		if scored.HighCount < 1 {
			t.Errorf("expected at least one high risk record, got %d", scored.HighCount)
		}
		if highRiskAlerts.Load() < 1 {
			t.Error("expected a high risk alert on the bus")
		}

		reports, err := repo.ListReports(ctx, tenantID, batch.ID, domain.ReportFilter{})
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(reports) != 3 {
			t.Errorf("expected 3 persisted reports, got %d", len(reports))
		}

		stored, err := repo.GetBatch(ctx, tenantID, batch.ID)
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if stored.ScoredAt.IsZero() {
			t.Error("expected batch marked scored")
		}
	})

	t.Run("FailedBatchPublishesFailure", func(t *testing.T) {
		ctx := context.Background()
		tenantID := "tenant-fail"

		w := NewWorker(eventBus, repo, pipeline)
		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		var failed atomic.Bool
		eventBus.Subscribe(ctx, tenantID, domain.TopicBatchFailed, func(ctx context.Context, msg *domain.Message) error {
			failed.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Batch with no persisted tenders scores zero records, which is not a
		// failure; a malformed payload is.
		if err := eventBus.Publish(ctx, tenantID, domain.TopicBatchIngested, []byte("{not json")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Malformed payloads are logged and dropped without a failure event.
		time.Sleep(100 * time.Millisecond)
		if failed.Load() {
			t.Error("did not expect failure event for malformed payload")
		}
	})
}
