package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Typed payloads for the batch lifecycle topics. Producers publish through
// the helpers below so every subscriber sees the same envelope per topic.

// BatchIngestedEvent announces a stored batch awaiting scoring
// (domain.TopicBatchIngested).
type BatchIngestedEvent struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	TraceID  string `json:"traceId,omitempty"`
	Size     int    `json:"size"`
}

// BatchScoredEvent announces a completed scoring pass
// (domain.TopicBatchScored).
type BatchScoredEvent struct {
	BatchID     string `json:"batchId"`
	TenantID    string `json:"tenantId"`
	Records     int    `json:"records"`
	HighCount   int    `json:"highCount"`
	HiddenCount int    `json:"hiddenCount"`
	DurationMS  int64  `json:"durationMs"`
}

// BatchFailedEvent announces a scoring pass that was abandoned
// (domain.TopicBatchFailed).
type BatchFailedEvent struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	Error    string `json:"error"`
}

// PublishEvent marshals a typed event and publishes it on the topic.
func PublishEvent(ctx context.Context, b domain.EventBus, tenantID, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// DecodeBatchIngested parses a message from the batch-ingested topic.
func DecodeBatchIngested(msg *domain.Message) (*BatchIngestedEvent, error) {
	var event BatchIngestedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse batch-ingested event: %w", err)
	}
	if event.BatchID == "" {
		return nil, fmt.Errorf("batch-ingested event carries no batch ID")
	}
	return &event, nil
}
