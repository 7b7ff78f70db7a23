package domain

import (
	"time"
)

// Tender represents a single government procurement record under analysis.
// The engine never mutates a Tender; callers own the value.
type Tender struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Buying side
	Department string `json:"department"`

	// Winning or sole listed vendor
	Vendor string `json:"vendor"`

	// Financial details
	Amount float64 `json:"amount"`

	// Competition
	BidderCount int `json:"bidderCount"`

	// Contract duration in days
	DurationDays int `json:"durationDays"`

	// Procurement method (e.g. "Open Tender", "Limited Tender", "Direct Award")
	ProcurementMethod string `json:"procurementMethod"`

	// Free-text description of the tendered work
	Description string `json:"description,omitempty"`

	// Temporal
	PublishDate time.Time `json:"publishDate"`
	CreatedAt   time.Time `json:"createdAt"`

	// Quality holds per-field data quality annotations recorded at ingestion
	// (missing bidder count, unparseable date, clamped duration). A non-empty
	// list marks the record as degraded; it is still scored.
	Quality []QualityNote `json:"quality,omitempty"`
}

// QualityNote records a locally-recovered data quality issue on a tender field.
type QualityNote struct {
	Kind   ErrorKind `json:"kind"`
	Field  string    `json:"field"`
	Issue  string    `json:"issue"`
	Action string    `json:"action"` // e.g. "imputed median", "clamped to zero"
}

// Degraded reports whether the record carries any data quality annotations.
func (t *Tender) Degraded() bool {
	return len(t.Quality) > 0
}

// TenderRequest is the API payload for a single tender inside a batch
// submission. Amount is a pointer so an absent amount is distinguishable from
// an explicit zero; absence is fatal for the record, zero is imputable.
type TenderRequest struct {
	ID                string   `json:"id"`
	Date              string   `json:"date"`
	Department        string   `json:"department"`
	Vendor            string   `json:"vendor"`
	Amount            *float64 `json:"amount"`
	BidderCount       *int     `json:"bidder_count,omitempty"`
	DurationDays      *int     `json:"duration_days,omitempty"`
	ProcurementMethod string   `json:"procurement_method"`
	Description       string   `json:"description,omitempty"`
}

// Batch groups the tenders scored together. BatchStats are always computed
// from exactly one batch; a tender is never scored against another batch's
// statistics.
type Batch struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Label     string    `json:"label,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	ScoredAt  time.Time `json:"scoredAt,omitempty"`
}
