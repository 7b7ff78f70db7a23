package domain

import (
	"time"
)

// RiskReport is the stable, serializable per-tender result handed to the
// presentation layer and the explanation generator. It exposes every
// ScoreResult field plus a reference back to the originating tender; it
// performs no scoring of its own.
type RiskReport struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	BatchID  string `json:"batchId"`
	TenderID string `json:"tenderId"`

	// Denormalized tender fields for tabular export.
	Department  string    `json:"department"`
	Vendor      string    `json:"vendor"`
	Amount      float64   `json:"amount"`
	PublishDate time.Time `json:"publishDate"`

	RuleScore    float64 `json:"ruleScore"`
	AnomalyScore float64 `json:"anomalyScore"`
	FusedScore   float64 `json:"fusedScore"`

	RiskCategory    RiskCategory    `json:"riskCategory"`
	DetectionSource DetectionSource `json:"detectionSource"`
	HiddenRisk      bool            `json:"hiddenRisk"`

	TriggeredRules []RuleFlag `json:"triggeredRules"`

	Degraded     bool          `json:"degraded"`
	QualityNotes []QualityNote `json:"qualityNotes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ExplanationContext is the sole input contract to an external natural
// language explanation service. The engine never parses or depends on the
// shape of that service's textual output.
type ExplanationContext struct {
	TenderID        string          `json:"tenderId"`
	RiskCategory    RiskCategory    `json:"riskCategory"`
	DetectionSource DetectionSource `json:"detectionSource"`
	HiddenRisk      bool            `json:"hiddenRisk"`
	RuleScore       float64         `json:"ruleScore"`
	AnomalyScore    float64         `json:"anomalyScore"`
	FusedScore      float64         `json:"fusedScore"`
	TriggeredLabels []string        `json:"triggeredLabels"`
}

// BatchSummary holds aggregate metrics over one batch's reports, used by the
// executive summary projection and the text export.
type BatchSummary struct {
	BatchID       string  `json:"batchId"`
	Total         int     `json:"total"`
	HighCount     int     `json:"highCount"`
	MediumCount   int     `json:"mediumCount"`
	LowCount      int     `json:"lowCount"`
	HiddenCount   int     `json:"hiddenCount"`
	DegradedCount int     `json:"degradedCount"`
	HighPct       float64 `json:"highPct"`
	MediumPct     float64 `json:"mediumPct"`
	LowPct        float64 `json:"lowPct"`
	MeanScore     float64 `json:"meanScore"`
	MedianScore   float64 `json:"medianScore"`
	MaxScore      float64 `json:"maxScore"`
}

// ReportFilter selects a projection over one report sequence. Full report,
// high-risk-only and hidden-risk-only views are all filters over the same
// scored data, not separate computations.
type ReportFilter struct {
	Category   RiskCategory    `json:"category,omitempty"`
	Source     DetectionSource `json:"source,omitempty"`
	HiddenOnly bool            `json:"hiddenOnly,omitempty"`
}

// Match reports whether a report passes the filter.
func (f ReportFilter) Match(r *RiskReport) bool {
	if f.Category != "" && r.RiskCategory != f.Category {
		return false
	}
	if f.Source != "" && r.DetectionSource != f.Source {
		return false
	}
	if f.HiddenOnly && !r.HiddenRisk {
		return false
	}
	return true
}
