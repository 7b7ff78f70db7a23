package domain

import (
	"time"
)

// RiskCategory is the final per-tender risk band.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

// DetectionSource identifies which scoring side crossed its trigger threshold.
// It depends only on the two sub-scores and their thresholds, never on the
// fused score.
type DetectionSource string

const (
	// SourceNone - neither side crossed its trigger threshold.
	SourceNone DetectionSource = "NONE"

	// SourcePolicy - only the rule-based side crossed.
	SourcePolicy DetectionSource = "POLICY_VIOLATION"

	// SourceAnomaly - only the anomaly model crossed. This is the hidden
	// risk case: rule-compliant but statistically unusual.
	SourceAnomaly DetectionSource = "AI_ANOMALY"

	// SourceCritical - both sides crossed.
	SourceCritical DetectionSource = "CRITICAL"
)

// ScoreResult is the complete scoring outcome for one tender. It is created
// once per scoring pass and immutable afterwards; report and API layers only
// read it.
type ScoreResult struct {
	TenderID string `json:"tenderId"`
	BatchID  string `json:"batchId"`

	// All three scores are bounded to [0,100].
	RuleScore    float64 `json:"ruleScore"`
	AnomalyScore float64 `json:"anomalyScore"`
	FusedScore   float64 `json:"fusedScore"`

	RiskCategory    RiskCategory    `json:"riskCategory"`
	DetectionSource DetectionSource `json:"detectionSource"`

	// HiddenRisk holds iff the rule score stayed below its trigger while the
	// anomaly score reached its trigger.
	HiddenRisk bool `json:"hiddenRisk"`

	// TriggeredRules lists only the indicators that fired, ordered by
	// descending weight, ties broken by rule ID.
	TriggeredRules []RuleFlag `json:"triggeredRules"`

	// Degraded marks records scored from imputed or clamped inputs.
	Degraded     bool          `json:"degraded"`
	QualityNotes []QualityNote `json:"qualityNotes,omitempty"`

	ScoredAt time.Time `json:"scoredAt"`
}

// Thresholds is the per-invocation scoring configuration. All four values are
// retunable without a code change.
type Thresholds struct {
	// HighCut and MediumCut are the fused-score category cut points.
	// Defaults: High >= 70, Medium 50-69, Low < 50.
	HighCut   float64 `json:"highCut" koanf:"high_cut"`
	MediumCut float64 `json:"mediumCut" koanf:"medium_cut"`

	// RuleTrigger is the rule score at or above which the rule side counts
	// as having flagged the tender.
	RuleTrigger float64 `json:"ruleTrigger" koanf:"rule_trigger"`

	// AnomalyTrigger is the anomaly percentile score at or above which the
	// anomaly side counts as having flagged the tender. Default 98 (top 2%).
	AnomalyTrigger float64 `json:"anomalyTrigger" koanf:"anomaly_trigger"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighCut:        70,
		MediumCut:      50,
		RuleTrigger:    50,
		AnomalyTrigger: 98,
	}
}

// Validate rejects threshold combinations before any scoring starts.
func (t Thresholds) Validate() error {
	if t.MediumCut >= t.HighCut {
		return NewError(KindConfiguration, "batch", "medium cut point must be below high cut point")
	}
	for name, v := range map[string]float64{
		"highCut":        t.HighCut,
		"mediumCut":      t.MediumCut,
		"ruleTrigger":    t.RuleTrigger,
		"anomalyTrigger": t.AnomalyTrigger,
	} {
		if v < 0 || v > 100 {
			return NewError(KindConfiguration, "batch", name+" must be in [0,100]")
		}
	}
	return nil
}

// Categorize maps a fused score to its risk band. Pure step function: no
// hysteresis, no smoothing.
func (t Thresholds) Categorize(fused float64) RiskCategory {
	switch {
	case fused >= t.HighCut:
		return RiskHigh
	case fused >= t.MediumCut:
		return RiskMedium
	default:
		return RiskLow
	}
}
