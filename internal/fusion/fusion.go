// Package fusion reconciles the rule-based score and the anomaly score into
// one risk verdict using the hybrid-OR policy: a tender is elevated if
// either side crossed its own trigger threshold, and the most alarming
// signal wins.
package fusion

import (
	"math"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Engine applies the fusion policy under a fixed set of thresholds. It is
// stateless and safe for concurrent use.
type Engine struct {
	thresholds domain.Thresholds
}

// NewEngine validates the thresholds and returns a fusion engine.
// Invalid thresholds are rejected before any scoring starts.
func NewEngine(t domain.Thresholds) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Engine{thresholds: t}, nil
}

// Thresholds returns the engine's configured thresholds.
func (e *Engine) Thresholds() domain.Thresholds { return e.thresholds }

// Verdict is the outcome of fusing the two sub-scores.
type Verdict struct {
	FusedScore      float64
	RiskCategory    domain.RiskCategory
	DetectionSource domain.DetectionSource
	HiddenRisk      bool
}

// Fuse combines the two sub-scores. fused = max(rule, anomaly). The detection
// source depends only on which sides crossed their own triggers, never on the
// fused score.
// Inputs are clamped into [0,100] before fusing.
func (e *Engine) Fuse(ruleScore, anomalyScore float64) Verdict {
	rule := clamp(ruleScore)
	anom := clamp(anomalyScore)

	ruleFlagged := rule >= e.thresholds.RuleTrigger
	anomFlagged := anom >= e.thresholds.AnomalyTrigger

	fused := math.Max(rule, anom)

	var source domain.DetectionSource
	switch {
	case ruleFlagged && anomFlagged:
		source = domain.SourceCritical
	case ruleFlagged:
		source = domain.SourcePolicy
	case anomFlagged:
		source = domain.SourceAnomaly
	default:
		source = domain.SourceNone
	}

	return Verdict{
		FusedScore:      fused,
		RiskCategory:    e.thresholds.Categorize(fused),
		DetectionSource: source,
		// The motivating case for a secondary anomaly model: rule-compliant
		// but statistically unusual.
		HiddenRisk: !ruleFlagged && anomFlagged,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
