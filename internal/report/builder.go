// Package report assembles per-tender risk reports and the projections the
// presentation and explanation collaborators consume. It performs no
// scoring of its own.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Builder assembles RiskReports from scoring results.
type Builder struct{}

// NewBuilder creates a report builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the report for one tender. Triggered rules are ordered by
// descending severity weight, ties broken by rule ID so the ordering is
// deterministic.
func (b *Builder) Build(tenantID string, tender *domain.Tender, result *domain.ScoreResult) *domain.RiskReport {
	flags := make([]domain.RuleFlag, len(result.TriggeredRules))
	copy(flags, result.TriggeredRules)
	sortFlags(flags)

	return &domain.RiskReport{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		BatchID:         result.BatchID,
		TenderID:        tender.ID,
		Department:      tender.Department,
		Vendor:          tender.Vendor,
		Amount:          tender.Amount,
		PublishDate:     tender.PublishDate,
		RuleScore:       result.RuleScore,
		AnomalyScore:    result.AnomalyScore,
		FusedScore:      result.FusedScore,
		RiskCategory:    result.RiskCategory,
		DetectionSource: result.DetectionSource,
		HiddenRisk:      result.HiddenRisk,
		TriggeredRules:  flags,
		Degraded:        result.Degraded,
		QualityNotes:    result.QualityNotes,
		CreatedAt:       time.Now().UTC(),
	}
}

// ExplanationContext exposes the structured flag summary for the external
// natural-language explanation service.
func ExplanationContext(r *domain.RiskReport) *domain.ExplanationContext {
	labels := make([]string, 0, len(r.TriggeredRules))
	for _, f := range r.TriggeredRules {
		labels = append(labels, f.Label)
	}
	return &domain.ExplanationContext{
		TenderID:        r.TenderID,
		RiskCategory:    r.RiskCategory,
		DetectionSource: r.DetectionSource,
		HiddenRisk:      r.HiddenRisk,
		RuleScore:       r.RuleScore,
		AnomalyScore:    r.AnomalyScore,
		FusedScore:      r.FusedScore,
		TriggeredLabels: labels,
	}
}

// Filter projects a report sequence through a filter. Full, high-risk-only
// and hidden-risk-only views are all projections over the same sequence.
func Filter(reports []*domain.RiskReport, f domain.ReportFilter) []*domain.RiskReport {
	out := make([]*domain.RiskReport, 0, len(reports))
	for _, r := range reports {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summarize computes the executive-summary metrics for one batch's reports.
func Summarize(batchID string, reports []*domain.RiskReport) domain.BatchSummary {
	s := domain.BatchSummary{BatchID: batchID, Total: len(reports)}
	if len(reports) == 0 {
		return s
	}

	scores := make([]float64, 0, len(reports))
	var sum float64
	for _, r := range reports {
		switch r.RiskCategory {
		case domain.RiskHigh:
			s.HighCount++
		case domain.RiskMedium:
			s.MediumCount++
		default:
			s.LowCount++
		}
		if r.HiddenRisk {
			s.HiddenCount++
		}
		if r.Degraded {
			s.DegradedCount++
		}
		scores = append(scores, r.FusedScore)
		sum += r.FusedScore
		if r.FusedScore > s.MaxScore {
			s.MaxScore = r.FusedScore
		}
	}

	total := float64(s.Total)
	s.HighPct = float64(s.HighCount) / total * 100
	s.MediumPct = float64(s.MediumCount) / total * 100
	s.LowPct = float64(s.LowCount) / total * 100
	s.MeanScore = sum / total

	sort.Float64s(scores)
	mid := len(scores) / 2
	if len(scores)%2 == 1 {
		s.MedianScore = scores[mid]
	} else {
		s.MedianScore = (scores[mid-1] + scores[mid]) / 2
	}

	return s
}

func sortFlags(flags []domain.RuleFlag) {
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].Weight != flags[j].Weight {
			return flags[i].Weight > flags[j].Weight
		}
		return flags[i].RuleID < flags[j].RuleID
	})
}
