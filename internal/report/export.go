package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// ExportCSV writes a report sequence as a tabular export. The column set is
// stable so downstream spreadsheets can rely on it.
func ExportCSV(w io.Writer, reports []*domain.RiskReport) error {
	cw := csv.NewWriter(w)

	header := []string{
		"tender_id", "department", "vendor", "amount", "publish_date",
		"rule_score", "anomaly_score", "fused_score",
		"risk_category", "detection_source", "hidden_risk", "degraded",
		"triggered_rules",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for _, r := range reports {
		labels := make([]string, 0, len(r.TriggeredRules))
		for _, f := range r.TriggeredRules {
			labels = append(labels, f.RuleID)
		}

		row := []string{
			r.TenderID,
			r.Department,
			r.Vendor,
			strconv.FormatFloat(r.Amount, 'f', 2, 64),
			r.PublishDate.Format("2006-01-02"),
			strconv.FormatFloat(r.RuleScore, 'f', 1, 64),
			strconv.FormatFloat(r.AnomalyScore, 'f', 1, 64),
			strconv.FormatFloat(r.FusedScore, 'f', 1, 64),
			string(r.RiskCategory),
			string(r.DetectionSource),
			strconv.FormatBool(r.HiddenRisk),
			strconv.FormatBool(r.Degraded),
			strings.Join(labels, ";"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write export row for %s: %w", r.TenderID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// TextSummary renders the executive summary as a plain-text report.
func TextSummary(s domain.BatchSummary, thresholds domain.Thresholds) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Procurement Fraud Risk Report - batch %s\n", s.BatchID)
	fmt.Fprintf(&b, "Risk thresholds: High >= %.0f, Medium >= %.0f\n", thresholds.HighCut, thresholds.MediumCut)
	b.WriteString("================================================================\n\n")
	fmt.Fprintf(&b, "Total records analyzed: %d\n", s.Total)
	fmt.Fprintf(&b, "High risk:   %d (%.1f%%)\n", s.HighCount, s.HighPct)
	fmt.Fprintf(&b, "Medium risk: %d (%.1f%%)\n", s.MediumCount, s.MediumPct)
	fmt.Fprintf(&b, "Low risk:    %d (%.1f%%)\n", s.LowCount, s.LowPct)
	fmt.Fprintf(&b, "Hidden risk (anomaly-only): %d\n", s.HiddenCount)
	fmt.Fprintf(&b, "Degraded data quality:      %d\n\n", s.DegradedCount)
	fmt.Fprintf(&b, "Mean fused score:   %.2f\n", s.MeanScore)
	fmt.Fprintf(&b, "Median fused score: %.2f\n", s.MedianScore)
	fmt.Fprintf(&b, "Highest fused score: %.2f\n", s.MaxScore)
	return b.String()
}
