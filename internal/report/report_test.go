package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

func sampleReports() []*domain.RiskReport {
	return []*domain.RiskReport{
		{
			ID: "r-1", TenderID: "t-1", Department: "Roads", Vendor: "Alpha",
			Amount: 100000, FusedScore: 85, RuleScore: 85, AnomalyScore: 40,
			RiskCategory: domain.RiskHigh, DetectionSource: domain.SourcePolicy,
			TriggeredRules: []domain.RuleFlag{
				{RuleID: "single-bidder", Label: "Single bidder", Weight: 30, Triggered: true},
			},
		},
		{
			ID: "r-2", TenderID: "t-2", Department: "Roads", Vendor: "Beta",
			Amount: 120000, FusedScore: 99, RuleScore: 20, AnomalyScore: 99,
			RiskCategory: domain.RiskHigh, DetectionSource: domain.SourceAnomaly,
			HiddenRisk: true,
		},
		{
			ID: "r-3", TenderID: "t-3", Department: "Water", Vendor: "Gamma",
			Amount: 90000, FusedScore: 55, RuleScore: 55, AnomalyScore: 30,
			RiskCategory: domain.RiskMedium, DetectionSource: domain.SourcePolicy,
			Degraded: true,
		},
		{
			ID: "r-4", TenderID: "t-4", Department: "Water", Vendor: "Delta",
			Amount: 80000, FusedScore: 10, RuleScore: 10, AnomalyScore: 5,
			RiskCategory: domain.RiskLow, DetectionSource: domain.SourceNone,
		},
	}
}

func TestBuild(t *testing.T) {
	builder := NewBuilder()

	tender := &domain.Tender{
		ID:          "t-9",
		Department:  "Roads",
		Vendor:      "Alpha",
		Amount:      250000,
		PublishDate: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
	}
	result := &domain.ScoreResult{
		TenderID:        "t-9",
		BatchID:         "b-1",
		RuleScore:       65,
		AnomalyScore:    50,
		FusedScore:      65,
		RiskCategory:    domain.RiskMedium,
		DetectionSource: domain.SourcePolicy,
		TriggeredRules: []domain.RuleFlag{
			{RuleID: "b-rule", Label: "B", Weight: 10, Triggered: true},
			{RuleID: "a-rule", Label: "A", Weight: 30, Triggered: true},
			{RuleID: "c-rule", Label: "C", Weight: 30, Triggered: true},
		},
	}

	report := builder.Build("tenant-001", tender, result)

	if report.ID == "" {
		t.Error("expected generated report ID")
	}
	if report.TenantID != "tenant-001" || report.BatchID != "b-1" || report.TenderID != "t-9" {
		t.Errorf("unexpected identifiers: %+v", report)
	}
	if report.Department != "Roads" || report.Amount != 250000 {
		t.Error("expected denormalized tender fields")
	}

	// Flags sorted by weight descending, ties broken by rule ID.
	wantOrder := []string{"a-rule", "c-rule", "b-rule"}
	for i, f := range report.TriggeredRules {
		if f.RuleID != wantOrder[i] {
			t.Errorf("flag %d: got %s, want %s", i, f.RuleID, wantOrder[i])
		}
	}

	// The builder must not reorder the caller's slice.
	if result.TriggeredRules[0].RuleID != "b-rule" {
		t.Error("expected source result flags untouched")
	}
}

func TestExplanationContext(t *testing.T) {
	r := sampleReports()[0]
	ec := ExplanationContext(r)

	if ec.TenderID != "t-1" {
		t.Errorf("unexpected tender ID %s", ec.TenderID)
	}
	if ec.RiskCategory != domain.RiskHigh || ec.DetectionSource != domain.SourcePolicy {
		t.Error("expected verdict fields carried over")
	}
	if len(ec.TriggeredLabels) != 1 || ec.TriggeredLabels[0] != "Single bidder" {
		t.Errorf("expected triggered labels, got %v", ec.TriggeredLabels)
	}
}

func TestFilter(t *testing.T) {
	reports := sampleReports()

	t.Run("NoFilterReturnsAll", func(t *testing.T) {
		if got := Filter(reports, domain.ReportFilter{}); len(got) != 4 {
			t.Errorf("expected 4 reports, got %d", len(got))
		}
	})

	t.Run("ByCategory", func(t *testing.T) {
		got := Filter(reports, domain.ReportFilter{Category: domain.RiskHigh})
		if len(got) != 2 {
			t.Fatalf("expected 2 high reports, got %d", len(got))
		}
	})

	t.Run("BySource", func(t *testing.T) {
		got := Filter(reports, domain.ReportFilter{Source: domain.SourceAnomaly})
		if len(got) != 1 || got[0].ID != "r-2" {
			t.Errorf("expected only r-2, got %v", got)
		}
	})

	t.Run("HiddenOnly", func(t *testing.T) {
		got := Filter(reports, domain.ReportFilter{HiddenOnly: true})
		if len(got) != 1 || !got[0].HiddenRisk {
			t.Errorf("expected only the hidden risk report, got %v", got)
		}
	})

	t.Run("CombinedFilters", func(t *testing.T) {
		got := Filter(reports, domain.ReportFilter{Category: domain.RiskHigh, HiddenOnly: true})
		if len(got) != 1 || got[0].ID != "r-2" {
			t.Errorf("expected only r-2, got %v", got)
		}
	})
}

func TestSummarize(t *testing.T) {
	t.Run("Counts", func(t *testing.T) {
		s := Summarize("b-1", sampleReports())
		if s.Total != 4 {
			t.Errorf("expected total 4, got %d", s.Total)
		}
		if s.HighCount != 2 || s.MediumCount != 1 || s.LowCount != 1 {
			t.Errorf("unexpected category counts: %+v", s)
		}
		if s.HiddenCount != 1 || s.DegradedCount != 1 {
			t.Errorf("unexpected hidden/degraded counts: %+v", s)
		}
		if s.HighPct != 50 {
			t.Errorf("expected 50%% high, got %v", s.HighPct)
		}
	})

	t.Run("ScoreStatistics", func(t *testing.T) {
		s := Summarize("b-1", sampleReports())
		if s.MaxScore != 99 {
			t.Errorf("expected max 99, got %v", s.MaxScore)
		}
		wantMean := (85.0 + 99 + 55 + 10) / 4
		if s.MeanScore != wantMean {
			t.Errorf("expected mean %v, got %v", wantMean, s.MeanScore)
		}
		// Sorted scores 10, 55, 85, 99: median is the middle pair average.
		if s.MedianScore != 70 {
			t.Errorf("expected median 70, got %v", s.MedianScore)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		s := Summarize("b-empty", nil)
		if s.Total != 0 || s.MeanScore != 0 || s.MaxScore != 0 {
			t.Errorf("expected zeroed summary, got %+v", s)
		}
	})
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, sampleReports()); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "tender_id,department,vendor,amount") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "t-1") || !strings.Contains(lines[1], "single-bidder") {
		t.Errorf("expected first row for t-1 with its triggered rule, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "true") {
		t.Errorf("expected hidden risk flag in row for t-2, got %q", lines[2])
	}
}

func TestTextSummary(t *testing.T) {
	s := Summarize("b-1", sampleReports())
	text := TextSummary(s, domain.DefaultThresholds())

	for _, want := range []string{
		"b-1",
		"Total records analyzed: 4",
		"High risk:   2",
		"Hidden risk (anomaly-only): 1",
		"High >= 70",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in text summary:\n%s", want, text)
		}
	}
}
