package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/opensource-procurement/kestrel/internal/anomaly"
	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/cache"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
	"github.com/opensource-procurement/kestrel/internal/fusion"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/scoring"
)

// createTestServer wires a server against a temp SQLite repository, an
// in-process bus and a local model artifact.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
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

	scorer, err := rules.NewScorer(rules.NewRegistry(rules.BuiltinIndicators()...))
	if err != nil {
		t.Fatalf("failed to build scorer: %v", err)
	}
	t.Cleanup(func() { scorer.Close() })

	names := features.SchemaV1()
	means := make([]float64, len(names))
	scales := make([]float64, len(names))
	weights := make([]float64, len(names))
	for i, name := range names {
		scales[i] = 1
		if name == "amount" {
			weights[i] = 1
		}
	}
	art := anomaly.Artifact{
		Version:       "test-1",
		SchemaVersion: features.SchemaVersionV1,
		Features:      names,
		Orientation:   anomaly.OrientHigher,
		Means:         means,
		Scales:        scales,
		Weights:       weights,
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

	pipeline := scoring.NewPipeline(scorer, adapter, fuser, 4)

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	return NewServer(cfg, repo, cache.NewLRUCache(100), eventBus, scorer, pipeline, "test-v1")
}

func amountPtr(v float64) *float64 { return &v }
func intPtr(v int) *int            { return &v }

func testTenders() []*domain.TenderRequest {
	return []*domain.TenderRequest{
		{
			ID:                "TND-001",
			Date:              "2026-03-10",
			Department:        "Ministry of Roads",
			Vendor:            "Alpha Constructions",
			Amount:            amountPtr(120000),
			BidderCount:       intPtr(6),
			DurationDays:      intPtr(180),
			ProcurementMethod: "open",
		},
		{
			ID:                "TND-002",
			Date:              "2026-03-11",
			Department:        "Ministry of Roads",
			Vendor:            "Beta Traders",
			Amount:            amountPtr(95000),
			BidderCount:       intPtr(4),
			DurationDays:      intPtr(120),
			ProcurementMethod: "open",
		},
		{
			ID:                "TND-003",
			Date:              "2026-12-28",
			Department:        "Ministry of Defence",
			Vendor:            "Gamma Supplies",
			Amount:            amountPtr(950000),
			BidderCount:       intPtr(1),
			DurationDays:      intPtr(10),
			ProcurementMethod: "direct",
		},
	}
}

// submitBatch posts a synchronous batch and returns the parsed response.
func submitBatch(t *testing.T, server *Server) BatchResponse {
	t.Helper()

	body, _ := json.Marshal(BatchRequest{Label: "test-batch", Tenders: testTenders()})
	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp BatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulSyncScoring", func(t *testing.T) {
		resp := submitBatch(t, server)

		if resp.BatchID == "" {
			t.Error("expected batchId in response")
		}
		if resp.Status != "scored" {
			t.Errorf("expected status scored, got %s", resp.Status)
		}
		if resp.Size != 3 {
			t.Errorf("expected size 3, got %d", resp.Size)
		}
		if resp.Summary == nil {
			t.Fatal("expected summary in response")
		}
		if resp.Summary.Total != 3 {
			t.Errorf("expected 3 scored records, got %d", resp.Summary.Total)
		}
		if resp.Summary.HighCount < 1 {
			t.Errorf("expected the single-bidder direct award to score high, got %d high", resp.Summary.HighCount)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("AsyncQueuesBatch", func(t *testing.T) {
		body, _ := json.Marshal(BatchRequest{Async: true, Tenders: testTenders()})
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Errorf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp BatchResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "queued" {
			t.Errorf("expected status queued, got %s", resp.Status)
		}
		if resp.Summary != nil {
			t.Error("expected no summary for queued batch")
		}
	})

	t.Run("EmptyTenders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBufferString(`{"tenders":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingAmount", func(t *testing.T) {
		tenders := testTenders()
		tenders[1].Amount = nil

		body, _ := json.Marshal(BatchRequest{Tenders: tenders})
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["kind"] != string(domain.KindSchema) {
			t.Errorf("expected schema error kind, got %s", resp["kind"])
		}
		if resp["record"] != "TND-002" {
			t.Errorf("expected offending record TND-002, got %s", resp["record"])
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestCSVEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulCSVScoring", func(t *testing.T) {
		csv := strings.Join([]string{
			"tender_id,pub_date,dept_name,vendor_name,contract_amount,num_bids,contract_duration_days,proc_method",
			"CSV-001,2026-03-10,Roads,Alpha,120000,6,180,open",
			"CSV-002,2026-03-11,Roads,Beta,95000,4,120,open",
			"CSV-003,2026-12-28,Defence,Gamma,950000,1,10,direct",
		}, "\n")

		req := httptest.NewRequest(http.MethodPost, "/batches/csv", strings.NewReader(csv))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp BatchResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "scored" {
			t.Errorf("expected status scored, got %s", resp.Status)
		}
		if resp.Size != 3 {
			t.Errorf("expected size 3, got %d", resp.Size)
		}
	})

	t.Run("MissingAmountColumn", func(t *testing.T) {
		csv := "tender_id,pub_date,dept_name\nCSV-001,2026-03-10,Roads\n"

		req := httptest.NewRequest(http.MethodPost, "/batches/csv", strings.NewReader(csv))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyCSV", func(t *testing.T) {
		csv := "tender_id,contract_amount\n"

		req := httptest.NewRequest(http.MethodPost, "/batches/csv", strings.NewReader(csv))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestReportEndpoints(t *testing.T) {
	server := createTestServer(t)
	batch := submitBatch(t, server)

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		return rr
	}

	t.Run("GetBatch", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var got domain.Batch
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if got.ID != batch.BatchID {
			t.Errorf("expected batch %s, got %s", batch.BatchID, got.ID)
		}
		if got.ScoredAt.IsZero() {
			t.Error("expected batch to be marked scored")
		}
	})

	t.Run("ListReports", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/reports")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count   int                  `json:"count"`
			Reports []*domain.RiskReport `json:"reports"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 3 {
			t.Errorf("expected 3 reports, got %d", resp.Count)
		}
		// Reports come back sorted by fused score descending.
		for i := 1; i < len(resp.Reports); i++ {
			if resp.Reports[i].FusedScore > resp.Reports[i-1].FusedScore {
				t.Error("expected reports ordered by fused score descending")
				break
			}
		}
	})

	t.Run("FilteredReports", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/reports?category=HIGH")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Reports []*domain.RiskReport `json:"reports"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		for _, r := range resp.Reports {
			if r.RiskCategory != domain.RiskHigh {
				t.Errorf("expected only High reports, got %s", r.RiskCategory)
			}
		}
	})

	t.Run("GetSummary", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/summary")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var s domain.BatchSummary
		if err := json.Unmarshal(rr.Body.Bytes(), &s); err != nil {
			t.Fatalf("failed to parse summary: %v", err)
		}
		if s.Total != 3 {
			t.Errorf("expected 3 total records, got %d", s.Total)
		}
		if s.HighCount+s.MediumCount+s.LowCount != s.Total {
			t.Error("expected category counts to sum to total")
		}
	})

	t.Run("TextSummary", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/summary?format=text")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("expected text/plain content type, got %s", ct)
		}
		if !strings.Contains(rr.Body.String(), "Procurement Fraud Risk Report") {
			t.Error("expected text summary header in body")
		}
	})

	t.Run("ExportCSV", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/reports/export")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("expected text/csv content type, got %s", ct)
		}
		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		if len(lines) != 4 {
			t.Errorf("expected header plus 3 rows, got %d lines", len(lines))
		}
		if !strings.HasPrefix(lines[0], "tender_id,") {
			t.Errorf("expected CSV header, got %q", lines[0])
		}
	})

	t.Run("GetAndExplainReport", func(t *testing.T) {
		rr := get(t, "/batches/"+batch.BatchID+"/reports")
		var listResp struct {
			Reports []*domain.RiskReport `json:"reports"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &listResp); err != nil {
			t.Fatalf("failed to parse report list: %v", err)
		}
		if len(listResp.Reports) == 0 {
			t.Fatal("expected at least one report")
		}
		reportID := listResp.Reports[0].ID

		rr = get(t, "/reports/"+reportID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// Second read comes from cache and must match.
		rr2 := get(t, "/reports/"+reportID)
		if rr2.Code != http.StatusOK {
			t.Fatalf("expected status 200 on cached read, got %d", rr2.Code)
		}
		var first, second domain.RiskReport
		json.Unmarshal(rr.Body.Bytes(), &first)
		json.Unmarshal(rr2.Body.Bytes(), &second)
		if first.ID != second.ID || first.FusedScore != second.FusedScore {
			t.Error("expected cached report to match stored report")
		}

		rr = get(t, "/reports/"+reportID+"/explain")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for explain, got %d: %s", rr.Code, rr.Body.String())
		}
		var ec domain.ExplanationContext
		if err := json.Unmarshal(rr.Body.Bytes(), &ec); err != nil {
			t.Fatalf("failed to parse explanation context: %v", err)
		}
		if ec.TenderID == "" {
			t.Error("expected tender ID in explanation context")
		}
	})

	t.Run("ReportNotFound", func(t *testing.T) {
		rr := get(t, "/reports/no-such-report")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("GetThresholds", func(t *testing.T) {
		rr := get(t, "/thresholds")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var th domain.Thresholds
		if err := json.Unmarshal(rr.Body.Bytes(), &th); err != nil {
			t.Fatalf("failed to parse thresholds: %v", err)
		}
		if th.HighCut != 70 {
			t.Errorf("expected high cut 70, got %v", th.HighCut)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Builtin []map[string]any `json:"builtin"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(resp.Builtin) == 0 {
			t.Error("expected built-in indicators in response")
		}
	})

	t.Run("CreateReloadAndDeleteRule", func(t *testing.T) {
		ruleReq := CreateRuleRequest{
			ID:         "custom-large-direct",
			Label:      "Large Direct Award",
			Expression: "amount > 500000.0 && direct_award_flag == 1.0",
			Weight:     25,
			Enabled:    true,
		}
		body, _ := json.Marshal(ruleReq)
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		// Reload pulls the saved rule into the scorer.
		req = httptest.NewRequest(http.MethodPost, "/rules/reload", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for reload, got %d: %s", rr.Code, rr.Body.String())
		}

		req = httptest.NewRequest(http.MethodGet, "/rules/custom-large-direct", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for loaded rule, got %d", rr.Code)
		}

		req = httptest.NewRequest(http.MethodDelete, "/rules/custom-large-direct", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for delete, got %d: %s", rr.Code, rr.Body.String())
		}

		req = httptest.NewRequest(http.MethodGet, "/rules/custom-large-direct", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr.Code)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		ruleReq := CreateRuleRequest{
			ID:         "custom-bad",
			Label:      "Bad Rule",
			Expression: "no_such_feature > 1.0",
			Weight:     10,
			Enabled:    true,
		}
		body, _ := json.Marshal(ruleReq)
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBufferString(`{"id":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
