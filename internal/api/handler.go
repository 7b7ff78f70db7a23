package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/ingest"
	"github.com/opensource-procurement/kestrel/internal/report"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/scoring"
)

// GlobalTenantID is used for custom rules that apply to all tenants.
const GlobalTenantID = "*"

// reportCacheTTL bounds how long scored reports stay in the read cache.
const reportCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	scorer   *rules.Scorer
	pipeline *scoring.Pipeline
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scorer *rules.Scorer, pipeline *scoring.Pipeline, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		scorer:   scorer,
		pipeline: pipeline,
		version:  version,
	}
}

// BatchRequest is the request body for POST /batches.
type BatchRequest struct {
	Label   string                  `json:"label,omitempty"`
	Async   bool                    `json:"async,omitempty"`
	Tenders []*domain.TenderRequest `json:"tenders"`
}

// BatchResponse is the response for batch submission.
type BatchResponse struct {
	BatchID string              `json:"batchId"`
	Status  string              `json:"status"`
	Size    int                 `json:"size"`
	Summary *domain.BatchSummary `json:"summary,omitempty"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// CreateBatch handles POST /batches: ingest a batch of tenders and either
// score it synchronously or queue it for the async worker.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Tenders) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "tenders must not be empty",
		})
		return
	}

	tenders := make([]*domain.Tender, 0, len(req.Tenders))
	for _, tr := range req.Tenders {
		t, err := ingest.MapRequest(tr)
		if err != nil {
			writeError(w, err)
			return
		}
		tenders = append(tenders, t)
	}

	h.ingestAndScore(w, r, tenantID, traceID, req.Label, req.Async, tenders, start)
}

// CreateBatchCSV handles POST /batches/csv: ingest a raw CSV export. Column
// headers are resolved through the ingestion synonym lists.
func (h *Handler) CreateBatchCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	reader, err := ingest.NewReader(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	tenders, err := reader.ReadAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if len(tenders) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "CSV contains no data rows",
		})
		return
	}

	async := r.URL.Query().Get("async") == "true"
	h.ingestAndScore(w, r, tenantID, traceID, r.URL.Query().Get("label"), async, tenders, start)
}

func (h *Handler) ingestAndScore(w http.ResponseWriter, r *http.Request, tenantID, traceID, label string, async bool, tenders []*domain.Tender, start time.Time) {
	ctx := r.Context()

	batch := &domain.Batch{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Label:     label,
		Size:      len(tenders),
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.SaveBatch(ctx, tenantID, batch); err != nil {
		slog.Error("failed to save batch", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save batch",
		})
		return
	}
	if err := h.repo.SaveTenders(ctx, tenantID, batch.ID, tenders); err != nil {
		slog.Error("failed to save tenders", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save tenders",
		})
		return
	}

	if async {
		event := bus.BatchIngestedEvent{
			BatchID:  batch.ID,
			TenantID: tenantID,
			TraceID:  traceID,
			Size:     batch.Size,
		}
		if err := bus.PublishEvent(ctx, h.bus, tenantID, domain.TopicBatchIngested, event); err != nil {
			slog.Error("failed to publish ingested event", "batch_id", batch.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue batch",
			})
			return
		}

		resp := BatchResponse{BatchID: batch.ID, Status: "queued", Size: batch.Size}
		resp.Metadata.TraceID = traceID
		resp.Metadata.TotalMs = time.Since(start).Milliseconds()
		resp.Metadata.Version = h.version
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	reports, err := h.pipeline.ScoreBatch(ctx, tenantID, batch.ID, tenders)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.SaveReports(ctx, tenantID, reports); err != nil {
		slog.Error("failed to save reports", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save reports",
		})
		return
	}
	if err := h.repo.MarkBatchScored(ctx, tenantID, batch.ID, time.Now().UTC()); err != nil {
		slog.Error("failed to mark batch scored", "batch_id", batch.ID, "error", err)
	}

	summary := report.Summarize(batch.ID, reports)

	resp := BatchResponse{BatchID: batch.ID, Status: "scored", Size: batch.Size, Summary: &summary}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	writeJSON(w, http.StatusOK, resp)
}

// GetBatch retrieves batch metadata.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	batch, err := h.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		writeRepoError(w, "batch", batchID, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// ListReports retrieves a batch's reports. The full report, high-risk-only
// and hidden-risk-only views are all query filters over the same scored data.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	filter := domain.ReportFilter{
		Category:   domain.RiskCategory(r.URL.Query().Get("category")),
		Source:     domain.DetectionSource(r.URL.Query().Get("source")),
		HiddenOnly: r.URL.Query().Get("hidden") == "true",
	}

	reports, err := h.repo.ListReports(ctx, tenantID, batchID, filter)
	if err != nil {
		slog.Error("failed to list reports", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batchId": batchID,
		"count":   len(reports),
		"reports": reports,
	})
}

// ExportReports streams a batch's reports as CSV.
func (h *Handler) ExportReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	reports, err := h.repo.ListReports(ctx, tenantID, batchID, domain.ReportFilter{})
	if err != nil {
		slog.Error("failed to list reports for export", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="risk_reports_`+batchID+`.csv"`)
	if err := report.ExportCSV(w, reports); err != nil {
		slog.Error("failed to export reports", "batch_id", batchID, "error", err)
	}
}

// GetSummary returns the executive summary for a batch. With ?format=text it
// renders the plain-text report instead of JSON.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	reports, err := h.repo.ListReports(ctx, tenantID, batchID, domain.ReportFilter{})
	if err != nil {
		slog.Error("failed to list reports for summary", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	summary := report.Summarize(batchID, reports)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(report.TextSummary(summary, h.pipeline.Thresholds())))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetReport retrieves a single risk report, serving repeated reads from cache.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if h.cache != nil {
		if cached, err := h.cache.GetReport(ctx, tenantID, reportID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeRepoError(w, "report", reportID, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, rep, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", reportID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, rep)
}

// ExplainReport returns the structured explanation context for a report. The
// payload is the complete input contract for an external natural language
// explanation service.
func (h *Handler) ExplainReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeRepoError(w, "report", reportID, err)
		return
	}

	writeJSON(w, http.StatusOK, report.ExplanationContext(rep))
}

// GetThresholds returns the active scoring thresholds.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Thresholds())
}

// ListRules returns the built-in indicators and the loaded custom rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	type indicatorInfo struct {
		ID     string  `json:"id"`
		Label  string  `json:"label"`
		Group  string  `json:"group"`
		Weight float64 `json:"weight"`
	}

	builtins := make([]indicatorInfo, 0)
	for _, ind := range rules.BuiltinIndicators() {
		builtins = append(builtins, indicatorInfo{
			ID:     ind.ID(),
			Label:  ind.Label(),
			Group:  ind.Group(),
			Weight: ind.Weight(),
		})
	}

	custom := h.scorer.GetLoadedCustomRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"builtin":     builtins,
		"custom":      custom,
		"customCount": len(custom),
	})
}

// GetRule retrieves a loaded custom rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.scorer.GetLoadedCustomRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Group       string  `json:"group,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a custom rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the scorer.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Label == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, label, and expression are required",
		})
		return
	}
	if req.Weight <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be positive",
		})
		return
	}

	cfg := &domain.CustomRuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Label:       req.Label,
		Description: req.Description,
		Group:       req.Group,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}
	if cfg.Group == "" {
		cfg.Group = domain.GroupProcess
	}

	// Validate the CEL expression against the frozen feature schema.
	if err := h.scorer.ValidateCustomRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, GlobalTenantID, cfg); err != nil {
		slog.Error("failed to save custom rule", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("custom rule created", "id", cfg.ID, "label", cfg.Label)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    cfg,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes a custom rule and hot-reloads the scorer.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCustomRule(ctx, GlobalTenantID, ruleID); err != nil {
		slog.Error("failed to delete custom rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	remaining, err := h.repo.ListCustomRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to reload custom rules after delete", "error", err)
	} else if err := h.scorer.ReloadCustomRules(remaining); err != nil {
		slog.Error("failed to reload scorer after delete", "error", err)
	}

	slog.Info("custom rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and scorer reloaded.",
	})
}

// ReloadRules reloads all custom rules from the database into the scorer.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListCustomRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list custom rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.scorer.ReloadCustomRules(dbRules); err != nil {
		slog.Error("failed to reload custom rules into scorer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps engine error kinds onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var engineErr *domain.Error
	if errors.As(err, &engineErr) {
		status := http.StatusInternalServerError
		switch engineErr.Kind {
		case domain.KindSchema, domain.KindDataQuality, domain.KindConfiguration:
			status = http.StatusBadRequest
		case domain.KindModelUnavailable:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{
			"error":  engineErr.Message,
			"kind":   string(engineErr.Kind),
			"record": engineErr.RecordID,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}

func writeRepoError(w http.ResponseWriter, what, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": what + " not found",
		})
		return
	}
	slog.Error("failed to get "+what, "id", id, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "failed to get " + what,
	})
}
