// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores a batch with tenant isolation.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batch *domain.Batch) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO batches (id, tenant_id, label, size, created_at, scored_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var scoredAt any
	if !batch.ScoredAt.IsZero() {
		scoredAt = batch.ScoredAt
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		batch.ID, tenantID, batch.Label, batch.Size, batch.CreatedAt, scoredAt,
	)
	return err
}

// GetBatch retrieves a batch by ID with tenant isolation.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.Batch, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, label, size, created_at, scored_at
		FROM batches
		WHERE tenant_id = ? AND id = ?
	`

	var b domain.Batch
	var scoredAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(
		&b.ID, &b.TenantID, &b.Label, &b.Size, &b.CreatedAt, &scoredAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if scoredAt.Valid {
		b.ScoredAt = scoredAt.Time
	}
	return &b, nil
}

// MarkBatchScored records the completion time of a batch scoring pass.
func (r *SQLRepository) MarkBatchScored(ctx context.Context, tenantID string, batchID string, scoredAt time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE batches SET scored_at = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), scoredAt, tenantID, batchID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTenders stores a batch's tenders in one transaction.
func (r *SQLRepository) SaveTenders(ctx context.Context, tenantID string, batchID string, tenders []*domain.Tender) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO tenders (
			id, tenant_id, batch_id, department, vendor, amount,
			bidder_count, duration_days, procurement_method, description,
			publish_date, created_at, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, t := range tenders {
		quality, _ := json.Marshal(t.Quality)

		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var publishDate any
		if !t.PublishDate.IsZero() {
			publishDate = t.PublishDate
		}

		if _, err := tx.ExecContext(ctx, query,
			t.ID, tenantID, batchID, t.Department, t.Vendor, t.Amount,
			t.BidderCount, t.DurationDays, t.ProcurementMethod, t.Description,
			publishDate, createdAt, string(quality),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTender retrieves a tender by ID with tenant isolation.
func (r *SQLRepository) GetTender(ctx context.Context, tenantID string, tenderID string) (*domain.Tender, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, department, vendor, amount, bidder_count,
			   duration_days, procurement_method, description, publish_date,
			   created_at, quality
		FROM tenders
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, tenderID)
	t, err := scanTender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTenders retrieves a batch's tenders in insertion order.
func (r *SQLRepository) ListTenders(ctx context.Context, tenantID string, batchID string) ([]*domain.Tender, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, department, vendor, amount, bidder_count,
			   duration_days, procurement_method, description, publish_date,
			   created_at, quality
		FROM tenders
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenders []*domain.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, t)
	}
	return tenders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTender(row rowScanner) (*domain.Tender, error) {
	var t domain.Tender
	var publishDate sql.NullTime
	var quality string

	if err := row.Scan(
		&t.ID, &t.TenantID, &t.Department, &t.Vendor, &t.Amount,
		&t.BidderCount, &t.DurationDays, &t.ProcurementMethod, &t.Description,
		&publishDate, &t.CreatedAt, &quality,
	); err != nil {
		return nil, err
	}

	if publishDate.Valid {
		t.PublishDate = publishDate.Time
	}
	if quality != "" {
		json.Unmarshal([]byte(quality), &t.Quality)
	}
	return &t, nil
}

// SaveReports stores a batch's risk reports in one transaction.
func (r *SQLRepository) SaveReports(ctx context.Context, tenantID string, reports []*domain.RiskReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO risk_reports (
			id, tenant_id, batch_id, tender_id, department, vendor, amount,
			publish_date, rule_score, anomaly_score, fused_score,
			risk_category, detection_source, hidden_risk, triggered_rules,
			degraded, quality_notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, rep := range reports {
		flags, _ := json.Marshal(rep.TriggeredRules)
		notes, _ := json.Marshal(rep.QualityNotes)

		var publishDate any
		if !rep.PublishDate.IsZero() {
			publishDate = rep.PublishDate
		}

		if _, err := tx.ExecContext(ctx, query,
			rep.ID, tenantID, rep.BatchID, rep.TenderID,
			rep.Department, rep.Vendor, rep.Amount, publishDate,
			rep.RuleScore, rep.AnomalyScore, rep.FusedScore,
			string(rep.RiskCategory), string(rep.DetectionSource), boolToInt(rep.HiddenRisk),
			string(flags), boolToInt(rep.Degraded), string(notes), rep.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetReport retrieves a risk report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.RiskReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, tender_id, department, vendor, amount,
			   publish_date, rule_score, anomaly_score, fused_score,
			   risk_category, detection_source, hidden_risk, triggered_rules,
			   degraded, quality_notes, created_at
		FROM risk_reports
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rep, err
}

// ListReports retrieves a batch's reports, most alarming first. Category,
// source and hidden-only projections are pushed into the query.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, batchID string, filter domain.ReportFilter) ([]*domain.RiskReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, tender_id, department, vendor, amount,
			   publish_date, rule_score, anomaly_score, fused_score,
			   risk_category, detection_source, hidden_risk, triggered_rules,
			   degraded, quality_notes, created_at
		FROM risk_reports
		WHERE tenant_id = ? AND batch_id = ?
	`
	args := []any{tenantID, batchID}

	if filter.Category != "" {
		query += ` AND risk_category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Source != "" {
		query += ` AND detection_source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.HiddenOnly {
		query += ` AND hidden_risk = 1`
	}
	query += ` ORDER BY fused_score DESC, tender_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.RiskReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*domain.RiskReport, error) {
	var rep domain.RiskReport
	var publishDate sql.NullTime
	var category, source, flags, notes string
	var hidden, degraded int

	if err := row.Scan(
		&rep.ID, &rep.TenantID, &rep.BatchID, &rep.TenderID,
		&rep.Department, &rep.Vendor, &rep.Amount, &publishDate,
		&rep.RuleScore, &rep.AnomalyScore, &rep.FusedScore,
		&category, &source, &hidden, &flags,
		&degraded, &notes, &rep.CreatedAt,
	); err != nil {
		return nil, err
	}

	if publishDate.Valid {
		rep.PublishDate = publishDate.Time
	}
	rep.RiskCategory = domain.RiskCategory(category)
	rep.DetectionSource = domain.DetectionSource(source)
	rep.HiddenRisk = hidden == 1
	rep.Degraded = degraded == 1
	json.Unmarshal([]byte(flags), &rep.TriggeredRules)
	if notes != "" {
		json.Unmarshal([]byte(notes), &rep.QualityNotes)
	}
	return &rep, nil
}

// SaveCustomRule stores a custom rule configuration with tenant isolation.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, tenant_id, label, description, rule_group, version,
			expression, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			rule_group = excluded.rule_group,
			expression = excluded.expression,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Label, rule.Description, rule.Group,
		rule.Version, rule.Expression, rule.Weight, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetCustomRule retrieves the latest enabled version of a custom rule.
func (r *SQLRepository) GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, label, description, rule_group, version, expression, weight, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.CustomRuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Label, &cfg.Description,
		&cfg.Group, &cfg.Version, &cfg.Expression, &cfg.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListCustomRules retrieves all enabled custom rules for a tenant.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, label, description, rule_group, version, expression, weight, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.CustomRuleConfig
	for rows.Next() {
		var cfg domain.CustomRuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Label, &cfg.Description,
			&cfg.Group, &cfg.Version, &cfg.Expression, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
