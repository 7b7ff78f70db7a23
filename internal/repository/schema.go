package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    label TEXT,
    size INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    scored_at TIMESTAMP,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);
`

const schemaTenders = `
CREATE TABLE IF NOT EXISTS tenders (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    department TEXT,
    vendor TEXT,
    amount REAL NOT NULL,
    bidder_count INTEGER NOT NULL,
    duration_days INTEGER NOT NULL,
    procurement_method TEXT,
    description TEXT,
    publish_date TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    quality TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_tenders_tenant ON tenders(tenant_id);
CREATE INDEX IF NOT EXISTS idx_tenders_batch ON tenders(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_tenders_vendor ON tenders(tenant_id, vendor);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS risk_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    tender_id TEXT NOT NULL,
    department TEXT,
    vendor TEXT,
    amount REAL NOT NULL,
    publish_date TIMESTAMP,
    rule_score REAL NOT NULL,
    anomaly_score REAL NOT NULL,
    fused_score REAL NOT NULL,
    risk_category TEXT NOT NULL,
    detection_source TEXT NOT NULL,
    hidden_risk INTEGER NOT NULL DEFAULT 0,
    triggered_rules TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    quality_notes TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON risk_reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_batch ON risk_reports(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_reports_category ON risk_reports(tenant_id, batch_id, risk_category);
CREATE INDEX IF NOT EXISTS idx_reports_hidden ON risk_reports(tenant_id, batch_id, hidden_risk);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    label TEXT NOT NULL,
    description TEXT,
    rule_group TEXT NOT NULL,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 10.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_tenant ON custom_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaTenders,
		schemaReports,
		schemaCustomRules,
	}
}
