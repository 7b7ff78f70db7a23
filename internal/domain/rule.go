package domain

// RuleFlag is the outcome of one fraud indicator for one tender.
type RuleFlag struct {
	RuleID    string  `json:"ruleId"`
	Label     string  `json:"label"`
	Group     string  `json:"group"` // competition, pricing, timing, process, vendor
	Weight    float64 `json:"weight"`
	Triggered bool    `json:"triggered"`
	Detail    string  `json:"detail,omitempty"`
}

// Indicator groups for the built-in rule set.
const (
	GroupCompetition = "competition"
	GroupPricing     = "pricing"
	GroupTiming      = "timing"
	GroupProcess     = "process"
	GroupVendor      = "vendor"
)

// CustomRuleConfig defines a tenant-configured indicator expressed as a CEL
// expression over the feature vector. The expression must evaluate to a bool
// (triggered/not) or a number (non-zero means triggered).
type CustomRuleConfig struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Group       string  `json:"group"`
	Version     string  `json:"version"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}
