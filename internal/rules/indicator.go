// Package rules provides the rule-based fraud scoring engine: a registry of
// independent indicator predicates plus CEL-compiled custom rules.
package rules

import (
	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Indicator is a single stateless fraud predicate over a feature vector.
// Implementations must be deterministic and must not hold mutable state
// across calls; batch-relative context arrives via BatchStats explicitly.
type Indicator interface {
	ID() string
	Label() string
	Group() string
	Weight() float64
	Evaluate(fv *domain.FeatureVector, stats *domain.BatchStats) domain.RuleFlag
}

// predicate implements Indicator with a pure evaluation function.
type predicate struct {
	id     string
	label  string
	group  string
	weight float64
	eval   func(fv *domain.FeatureVector, stats *domain.BatchStats) (bool, string)
}

func (p *predicate) ID() string      { return p.id }
func (p *predicate) Label() string   { return p.label }
func (p *predicate) Group() string   { return p.group }
func (p *predicate) Weight() float64 { return p.weight }

func (p *predicate) Evaluate(fv *domain.FeatureVector, stats *domain.BatchStats) domain.RuleFlag {
	triggered, detail := p.eval(fv, stats)
	return domain.RuleFlag{
		RuleID:    p.id,
		Label:     p.label,
		Group:     p.group,
		Weight:    p.weight,
		Triggered: triggered,
		Detail:    detail,
	}
}

// Registry is an ordered, immutable collection of indicators. Order only
// fixes the presentation of results; indicator outcomes never depend on it.
type Registry struct {
	indicators []Indicator
}

// NewRegistry builds a registry from the given indicators.
func NewRegistry(indicators ...Indicator) *Registry {
	r := &Registry{indicators: make([]Indicator, len(indicators))}
	copy(r.indicators, indicators)
	return r
}

// Indicators returns the registered indicators in order.
func (r *Registry) Indicators() []Indicator {
	out := make([]Indicator, len(r.indicators))
	copy(out, r.indicators)
	return out
}

// Len returns the number of registered indicators.
func (r *Registry) Len() int { return len(r.indicators) }
