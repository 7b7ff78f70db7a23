package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
)

// MaxRuleScore bounds the rule score: triggered weights compound but are
// clamped, not averaged, so independent concerns add up without exceeding
// the bound.
const MaxRuleScore = 100.0

// Scorer evaluates the built-in indicator registry plus any loaded custom
// CEL rules against a feature vector. Scoring is deterministic: identical
// FeatureVector and BatchStats always yield the identical triggered set and
// score, regardless of evaluation order.
type Scorer struct {
	mu       sync.RWMutex
	registry *Registry
	env      *cel.Env
	custom   map[string]*CompiledCustomRule
}

// CompiledCustomRule holds a pre-compiled CEL program for a custom rule.
type CompiledCustomRule struct {
	Config  *domain.CustomRuleConfig
	Program cel.Program
}

// NewScorer creates a rule scorer over the given registry. The CEL
// environment exposes every frozen-schema feature by name as a double.
func NewScorer(registry *Registry) (*Scorer, error) {
	opts := make([]cel.EnvOption, 0, features.FeatureCount())
	for _, name := range features.SchemaV1() {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Scorer{
		registry: registry,
		env:      env,
		custom:   make(map[string]*CompiledCustomRule),
	}, nil
}

// ValidateCustomRule compiles a custom rule without loading it.
func (s *Scorer) ValidateCustomRule(cfg *domain.CustomRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.compileCustomRule(cfg)
	return err
}

// LoadCustomRule compiles and loads one custom rule.
func (s *Scorer) LoadCustomRule(cfg *domain.CustomRuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compiled, err := s.compileCustomRule(cfg)
	if err != nil {
		return err
	}

	s.custom[cfg.ID] = compiled
	return nil
}

// LoadCustomRules compiles and loads multiple enabled custom rules.
func (s *Scorer) LoadCustomRules(configs []*domain.CustomRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := s.LoadCustomRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadCustomRules clears existing custom rules and loads new ones.
// This enables hot-reloading from the repository without a restart.
func (s *Scorer) ReloadCustomRules(configs []*domain.CustomRuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*CompiledCustomRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := s.compileCustomRule(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	s.custom = next
	return nil
}

// CustomRulesCount returns the number of loaded custom rules.
func (s *Scorer) CustomRulesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.custom)
}

// GetLoadedCustomRules returns the currently loaded custom rule configs.
func (s *Scorer) GetLoadedCustomRules() []*domain.CustomRuleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CustomRuleConfig, 0, len(s.custom))
	for _, c := range s.custom {
		out = append(out, c.Config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IndicatorCount returns the number of built-in indicators.
func (s *Scorer) IndicatorCount() int {
	return s.registry.Len()
}

// Score evaluates every indicator and custom rule against the feature
// vector. It returns the clamped rule score and the triggered flags in a
// deterministic order (built-ins in registry order, custom rules by ID).
func (s *Scorer) Score(fv *domain.FeatureVector, stats *domain.BatchStats) (float64, []domain.RuleFlag) {
	var total float64
	var triggered []domain.RuleFlag

	for _, ind := range s.registry.Indicators() {
		flag := ind.Evaluate(fv, stats)
		if flag.Triggered {
			total += flag.Weight
			triggered = append(triggered, flag)
		}
	}

	for _, flag := range s.evaluateCustomRules(fv) {
		if flag.Triggered {
			total += flag.Weight
			triggered = append(triggered, flag)
		}
	}

	if total > MaxRuleScore {
		total = MaxRuleScore
	}
	return total, triggered
}

func (s *Scorer) evaluateCustomRules(fv *domain.FeatureVector) []domain.RuleFlag {
	s.mu.RLock()
	compiled := make([]*CompiledCustomRule, 0, len(s.custom))
	for _, c := range s.custom {
		compiled = append(compiled, c)
	}
	s.mu.RUnlock()

	if len(compiled) == 0 {
		return nil
	}
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].Config.ID < compiled[j].Config.ID })

	activation := make(map[string]any, features.FeatureCount())
	for i, name := range features.SchemaV1() {
		activation[name] = fv.Values[i]
	}

	flags := make([]domain.RuleFlag, 0, len(compiled))
	for _, c := range compiled {
		flag := domain.RuleFlag{
			RuleID: c.Config.ID,
			Label:  c.Config.Label,
			Group:  c.Config.Group,
			Weight: c.Config.Weight,
		}

		out, _, err := c.Program.Eval(activation)
		if err != nil {
			flag.Detail = fmt.Sprintf("evaluation error: %v", err)
			flags = append(flags, flag)
			continue
		}

		flag.Triggered = isTriggered(out)
		if flag.Triggered {
			flag.Detail = c.Config.Description
		}
		flags = append(flags, flag)
	}
	return flags
}

// isTriggered converts a CEL result to a triggered/not verdict.
func isTriggered(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) != 0
	case types.Int:
		return int64(v) != 0
	default:
		return false
	}
}

// Close cleans up the scorer.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = make(map[string]*CompiledCustomRule)
	return nil
}

func (s *Scorer) compileCustomRule(cfg *domain.CustomRuleConfig) (*CompiledCustomRule, error) {
	ast, issues := s.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledCustomRule{Config: cfg, Program: program}, nil
}
