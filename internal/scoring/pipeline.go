// Package scoring orchestrates the full batch scoring pass: batch statistics,
// feature normalization, rule scoring, anomaly ranking, fusion and report
// assembly. It owns the phase ordering; the component packages stay unaware
// of each other.
package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/opensource-procurement/kestrel/internal/anomaly"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
	"github.com/opensource-procurement/kestrel/internal/fusion"
	"github.com/opensource-procurement/kestrel/internal/metrics"
	"github.com/opensource-procurement/kestrel/internal/report"
	"github.com/opensource-procurement/kestrel/internal/rules"
)

const defaultMaxWorkers = 8

// Pipeline runs the dual-model scoring pass over one batch. It is safe for
// concurrent use across batches; all per-batch state lives on the stack of a
// single ScoreBatch call.
type Pipeline struct {
	normalizer *features.Normalizer
	scorer     *rules.Scorer
	adapter    *anomaly.Adapter
	fuser      *fusion.Engine
	builder    *report.Builder
	maxWorkers int
}

// NewPipeline wires the scoring components. maxWorkers bounds the per-record
// parallel phase; values below 1 fall back to the default.
func NewPipeline(scorer *rules.Scorer, adapter *anomaly.Adapter, fuser *fusion.Engine, maxWorkers int) *Pipeline {
	if maxWorkers < 1 {
		maxWorkers = defaultMaxWorkers
	}
	return &Pipeline{
		normalizer: features.NewNormalizer(),
		scorer:     scorer,
		adapter:    adapter,
		fuser:      fuser,
		builder:    report.NewBuilder(),
		maxWorkers: maxWorkers,
	}
}

// Thresholds returns the fusion thresholds the pipeline scores under.
func (p *Pipeline) Thresholds() domain.Thresholds { return p.fuser.Thresholds() }

// ruleOutcome carries one record's per-record phase results, indexed to the
// input ordering so the output is deterministic regardless of goroutine
// scheduling.
type ruleOutcome struct {
	vector    *domain.FeatureVector
	ruleScore float64
	flags     []domain.RuleFlag
}

// ScoreBatch runs the two-phase scoring pass and returns one report per
// tender, in input order. Scoring is a pure function of the batch contents
// and the thresholds: re-running the same batch yields identical scores, and
// input ordering never changes any per-record result. On any error, or on
// context cancellation, all partial results are discarded and no reports are
// returned.
func (p *Pipeline) ScoreBatch(ctx context.Context, tenantID, batchID string, tenders []*domain.Tender) ([]*domain.RiskReport, error) {
	if len(tenders) == 0 {
		return []*domain.RiskReport{}, nil
	}

	start := time.Now()

	// Phase one: fold the whole batch into frozen statistics. No record is
	// scored until every record has been folded in.
	stats, err := features.BuildStats(tenders)
	if err != nil {
		metrics.BatchesScored.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Phase two: normalization and rule scoring are independent per record.
	// Each goroutine writes only its own index.
	outcomes := make([]ruleOutcome, len(tenders))

	wp := pool.New().WithMaxGoroutines(p.maxWorkers).WithContext(ctx).WithCancelOnError()
	for i, t := range tenders {
		i, t := i, t
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fv, err := p.normalizer.Normalize(t, stats)
			if err != nil {
				return err
			}
			score, flags := p.scorer.Score(fv, stats)
			outcomes[i] = ruleOutcome{vector: fv, ruleScore: score, flags: flags}
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		metrics.BatchesScored.WithLabelValues("failed").Inc()
		return nil, err
	}

	// Anomaly ranking needs the full vector set at once; each record's
	// percentile is relative to the batch distribution.
	vectors := make([]*domain.FeatureVector, len(outcomes))
	for i := range outcomes {
		vectors[i] = outcomes[i].vector
	}
	anomalyScores, err := p.adapter.ScoreBatch(ctx, vectors)
	if err != nil {
		metrics.BatchesScored.WithLabelValues("failed").Inc()
		return nil, err
	}

	reports := make([]*domain.RiskReport, len(tenders))
	for i, t := range tenders {
		if err := ctx.Err(); err != nil {
			metrics.BatchesScored.WithLabelValues("canceled").Inc()
			return nil, err
		}

		verdict := p.fuser.Fuse(outcomes[i].ruleScore, anomalyScores[i])
		result := &domain.ScoreResult{
			TenderID:        t.ID,
			BatchID:         batchID,
			RuleScore:       outcomes[i].ruleScore,
			AnomalyScore:    anomalyScores[i],
			FusedScore:      verdict.FusedScore,
			RiskCategory:    verdict.RiskCategory,
			DetectionSource: verdict.DetectionSource,
			HiddenRisk:      verdict.HiddenRisk,
			TriggeredRules:  outcomes[i].flags,
			Degraded:        outcomes[i].vector.Degraded(),
			QualityNotes:    outcomes[i].vector.Quality,
			ScoredAt:        time.Now().UTC(),
		}
		reports[i] = p.builder.Build(tenantID, t, result)

		metrics.RecordsScored.WithLabelValues(string(verdict.RiskCategory)).Inc()
		if verdict.HiddenRisk {
			metrics.HiddenRisks.Inc()
		}
	}

	metrics.BatchesScored.WithLabelValues("ok").Inc()
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	slog.Info("batch scored",
		"batch_id", batchID,
		"tenant_id", tenantID,
		"records", len(reports),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reports, nil
}
