package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
)

// topBandQuantile marks the top 2% of the anomalousness distribution, which
// maps to the highest score band.
const (
	topBandQuantile = 0.98
	topBandScore    = 98.0
)

// Adapter feeds normalized feature vectors through the anomaly model and
// converts the raw statistic to a bounded, batch-relative percentile score
// in [0,100].
type Adapter struct {
	model Model
}

// NewAdapter validates the model's declared feature schema against the
// normalizer's frozen schema and refuses to score on any mismatch. A
// mismatch is a fatal configuration problem, never a silently-wrong
// prediction.
func NewAdapter(model Model) (*Adapter, error) {
	if model == nil {
		return nil, domain.NewError(domain.KindModelUnavailable, domain.BatchScope, "no anomaly model configured")
	}

	if model.SchemaVersion() != features.SchemaVersionV1 {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			fmt.Sprintf("model %s was fit against feature schema %q, engine produces %q",
				model.Version(), model.SchemaVersion(), features.SchemaVersionV1))
	}

	declared := model.FeatureNames()
	expected := features.SchemaV1()
	if len(declared) != len(expected) {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			fmt.Sprintf("model %s declares %d features, schema %s has %d",
				model.Version(), len(declared), features.SchemaVersionV1, len(expected)))
	}
	for i, name := range expected {
		if declared[i] != name {
			return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
				fmt.Sprintf("model %s feature %d is %q, schema expects %q",
					model.Version(), i, declared[i], name))
		}
	}

	return &Adapter{model: model}, nil
}

// ModelVersion returns the wrapped model's artifact version.
func (a *Adapter) ModelVersion() string { return a.model.Version() }

// ScoreBatch computes anomaly scores for every vector, ranked against the
// current batch's own raw-statistic distribution. Scores are in [0,100];
// the top 2% of the batch lands in the highest band (>= 98).
func (a *Adapter) ScoreBatch(ctx context.Context, vectors []*domain.FeatureVector) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	anomalousness := make([]float64, len(vectors))
	for i, fv := range vectors {
		raw, err := a.raw(ctx, fv)
		if err != nil {
			return nil, err
		}
		anomalousness[i] = a.orient(raw)
	}

	dist := append([]float64(nil), anomalousness...)
	sort.Float64s(dist)

	scores := make([]float64, len(vectors))
	for i, v := range anomalousness {
		scores[i] = percentileScore(dist, v)
	}
	return scores, nil
}

// ScoreOne scores a single record outside a batch context, ranked against
// the stored reference distribution from the model's calibration run.
func (a *Adapter) ScoreOne(ctx context.Context, fv *domain.FeatureVector) (float64, error) {
	ref := a.model.Reference()
	if len(ref) == 0 {
		return 0, domain.NewError(domain.KindConfiguration, fv.TenderID,
			fmt.Sprintf("model %s carries no reference distribution; single-record scoring requires a calibrated artifact", a.model.Version()))
	}

	raw, err := a.raw(ctx, fv)
	if err != nil {
		return 0, err
	}

	dist := make([]float64, len(ref))
	for i, r := range ref {
		dist[i] = a.orient(r)
	}
	sort.Float64s(dist)

	return percentileScore(dist, a.orient(raw)), nil
}

func (a *Adapter) raw(ctx context.Context, fv *domain.FeatureVector) (float64, error) {
	if fv.SchemaVersion != features.SchemaVersionV1 {
		return 0, domain.NewError(domain.KindSchema, fv.TenderID,
			fmt.Sprintf("feature vector built with schema %q, model expects %q", fv.SchemaVersion, features.SchemaVersionV1))
	}

	raw, err := a.model.Raw(ctx, fv.Values)
	if err != nil {
		if domain.IsKind(err, domain.KindSchema) {
			return 0, err
		}
		return 0, domain.WrapError(domain.KindModelUnavailable, fv.TenderID, "anomaly model call failed", err)
	}
	return raw, nil
}

// orient normalizes the raw statistic so that higher always means more
// anomalous, per the artifact's declared convention.
func (a *Adapter) orient(raw float64) float64 {
	if a.model.Orientation() == OrientLower {
		return -raw
	}
	return raw
}

// percentileScore converts an anomalousness value to a 0-100 score via the
// empirical CDF of dist (sorted ascending), with midranking for ties. Values
// at or above the distribution's 98th percentile are clamped into the top
// band.
func percentileScore(dist []float64, v float64) float64 {
	n := len(dist)
	if n == 0 {
		return 0
	}

	below := sort.SearchFloat64s(dist, v)
	above := sort.Search(n, func(i int) bool { return dist[i] > v })
	equal := above - below

	score := 100 * (float64(below) + 0.5*float64(equal)) / float64(n)

	if v >= quantile(dist, topBandQuantile) && score < topBandScore {
		score = topBandScore
	}

	return math.Min(100, math.Max(0, score))
}

// quantile interpolates the q-th quantile of a sorted distribution.
func quantile(dist []float64, q float64) float64 {
	n := len(dist)
	if n == 1 {
		return dist[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return dist[lo]
	}
	frac := pos - float64(lo)
	return dist[lo]*(1-frac) + dist[hi]*frac
}
