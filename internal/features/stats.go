package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// stdEpsilon guards z-score divisions against zero-variance departments.
const stdEpsilon = 1e-8

type deptAccum struct {
	count        int
	amountSum    float64
	amountSumSq  float64
	ppdSum       float64
	ppdSumSq     float64
	singleBidder int
}

// StatsBuilder accumulates one batch's aggregates. It is strictly two-phase:
// every record is folded in with Add, then Freeze seals the builder and
// returns the immutable BatchStats. Per-record scoring only ever receives
// the frozen value, so scoring against partially-built statistics cannot be
// expressed.
type StatsBuilder struct {
	frozen     bool
	amounts    []float64
	depts      map[string]*deptAccum
	vendorWins map[string]int
}

// NewStatsBuilder creates an empty builder for one batch.
func NewStatsBuilder() *StatsBuilder {
	return &StatsBuilder{
		depts:      make(map[string]*deptAccum),
		vendorWins: make(map[string]int),
	}
}

// Add folds one tender into the aggregates.
func (b *StatsBuilder) Add(t *domain.Tender) error {
	if b.frozen {
		return fmt.Errorf("stats builder already frozen")
	}

	b.amounts = append(b.amounts, t.Amount)

	dept := t.Department
	if dept == "" {
		dept = "Unknown"
	}
	acc, ok := b.depts[dept]
	if !ok {
		acc = &deptAccum{}
		b.depts[dept] = acc
	}

	ppd := pricePerDay(t.Amount, t.DurationDays)

	acc.count++
	acc.amountSum += t.Amount
	acc.amountSumSq += t.Amount * t.Amount
	acc.ppdSum += ppd
	acc.ppdSumSq += ppd * ppd
	if t.BidderCount == 1 {
		acc.singleBidder++
	}

	if t.Vendor != "" {
		b.vendorWins[t.Vendor]++
	}

	return nil
}

// Freeze seals the builder and returns the batch statistics. Further Add
// calls fail.
func (b *StatsBuilder) Freeze() *domain.BatchStats {
	b.frozen = true

	depts := make(map[string]domain.DeptStats, len(b.depts))
	for name, acc := range b.depts {
		n := float64(acc.count)
		amountMean := acc.amountSum / n
		ppdMean := acc.ppdSum / n
		depts[name] = domain.DeptStats{
			Count:            acc.count,
			AmountMean:       amountMean,
			AmountStdDev:     stddev(acc.amountSumSq, amountMean, n),
			PricePerDayMean:  ppdMean,
			PricePerDayStd:   stddev(acc.ppdSumSq, ppdMean, n),
			SingleBidderRate: float64(acc.singleBidder) / n,
		}
	}

	return domain.NewBatchStats(len(b.amounts), median(b.amounts), depts, b.vendorWins)
}

// BuildStats runs the full aggregate pass over a batch. This is the only
// entry point the pipeline uses; the barrier between the aggregate pass and
// the parallel scoring pass is the return of this function.
func BuildStats(tenders []*domain.Tender) (*domain.BatchStats, error) {
	b := NewStatsBuilder()
	for _, t := range tenders {
		if err := b.Add(t); err != nil {
			return nil, err
		}
	}
	return b.Freeze(), nil
}

func stddev(sumSq, mean, n float64) float64 {
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// median returns the median of positive amounts; amounts imputed to zero at
// ingestion are excluded so they do not drag the imputation default down.
func median(amounts []float64) float64 {
	positive := make([]float64, 0, len(amounts))
	for _, a := range amounts {
		if a > 0 {
			positive = append(positive, a)
		}
	}
	if len(positive) == 0 {
		return 0
	}
	sort.Float64s(positive)
	mid := len(positive) / 2
	if len(positive)%2 == 1 {
		return positive[mid]
	}
	return (positive[mid-1] + positive[mid]) / 2
}

func pricePerDay(amount float64, durationDays int) float64 {
	return amount / float64(durationDays+1)
}
