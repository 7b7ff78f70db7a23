package features

import (
	"math"
	"strings"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Indicator cutoffs, grounded in the procurement red-flag literature the
// rule set encodes.
const (
	lowCompetitionMax   = 3   // fewer than 3 bidders is weak competition
	shortDurationDays   = 7   // contracts under a week
	roundAmountUnit     = 100000
	defaultDurationDays = 30
)

// Approval-threshold bands: amounts parked just under a sanctioning limit.
var thresholdBands = [][2]float64{
	{950000, 1000000},
	{2400000, 2500000},
}

// Normalizer converts tenders into frozen-schema feature vectors. It is
// stateless; batch-relative context always arrives via the BatchStats
// argument, never via internal accumulators.
type Normalizer struct{}

// NewNormalizer creates a feature normalizer for schema v1.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// SchemaVersion returns the schema the normalizer produces.
func (n *Normalizer) SchemaVersion() string { return SchemaVersionV1 }

// Normalize derives the feature vector for one tender against its batch's
// frozen statistics. Missing values are imputed with a deterministic policy
// and annotated; every valid tender yields a complete vector.
func (n *Normalizer) Normalize(t *domain.Tender, stats *domain.BatchStats) (*domain.FeatureVector, error) {
	if t == nil {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope, "nil tender")
	}
	if stats == nil {
		return nil, domain.NewError(domain.KindSchema, t.ID, "batch statistics are required")
	}

	fv := &domain.FeatureVector{
		TenderID:      t.ID,
		SchemaVersion: SchemaVersionV1,
		Values:        make([]float64, featureCount),
	}
	fv.Quality = append(fv.Quality, t.Quality...)

	amount := t.Amount
	if amount <= 0 || math.IsNaN(amount) {
		amount = stats.AmountMedian()
		fv.Quality = append(fv.Quality, domain.QualityNote{
			Kind:   domain.KindDataQuality,
			Field:  "amount",
			Issue:  "missing or non-positive",
			Action: "imputed batch median",
		})
	}

	bidders := t.BidderCount
	if bidders < 0 {
		bidders = 0
		fv.Quality = append(fv.Quality, domain.QualityNote{
			Kind:   domain.KindDataQuality,
			Field:  "bidder_count",
			Issue:  "negative",
			Action: "clamped to zero",
		})
	}

	duration := t.DurationDays
	if duration <= 0 {
		duration = defaultDurationDays
		fv.Quality = append(fv.Quality, domain.QualityNote{
			Kind:   domain.KindDataQuality,
			Field:  "duration_days",
			Issue:  "missing or non-positive",
			Action: "imputed 30-day default",
		})
	}

	dept := t.Department
	if dept == "" {
		dept = "Unknown"
		fv.Quality = append(fv.Quality, domain.QualityNote{
			Kind:   domain.KindDataQuality,
			Field:  "department",
			Issue:  "missing",
			Action: "imputed Unknown",
		})
	}

	ppd := pricePerDay(amount, duration)

	fv.Values[FeatAmount] = amount
	fv.Values[FeatBidderCount] = float64(bidders)
	fv.Values[FeatDurationDays] = float64(duration)
	fv.Values[FeatSingleBidder] = boolFeat(bidders == 1)
	fv.Values[FeatLowCompetition] = boolFeat(bidders > 0 && bidders < lowCompetitionMax)
	fv.Values[FeatZeroBidders] = boolFeat(bidders == 0)
	fv.Values[FeatPricePerDay] = ppd

	if ds, ok := stats.Dept(dept); ok && ds.Count > 1 {
		fv.Values[FeatAmountZScore] = math.Abs((amount - ds.AmountMean) / (ds.AmountStdDev + stdEpsilon))
		fv.Values[FeatPricePerDayZScore] = math.Abs((ppd - ds.PricePerDayMean) / (ds.PricePerDayStd + stdEpsilon))
		fv.Values[FeatDeptTenderCount] = float64(ds.Count)
		fv.Values[FeatDeptSingleBidderRate] = ds.SingleBidderRate
	}

	fv.Values[FeatShortDuration] = boolFeat(duration < shortDurationDays)

	if t.PublishDate.IsZero() {
		fv.Quality = append(fv.Quality, domain.QualityNote{
			Kind:   domain.KindDataQuality,
			Field:  "date",
			Issue:  "missing or unparseable",
			Action: "timing features zeroed",
		})
	} else {
		wd := t.PublishDate.Weekday()
		month := t.PublishDate.Month()
		fv.Values[FeatWeekendPublish] = boolFeat(wd == time.Saturday || wd == time.Sunday)
		fv.Values[FeatQuarterEnd] = boolFeat(month == time.March || month == time.June || month == time.September || month == time.December)
		// Fiscal-year spending rushes: December and the March year-end.
		fv.Values[FeatYearEndRush] = boolFeat(month == time.December || month == time.March)
	}

	method := strings.ToLower(t.ProcurementMethod)
	fv.Values[FeatLimitedTender] = boolFeat(strings.Contains(method, "limited"))
	fv.Values[FeatDirectAward] = boolFeat(strings.Contains(method, "direct") ||
		strings.Contains(method, "single source") ||
		strings.Contains(method, "nomination"))
	fv.Values[FeatUnknownMethod] = boolFeat(method == "" ||
		strings.Contains(method, "unknown") ||
		strings.Contains(method, "other"))

	fv.Values[FeatRoundAmount] = boolFeat(amount > 0 && math.Mod(amount, roundAmountUnit) == 0)
	fv.Values[FeatNearThreshold] = boolFeat(nearThreshold(amount))

	wins := stats.VendorWins(t.Vendor)
	fv.Values[FeatVendorWinCount] = float64(wins)
	if stats.Size() > 0 {
		fv.Values[FeatVendorWinShare] = float64(wins) / float64(stats.Size())
	}
	fv.Values[FeatFirstTimeVendor] = boolFeat(t.Vendor != "" && wins <= 1)

	return fv, nil
}

func nearThreshold(amount float64) bool {
	for _, band := range thresholdBands {
		if amount >= band[0] && amount < band[1] {
			return true
		}
	}
	return false
}

func boolFeat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
