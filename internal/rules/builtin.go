package rules

import (
	"fmt"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/features"
)

// Severity weights for the built-in indicators. Multiple triggered
// indicators compound; the scorer clamps the sum at 100.
const (
	weightSingleBidder       = 30
	weightLowCompetition     = 15
	weightZeroBidders        = 10
	weightPricingOutlier     = 25
	weightPricePerDayOutlier = 15
	weightRoundAmount        = 15
	weightNearThreshold      = 10
	weightWeekendPublish     = 15
	weightYearEndRush        = 20
	weightQuarterEnd         = 10
	weightShortDuration      = 10
	weightLimitedTender      = 15
	weightDirectAward        = 20
	weightUnknownMethod      = 10
	weightRepeatWinner       = 20
	weightNewVendorLarge     = 20
	weightDeptConcentration  = 15
)

// Z-score cutoffs for pricing indicators.
const (
	extremePriceZ     = 2.5
	largeContractZ    = 2.0
	repeatWinnerShare = 0.30
	repeatWinnerMin   = 3
	deptSingleBidRate = 0.5
	deptMinSample     = 5
)

func flagSet(fv *domain.FeatureVector, idx int) bool {
	return fv.Values[idx] == 1
}

// BuiltinIndicators returns the ordered built-in rule set: 17 independent
// predicates across the competition, pricing, timing, process and vendor
// groups.
func BuiltinIndicators() []Indicator {
	return []Indicator{
		// Competition
		&predicate{
			id: "single-bidder", label: "Single bidder", group: domain.GroupCompetition,
			weight: weightSingleBidder,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatSingleBidder), "only one bidder participated"
			},
		},
		&predicate{
			id: "low-bidder-count", label: "Low bidder count", group: domain.GroupCompetition,
			weight: weightLowCompetition,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				triggered := flagSet(fv, features.FeatLowCompetition) && !flagSet(fv, features.FeatSingleBidder)
				return triggered, fmt.Sprintf("%d bidders, below the competitive minimum of 3", int(fv.Values[features.FeatBidderCount]))
			},
		},
		&predicate{
			id: "zero-bidders", label: "No bidders recorded", group: domain.GroupCompetition,
			weight: weightZeroBidders,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatZeroBidders), "bidder count missing or zero"
			},
		},
		&predicate{
			id: "dept-single-bidder-concentration", label: "Department single-bidder concentration", group: domain.GroupCompetition,
			weight: weightDeptConcentration,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				rate := fv.Values[features.FeatDeptSingleBidderRate]
				count := fv.Values[features.FeatDeptTenderCount]
				triggered := rate > deptSingleBidRate && count >= deptMinSample
				return triggered, fmt.Sprintf("%.0f%% of the department's tenders attracted a single bidder", rate*100)
			},
		},

		// Pricing
		&predicate{
			id: "pricing-outlier", label: "Amount far above department norm", group: domain.GroupPricing,
			weight: weightPricingOutlier,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				z := fv.Values[features.FeatAmountZScore]
				return z > extremePriceZ, fmt.Sprintf("amount z-score %.1f within department", z)
			},
		},
		&predicate{
			id: "price-per-day-outlier", label: "Price per day far above department norm", group: domain.GroupPricing,
			weight: weightPricePerDayOutlier,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				z := fv.Values[features.FeatPricePerDayZScore]
				return z > extremePriceZ, fmt.Sprintf("price-per-day z-score %.1f within department", z)
			},
		},
		&predicate{
			id: "round-amount", label: "Suspiciously round amount", group: domain.GroupPricing,
			weight: weightRoundAmount,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatRoundAmount), "amount is an exact multiple of 100,000"
			},
		},
		&predicate{
			id: "near-threshold", label: "Amount parked under approval threshold", group: domain.GroupPricing,
			weight: weightNearThreshold,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatNearThreshold), "amount sits just below a sanctioning limit"
			},
		},

		// Timing
		&predicate{
			id: "weekend-publication", label: "Published on a weekend", group: domain.GroupTiming,
			weight: weightWeekendPublish,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatWeekendPublish), "published on a Saturday or Sunday"
			},
		},
		&predicate{
			id: "year-end-rush", label: "Fiscal year-end rush", group: domain.GroupTiming,
			weight: weightYearEndRush,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatYearEndRush), "published in a year-end spending rush month"
			},
		},
		&predicate{
			id: "quarter-end-clustering", label: "Quarter-end clustering", group: domain.GroupTiming,
			weight: weightQuarterEnd,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatQuarterEnd), "published in a quarter-end month"
			},
		},
		&predicate{
			id: "short-duration", label: "Unusually short contract duration", group: domain.GroupTiming,
			weight: weightShortDuration,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatShortDuration), fmt.Sprintf("duration of %d days", int(fv.Values[features.FeatDurationDays]))
			},
		},

		// Process
		&predicate{
			id: "limited-tender", label: "Limited tender procedure", group: domain.GroupProcess,
			weight: weightLimitedTender,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatLimitedTender), "limited tender restricts competition"
			},
		},
		&predicate{
			id: "direct-award", label: "Direct award", group: domain.GroupProcess,
			weight: weightDirectAward,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatDirectAward), "awarded without open competition"
			},
		},
		&predicate{
			id: "unknown-method", label: "Unknown procurement method", group: domain.GroupProcess,
			weight: weightUnknownMethod,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				return flagSet(fv, features.FeatUnknownMethod), "procurement method missing or unclassified"
			},
		},

		// Vendor
		&predicate{
			id: "repeat-winner", label: "Repeat winner concentration", group: domain.GroupVendor,
			weight: weightRepeatWinner,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				wins := fv.Values[features.FeatVendorWinCount]
				share := fv.Values[features.FeatVendorWinShare]
				triggered := wins >= repeatWinnerMin && share > repeatWinnerShare
				return triggered, fmt.Sprintf("vendor won %d of the batch's tenders (%.0f%%)", int(wins), share*100)
			},
		},
		&predicate{
			id: "new-vendor-large-contract", label: "First-time vendor on large contract", group: domain.GroupVendor,
			weight: weightNewVendorLarge,
			eval: func(fv *domain.FeatureVector, _ *domain.BatchStats) (bool, string) {
				triggered := flagSet(fv, features.FeatFirstTimeVendor) &&
					fv.Values[features.FeatAmountZScore] > largeContractZ
				return triggered, "vendor's only appearance is a contract far above department norm"
			},
		},
	}
}
