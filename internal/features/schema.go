// Package features converts tender records into the fixed-order feature
// representation shared with the anomaly model, and builds the per-batch
// statistics that batch-relative features require.
package features

// SchemaVersionV1 identifies the frozen v1 feature schema. The ordering and
// encoding below are a contract with the anomaly model artifact: any change
// requires a new version, and a mismatch at model load time is a fatal
// configuration error, never a silently-wrong prediction.
const SchemaVersionV1 = "v1"

// Feature indices into FeatureVector.Values for schema v1.
const (
	FeatAmount = iota
	FeatBidderCount
	FeatDurationDays
	FeatSingleBidder
	FeatLowCompetition
	FeatZeroBidders
	FeatPricePerDay
	FeatAmountZScore
	FeatPricePerDayZScore
	FeatShortDuration
	FeatWeekendPublish
	FeatQuarterEnd
	FeatYearEndRush
	FeatLimitedTender
	FeatDirectAward
	FeatUnknownMethod
	FeatRoundAmount
	FeatNearThreshold
	FeatVendorWinCount
	FeatVendorWinShare
	FeatFirstTimeVendor
	FeatDeptTenderCount
	FeatDeptSingleBidderRate

	featureCount
)

var featureNamesV1 = [featureCount]string{
	FeatAmount:               "amount",
	FeatBidderCount:          "bidder_count",
	FeatDurationDays:         "duration_days",
	FeatSingleBidder:         "single_bidder_flag",
	FeatLowCompetition:       "low_competition_flag",
	FeatZeroBidders:          "zero_bidders_flag",
	FeatPricePerDay:          "price_per_day",
	FeatAmountZScore:         "amount_zscore",
	FeatPricePerDayZScore:    "price_per_day_zscore",
	FeatShortDuration:        "short_duration_flag",
	FeatWeekendPublish:       "weekend_publication_flag",
	FeatQuarterEnd:           "quarter_end_flag",
	FeatYearEndRush:          "year_end_rush_flag",
	FeatLimitedTender:        "limited_tender_flag",
	FeatDirectAward:          "direct_award_flag",
	FeatUnknownMethod:        "unknown_method_flag",
	FeatRoundAmount:          "round_amount_flag",
	FeatNearThreshold:        "near_threshold_flag",
	FeatVendorWinCount:       "vendor_win_count",
	FeatVendorWinShare:       "vendor_win_share",
	FeatFirstTimeVendor:      "first_time_vendor_flag",
	FeatDeptTenderCount:      "dept_tender_count",
	FeatDeptSingleBidderRate: "dept_single_bidder_rate",
}

// SchemaV1 returns the ordered feature names of the frozen v1 schema.
func SchemaV1() []string {
	names := make([]string, featureCount)
	copy(names, featureNamesV1[:])
	return names
}

// FeatureCount returns the number of features in schema v1.
func FeatureCount() int { return featureCount }

// FeatureIndex returns the position of a feature name within schema v1.
// The boolean is false for names outside the schema.
func FeatureIndex(name string) (int, bool) {
	for i, n := range featureNamesV1 {
		if n == name {
			return i, true
		}
	}
	return 0, false
}
