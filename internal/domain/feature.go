package domain

// FeatureVector is the fixed-order numeric representation of one tender,
// derived against its batch's statistics. The ordering and encoding are a
// frozen contract shared with the anomaly model artifact; SchemaVersion
// identifies which contract the vector was produced under.
type FeatureVector struct {
	TenderID      string    `json:"tenderId"`
	SchemaVersion string    `json:"schemaVersion"`
	Values        []float64 `json:"values"`

	// Quality carries forward imputation notes from normalization so
	// downstream reporting can surface degraded records.
	Quality []QualityNote `json:"quality,omitempty"`
}

// Clone returns an independent copy. Vectors are copy-on-produce; nothing in
// the pipeline shares a Values slice in place.
func (f *FeatureVector) Clone() *FeatureVector {
	cp := *f
	cp.Values = make([]float64, len(f.Values))
	copy(cp.Values, f.Values)
	if len(f.Quality) > 0 {
		cp.Quality = make([]QualityNote, len(f.Quality))
		copy(cp.Quality, f.Quality)
	}
	return &cp
}

// Degraded reports whether any feature value was imputed or clamped.
func (f *FeatureVector) Degraded() bool {
	return len(f.Quality) > 0
}

// DeptStats holds per-department aggregates used for batch-relative features.
type DeptStats struct {
	Count            int     `json:"count"`
	AmountMean       float64 `json:"amountMean"`
	AmountStdDev     float64 `json:"amountStdDev"`
	PricePerDayMean  float64 `json:"pricePerDayMean"`
	PricePerDayStd   float64 `json:"pricePerDayStd"`
	SingleBidderRate float64 `json:"singleBidderRate"`
}

// BatchStats is the immutable aggregate state of one ingested batch. It is
// produced exclusively by the features package's builder, which only hands
// out a *BatchStats once every record has been folded in; per-record scoring
// can therefore never observe a partially-built value. All accessors are
// read-only.
type BatchStats struct {
	size         int
	amountMedian float64
	depts        map[string]DeptStats
	vendorWins   map[string]int
}

// NewBatchStats assembles a frozen BatchStats value. It is exported for the
// features builder and for tests; callers must not retain the maps.
func NewBatchStats(size int, amountMedian float64, depts map[string]DeptStats, vendorWins map[string]int) *BatchStats {
	d := make(map[string]DeptStats, len(depts))
	for k, v := range depts {
		d[k] = v
	}
	w := make(map[string]int, len(vendorWins))
	for k, v := range vendorWins {
		w[k] = v
	}
	return &BatchStats{size: size, amountMedian: amountMedian, depts: d, vendorWins: w}
}

// Size returns the number of records in the batch.
func (s *BatchStats) Size() int { return s.size }

// AmountMedian returns the batch-wide median contract amount, used as the
// imputation default for missing amounts.
func (s *BatchStats) AmountMedian() float64 { return s.amountMedian }

// Dept returns the aggregates for a department. The boolean is false when the
// department did not occur in the batch.
func (s *BatchStats) Dept(name string) (DeptStats, bool) {
	d, ok := s.depts[name]
	return d, ok
}

// VendorWins returns how many tenders in the batch the vendor won.
func (s *BatchStats) VendorWins(vendor string) int {
	return s.vendorWins[vendor]
}

// Departments returns the number of distinct departments in the batch.
func (s *BatchStats) Departments() int { return len(s.depts) }
