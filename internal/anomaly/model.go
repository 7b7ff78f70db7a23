// Package anomaly wraps the pre-trained anomaly model behind an adapter that
// maps its raw statistic to a bounded, batch-relative percentile score.
package anomaly

import (
	"context"
)

// Orientation declares which direction of the model's raw statistic means
// "more anomalous". The adapter normalizes sign explicitly instead of
// assuming a convention.
type Orientation string

const (
	// OrientLower - lower (more negative) raw values are more anomalous,
	// the isolation-forest decision function convention.
	OrientLower Orientation = "lower"

	// OrientHigher - higher raw values are more anomalous.
	OrientHigher Orientation = "higher"
)

// Model is the opaque pre-trained anomaly scorer. The engine treats it
// purely as a versioned function from the frozen feature schema to a raw
// unbounded statistic; training and persistence are out of scope.
type Model interface {
	// Version identifies the trained artifact.
	Version() string

	// SchemaVersion is the feature schema the model was fit against.
	SchemaVersion() string

	// FeatureNames is the frozen, ordered feature-name list declared at
	// fit time.
	FeatureNames() []string

	// Orientation declares the raw statistic's anomaly direction.
	Orientation() Orientation

	// Raw scores one feature vector. Calls are stateless, retryable and
	// order-independent across records.
	Raw(ctx context.Context, values []float64) (float64, error)

	// Reference returns the sorted raw statistics captured at the most
	// recent calibration run, used when scoring a single record outside a
	// batch context. May be empty if the artifact carries none.
	Reference() []float64
}
