package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Artifact is the on-disk representation of a trained anomaly model: the
// frozen feature schema, the scoring parameters and the calibration
// reference distribution. The parameter block is opaque to the rest of the
// engine.
type Artifact struct {
	Version       string      `json:"version"`
	SchemaVersion string      `json:"schemaVersion"`
	Features      []string    `json:"features"`
	Orientation   Orientation `json:"orientation"`

	// Linear scoring parameters over standardized features. Raw statistic:
	// bias + sum(weights[i] * (x[i]-means[i])/scales[i]).
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`

	// ReferenceRaw holds raw statistics from the calibration run, used as
	// the fallback distribution for single-record scoring.
	ReferenceRaw []float64 `json:"referenceRaw,omitempty"`
}

// localModel implements Model from a loaded artifact.
type localModel struct {
	art       Artifact
	reference []float64
}

// LoadArtifact reads and validates a model artifact file. Load failures are
// ModelUnavailableError; structural problems in the artifact itself are
// SchemaError.
func LoadArtifact(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			fmt.Sprintf("failed to read model artifact %s", path), err)
	}
	return ParseArtifact(data)
}

// ParseArtifact builds a model from raw artifact JSON.
func ParseArtifact(data []byte) (Model, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			"failed to parse model artifact", err)
	}

	if art.Version == "" || art.SchemaVersion == "" {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			"model artifact missing version or schema version")
	}
	if len(art.Features) == 0 {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			"model artifact declares no features")
	}
	n := len(art.Features)
	if len(art.Means) != n || len(art.Scales) != n || len(art.Weights) != n {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			"model artifact parameter lengths do not match its feature list")
	}
	switch art.Orientation {
	case OrientLower, OrientHigher:
	default:
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			fmt.Sprintf("model artifact has unknown orientation %q", art.Orientation))
	}

	ref := make([]float64, len(art.ReferenceRaw))
	copy(ref, art.ReferenceRaw)
	sort.Float64s(ref)

	return &localModel{art: art, reference: ref}, nil
}

func (m *localModel) Version() string       { return m.art.Version }
func (m *localModel) SchemaVersion() string { return m.art.SchemaVersion }

func (m *localModel) FeatureNames() []string {
	names := make([]string, len(m.art.Features))
	copy(names, m.art.Features)
	return names
}

func (m *localModel) Orientation() Orientation { return m.art.Orientation }

func (m *localModel) Raw(_ context.Context, values []float64) (float64, error) {
	if len(values) != len(m.art.Features) {
		return 0, domain.NewError(domain.KindSchema, domain.BatchScope,
			fmt.Sprintf("feature vector has %d values, model expects %d", len(values), len(m.art.Features)))
	}

	raw := m.art.Bias
	for i, v := range values {
		scale := m.art.Scales[i]
		if scale == 0 {
			scale = 1
		}
		raw += m.art.Weights[i] * ((v - m.art.Means[i]) / scale)
	}
	return raw, nil
}

func (m *localModel) Reference() []float64 {
	out := make([]float64, len(m.reference))
	copy(out, m.reference)
	return out
}
