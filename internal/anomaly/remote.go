package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// RemoteModel scores feature vectors against a remote model service. Scoring
// calls are stateless and order-independent, so failed calls are retried
// with backoff; no session state is carried between calls.
type RemoteModel struct {
	baseURL    string
	client     *http.Client
	maxRetries int

	// Artifact metadata fetched once at startup.
	version       string
	schemaVersion string
	features      []string
	orientation   Orientation
	reference     []float64
}

// remoteArtifactInfo is the metadata document served at GET {base}/artifact.
type remoteArtifactInfo struct {
	Version       string      `json:"version"`
	SchemaVersion string      `json:"schemaVersion"`
	Features      []string    `json:"features"`
	Orientation   Orientation `json:"orientation"`
	ReferenceRaw  []float64   `json:"referenceRaw,omitempty"`
}

type scoreRequest struct {
	Values []float64 `json:"values"`
}

type scoreResponse struct {
	Raw float64 `json:"raw"`
}

// NewRemoteModel connects to a remote scoring service and fetches its
// artifact metadata. Connection or metadata failures are
// ModelUnavailableError so callers never score without the anomaly signal.
func NewRemoteModel(ctx context.Context, baseURL string, maxRetries int) (*RemoteModel, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	m := &RemoteModel{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: maxRetries,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/artifact", nil)
	if err != nil {
		return nil, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			"failed to build artifact request", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			"failed to fetch remote model artifact", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.KindModelUnavailable, domain.BatchScope,
			fmt.Sprintf("remote model artifact fetch returned %d", resp.StatusCode))
	}

	var info remoteArtifactInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			"failed to decode remote model artifact", err)
	}

	if info.Version == "" || info.SchemaVersion == "" || len(info.Features) == 0 {
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			"remote model artifact is missing version or feature schema")
	}
	switch info.Orientation {
	case OrientLower, OrientHigher:
	default:
		return nil, domain.NewError(domain.KindSchema, domain.BatchScope,
			fmt.Sprintf("remote model artifact has unknown orientation %q", info.Orientation))
	}

	m.version = info.Version
	m.schemaVersion = info.SchemaVersion
	m.features = info.Features
	m.orientation = info.Orientation
	m.reference = append([]float64(nil), info.ReferenceRaw...)
	sort.Float64s(m.reference)

	return m, nil
}

func (m *RemoteModel) Version() string       { return m.version }
func (m *RemoteModel) SchemaVersion() string { return m.schemaVersion }

func (m *RemoteModel) FeatureNames() []string {
	names := make([]string, len(m.features))
	copy(names, m.features)
	return names
}

func (m *RemoteModel) Orientation() Orientation { return m.orientation }

// Raw scores one vector via POST {base}/score, retrying transient failures.
func (m *RemoteModel) Raw(ctx context.Context, values []float64) (float64, error) {
	body, err := json.Marshal(scoreRequest{Values: values})
	if err != nil {
		return 0, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
			"failed to encode score request", err)
	}

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
					"score request cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		raw, err := m.scoreOnce(ctx, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}

	return 0, domain.WrapError(domain.KindModelUnavailable, domain.BatchScope,
		fmt.Sprintf("remote score failed after %d attempts", m.maxRetries), lastErr)
}

func (m *RemoteModel) scoreOnce(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("remote score returned %d", resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, err
	}
	return sr.Raw, nil
}

func (m *RemoteModel) Reference() []float64 {
	out := make([]float64, len(m.reference))
	copy(out, m.reference)
	return out
}
