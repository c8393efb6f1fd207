// Package location defines the location provider boundary used by the
// escalation workflow. Capture is bounded and best-effort: a timeout or
// refusal yields ErrLocationUnavailable and escalation proceeds without
// a fix.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// Provider captures the subject's current location
type Provider interface {
	GetCurrentLocation(ctx context.Context, subjectID string) (*models.Location, error)
}

// HTTPProvider queries a location endpoint (typically the subject's
// paired device gateway) for the most recent fix.
type HTTPProvider struct {
	endpoint string
	timeout  time.Duration
	maxAge   time.Duration
	client   *http.Client
}

// NewHTTPProvider constructs a provider with bounded capture time.
// A cached fix older than maxAge counts as unavailable.
func NewHTTPProvider(endpoint string, timeout, maxAge time.Duration) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		timeout:  timeout,
		maxAge:   maxAge,
		client:   &http.Client{Timeout: timeout},
	}
}

type locationResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
}

// GetCurrentLocation fetches the subject's latest fix within the
// configured timeout. Every failure mode maps to ErrLocationUnavailable
// so callers have a single degraded path.
func (p *HTTPProvider) GetCurrentLocation(ctx context.Context, subjectID string) (*models.Location, error) {
	if p.endpoint == "" {
		return nil, models.ErrLocationUnavailable
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("%s?subject_id=%s&max_age=%d", p.endpoint, subjectID, int(p.maxAge.Seconds()))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Join(models.ErrLocationUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Join(models.ErrLocationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(models.ErrLocationUnavailable,
			fmt.Errorf("location endpoint returned status %d", resp.StatusCode))
	}

	var fix locationResponse
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return nil, errors.Join(models.ErrLocationUnavailable, err)
	}

	if !fix.CapturedAt.IsZero() && time.Since(fix.CapturedAt) > p.maxAge {
		return nil, errors.Join(models.ErrLocationUnavailable,
			fmt.Errorf("cached fix older than %s", p.maxAge))
	}

	capturedAt := fix.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	return &models.Location{
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		CapturedAt: capturedAt,
	}, nil
}
