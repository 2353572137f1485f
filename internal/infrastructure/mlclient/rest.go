package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPMLClient calls the building area model served over HTTP.
type HTTPMLClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPMLClient(endpoint string, timeout time.Duration) *HTTPMLClient {
	return &HTTPMLClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type MLRequest struct {
	Covariates [][]float64 `json:"covariates"`
}

type MLResponse struct {
	Predictions []float64 `json:"predictions"`
}

// Predict returns one predicted building area in square kilometres per
// covariate row.
func (c *HTTPMLClient) Predict(ctx context.Context, covariates [][]float64) ([]float64, error) {
	body, err := json.Marshal(MLRequest{Covariates: covariates})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ML request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ML request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ML service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ML service returned status: %d", resp.StatusCode)
	}

	var mlResp MLResponse
	if err := json.NewDecoder(resp.Body).Decode(&mlResp); err != nil {
		return nil, fmt.Errorf("failed to decode ML response: %w", err)
	}
	if len(mlResp.Predictions) != len(covariates) {
		return nil, fmt.Errorf("ML service returned %d predictions for %d rows", len(mlResp.Predictions), len(covariates))
	}
	return mlResp.Predictions, nil
}
