// Package ohsome queries OSM aggregations from the ohsome API.
package ohsome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oqt_service/internal/domain/model"
)

// Client is a StatisticsClient backed by the ohsome REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type entry struct {
	Timestamp string `json:"timestamp"`
	// contribution endpoints answer intervals instead of timestamps
	FromTimestamp string  `json:"fromTimestamp"`
	ToTimestamp   string  `json:"toTimestamp"`
	Value         float64 `json:"value"`
	Value2        float64 `json:"value2"`
	Ratio         float64 `json:"ratio"`
}

type groupEntry struct {
	GroupByObject json.RawMessage `json:"groupByObject"`
	Result        []entry         `json:"result"`
}

type response struct {
	Result        []entry      `json:"result"`
	RatioResult   []entry      `json:"ratioResult"`
	GroupByResult []groupEntry `json:"groupByResult"`
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Query posts the layer filter with the AOI as bpolys. A time interval yields
// a series whose last entry is also the value.
func (c *Client) Query(ctx context.Context, layer *model.Layer, aoi *model.AOI, opts model.QueryOptions) (*model.Statistics, error) {
	if opts.Ratio && layer.RatioFilter == "" {
		return nil, fmt.Errorf("%w: layer %s has no ratio filter", model.ErrUnsupported, layer.Name)
	}
	if opts.LatestContributions && (opts.Ratio || opts.Time == "") {
		return nil, fmt.Errorf("%w: latest contributions need a time interval and no ratio", model.ErrUnsupported)
	}
	bpolys, err := json.Marshal(aoi)
	if err != nil {
		return nil, fmt.Errorf("failed to encode AOI: %w", err)
	}

	form := url.Values{}
	form.Set("bpolys", string(bpolys))
	form.Set("filter", layer.Filter)
	if opts.Ratio {
		form.Set("filter2", layer.RatioFilter)
	}
	if opts.Time != "" {
		form.Set("time", opts.Time)
	}

	var resp response
	if err := c.post(ctx, c.endpointURL(layer.Endpoint, opts), form, &resp); err != nil {
		return nil, err
	}
	return toStatistics(resp, opts)
}

func (c *Client) endpointURL(endpoint string, opts model.QueryOptions) string {
	if opts.LatestContributions {
		endpoint = "contributions/latest/count"
	}
	u := c.baseURL + "/" + strings.Trim(endpoint, "/")
	if opts.Ratio {
		u += "/ratio"
	}
	if opts.GroupByBoundary {
		u += "/groupBy/boundary"
	}
	return u
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create ohsome request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ohsome request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("ohsome returned status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("ohsome returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ohsome response: %w", err)
	}
	return nil
}

func toStatistics(resp response, opts model.QueryOptions) (*model.Statistics, error) {
	if opts.GroupByBoundary {
		if len(resp.GroupByResult) == 0 {
			return nil, model.ErrNoData
		}
		stats := &model.Statistics{}
		for _, g := range resp.GroupByResult {
			if len(g.Result) == 0 {
				continue
			}
			last := g.Result[len(g.Result)-1]
			ts, err := parseTimestamp(last.stamp())
			if err != nil {
				return nil, err
			}
			stats.Groups = append(stats.Groups, model.GroupStatistics{
				ID:        groupID(g.GroupByObject),
				Value:     last.Value,
				Timestamp: ts,
			})
			stats.Value += last.Value
			stats.Timestamp = ts
		}
		return stats, nil
	}

	entries := resp.Result
	if opts.Ratio {
		entries = resp.RatioResult
	}
	if len(entries) == 0 {
		return nil, model.ErrNoData
	}
	stats := &model.Statistics{}
	for _, e := range entries {
		ts, err := parseTimestamp(e.stamp())
		if err != nil {
			return nil, err
		}
		if opts.Time != "" && ts != nil {
			// interval entries are placed at their start
			at := ts
			if e.FromTimestamp != "" {
				if at, err = parseTimestamp(e.FromTimestamp); err != nil {
					return nil, err
				}
			}
			stats.Series = append(stats.Series, model.SeriesPoint{Timestamp: *at, Value: e.Value})
		}
		stats.Timestamp = ts
		stats.Value, stats.Value2, stats.Ratio = e.Value, e.Value2, e.Ratio
	}
	return stats, nil
}

// stamp is the snapshot timestamp, or the interval end for contributions.
func (e entry) stamp() string {
	if e.Timestamp != "" {
		return e.Timestamp
	}
	return e.ToTimestamp
}

// groupID accepts string and numeric group objects.
func groupID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func parseTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ohsome timestamp %q: %w", s, err)
	}
	ts = ts.UTC()
	return &ts, nil
}
