package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"

	"oqt_service/internal/domain/model"
)

// OverpassRepository answers statistics queries from the Overpass API. Each
// AOI feature is queried by its bounding box, so values cover the box rather
// than the exact polygon.
type OverpassRepository struct {
	client  *overpass.Client
	timeout time.Duration
}

func NewOverpassRepository(endpoint string, timeout time.Duration) *OverpassRepository {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRepository{
		client:  &client,
		timeout: timeout,
	}
}

// Query aggregates the layer per AOI feature. Time series and ratio queries
// are not available from Overpass.
func (r *OverpassRepository) Query(ctx context.Context, layer *model.Layer, aoi *model.AOI, opts model.QueryOptions) (*model.Statistics, error) {
	if opts.Time != "" || opts.Ratio || opts.LatestContributions {
		return nil, fmt.Errorf("%w: overpass backend has no time series or ratio queries", model.ErrUnsupported)
	}
	if layer.Overpass == "" {
		return nil, fmt.Errorf("%w: layer %s has no overpass selector", model.ErrUnsupported, layer.Name)
	}

	stats := &model.Statistics{}
	for i, f := range aoi.Features {
		result, err := r.executeQuery(ctx, buildQuery(layer.Overpass, aoi.FeatureAOI(i).Bounds(), r.timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to query layer %s: %w", layer.Name, err)
		}
		value, err := aggregate(layer.Endpoint, convertToOSMElements(result))
		if err != nil {
			return nil, err
		}
		var ts *time.Time
		if !result.Timestamp.IsZero() {
			t := result.Timestamp.UTC()
			ts = &t
			stats.Timestamp = ts
		}
		stats.Value += value
		if opts.GroupByBoundary {
			stats.Groups = append(stats.Groups, model.GroupStatistics{ID: f.ID, Value: value, Timestamp: ts})
		}
	}
	return stats, nil
}

// buildQuery selects the layer's elements in the bounding box together with
// the nodes of every way.
func buildQuery(selector string, b *geom.Bounds, timeout time.Duration) string {
	bbox := fmt.Sprintf("(%f,%f,%f,%f)", b.Min(1), b.Min(0), b.Max(1), b.Max(0))
	var parts []string
	for _, s := range strings.Split(selector, ";") {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s+bbox+";")
		}
	}
	return fmt.Sprintf(`[out:json][timeout:%d];
		(
			%s
		);
		out body;
		>;
		out skel qt;`, int(timeout.Seconds()), strings.Join(parts, "\n\t\t\t"))
}

// aggregate reduces elements according to the layer endpoint.
func aggregate(endpoint string, elements []model.OSMElement) (float64, error) {
	var value float64
	for _, e := range elements {
		switch endpoint {
		case "elements/count":
			value++
		case "elements/length":
			value += e.LengthMeters()
		case "elements/area":
			value += e.AreaSquareMeters()
		default:
			return 0, fmt.Errorf("%w: endpoint %s", model.ErrUnsupported, endpoint)
		}
	}
	return value, nil
}

// executeQuery runs the blocking client call so that ctx can abandon it.
func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type answer struct {
		result overpass.Result
		err    error
	}
	done := make(chan answer, 1)
	go func() {
		result, err := r.client.Query(query)
		done <- answer{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query aborted: %w", ctx.Err())
	case a := <-done:
		if a.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", a.err)
		}
		return &a.result, nil
	}
}

// convertToOSMElements keeps tagged elements only. Untagged nodes and ways
// are geometry fetched by the recursion. Relations count as one element and
// carry no geometry of their own.
func convertToOSMElements(result *overpass.Result) []model.OSMElement {
	var elements []model.OSMElement

	for _, node := range result.Nodes {
		if len(node.Tags) == 0 {
			continue
		}
		elements = append(elements, model.OSMElement{
			ID:     node.ID,
			Type:   string(overpass.ElementTypeNode),
			Tags:   node.Tags,
			Coords: []geom.Coord{{node.Lon, node.Lat}},
		})
	}

	for _, way := range result.Ways {
		if len(way.Tags) == 0 {
			continue
		}
		coords := make([]geom.Coord, 0, len(way.Nodes))
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			coords = append(coords, geom.Coord{node.Lon, node.Lat})
		}
		elements = append(elements, model.OSMElement{
			ID:     way.ID,
			Type:   string(overpass.ElementTypeWay),
			Tags:   way.Tags,
			Coords: coords,
		})
	}

	for _, rel := range result.Relations {
		if len(rel.Tags) == 0 {
			continue
		}
		elements = append(elements, model.OSMElement{
			ID:   rel.ID,
			Type: string(overpass.ElementTypeRelation),
			Tags: rel.Tags,
		})
	}
	return elements
}
