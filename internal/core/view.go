package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"oqt_service/internal/domain/model"
)

// IndicatorView is the caller facing and stored form of an indicator run.
type IndicatorView struct {
	Metadata    model.Metadata    `json:"metadata"`
	Layer       model.Layer       `json:"layer"`
	Result      *model.Result     `json:"result"`
	Attribution model.Attribution `json:"attribution"`
	Data        map[string]string `json:"data,omitempty"`

	aoi *model.AOI
}

// FeatureOptions select optional parts of the GeoJSON form.
type FeatureOptions struct {
	// IncludeData adds the intermediate values of every indicator.
	IncludeData bool
	// Flatten joins nested property keys with "." and list indices, e.g.
	// "result.label" or "indicators.0.result.value".
	Flatten bool
}

func newIndicatorView(ind Indicator) *IndicatorView {
	md := ind.Metadata()
	return &IndicatorView{
		Metadata:    md,
		Layer:       ind.Layer(),
		Result:      ind.Result(),
		Attribution: md.Attribution,
		Data:        ind.Data(),
		aoi:         ind.AOI(),
	}
}

func (v *IndicatorView) properties(includeData bool) map[string]any {
	props := map[string]any{
		"metadata":    v.Metadata,
		"layer":       v.Layer,
		"result":      v.Result,
		"attribution": v.Attribution,
	}
	if includeData && len(v.Data) > 0 {
		props["data"] = v.Data
	}
	return props
}

// Feature returns the AOI as a GeoJSON FeatureCollection with the view in
// the properties of every feature.
func (v *IndicatorView) Feature(opts FeatureOptions) (json.RawMessage, error) {
	return featureCollection(v.aoi, v.properties(opts.IncludeData), opts.Flatten)
}

// ReportView is the caller facing and stored form of a report run.
type ReportView struct {
	Metadata          model.Metadata    `json:"metadata"`
	Result            *model.Result     `json:"result"`
	Attribution       model.Attribution `json:"attribution"`
	BlockingRed       bool              `json:"blocking_red"`
	BlockingUndefined bool              `json:"blocking_undefined"`
	Indicators        []*IndicatorView  `json:"indicators"`

	aoi *model.AOI
}

func newReportView(r *Report) *ReportView {
	md := r.Metadata()
	view := &ReportView{
		Metadata:          md,
		Result:            r.Result(),
		Attribution:       md.Attribution,
		BlockingRed:       r.BlockingRed(),
		BlockingUndefined: r.BlockingUndefined(),
		aoi:               r.AOI(),
	}
	for _, ind := range r.Indicators() {
		view.Indicators = append(view.Indicators, newIndicatorView(ind))
	}
	return view
}

// Feature returns the AOI as a GeoJSON FeatureCollection with the report in
// the properties of every feature.
func (v *ReportView) Feature(opts FeatureOptions) (json.RawMessage, error) {
	indicators := make([]map[string]any, len(v.Indicators))
	for i, ind := range v.Indicators {
		indicators[i] = ind.properties(opts.IncludeData)
	}
	return featureCollection(v.aoi, map[string]any{
		"metadata":           v.Metadata,
		"result":             v.Result,
		"attribution":        v.Attribution,
		"blocking_red":       v.BlockingRed,
		"blocking_undefined": v.BlockingUndefined,
		"indicators":         indicators,
	}, opts.Flatten)
}

func featureCollection(aoi *model.AOI, extra map[string]any, flat bool) (json.RawMessage, error) {
	if aoi == nil {
		return nil, fmt.Errorf("%w: view has no AOI", model.ErrInvalidAOI)
	}
	if flat {
		var err error
		if extra, err = flatten(extra); err != nil {
			return nil, err
		}
	}
	features := make([]json.RawMessage, 0, aoi.Len())
	for i, f := range aoi.Features {
		props := maps.Clone(f.Properties)
		if props == nil {
			props = map[string]any{}
		}
		maps.Copy(props, extra)
		raw, err := aoi.GeoJSONFeature(i, props)
		if err != nil {
			return nil, err
		}
		features = append(features, raw)
	}
	return json.Marshal(struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}{Type: "FeatureCollection", Features: features})
}

// flatten turns the JSON form of props into a single level map.
func flatten(props map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	var nested any
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	flat := make(map[string]any)
	flattenInto(flat, "", nested)
	return flat, nil
}

func flattenInto(dst map[string]any, prefix string, v any) {
	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}
	switch v := v.(type) {
	case map[string]any:
		if len(v) == 0 && prefix != "" {
			dst[prefix] = v
		}
		for k, item := range v {
			flattenInto(dst, join(k), item)
		}
	case []any:
		if len(v) == 0 {
			dst[prefix] = v
		}
		for i, item := range v {
			flattenInto(dst, join(strconv.Itoa(i)), item)
		}
	default:
		dst[prefix] = v
	}
}
