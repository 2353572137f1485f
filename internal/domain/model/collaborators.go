package model

import "context"

// StatisticsClient aggregates OSM data of a layer over an AOI.
// An empty answer is reported as ErrNoData.
type StatisticsClient interface {
	Query(ctx context.Context, layer *Layer, aoi *AOI, opts QueryOptions) (*Statistics, error)
}

// RasterClient computes zonal statistics, one mapping per AOI feature in
// feature order.
type RasterClient interface {
	ZonalStats(ctx context.Context, aoi *AOI, raster *Raster, req ZonalRequest) ([]map[string]float64, error)
}

// Predictor runs the building area model on one covariate row per hex cell.
type Predictor interface {
	Predict(ctx context.Context, covariates [][]float64) ([]float64, error)
}

// Renderer turns a figure into SVG markup.
type Renderer interface {
	Render(fig Figure) (string, error)
}

// AuxiliaryStore serves the reference geometries and covariates the building
// completeness model needs.
type AuxiliaryStore interface {
	// HexCells returns the hex cells intersecting the AOI. Every cell carries
	// its area in square kilometres in the "area" property.
	HexCells(ctx context.Context, aoi *AOI) (*AOI, error)
	// SHDI returns the subnational human development index per cell.
	SHDI(ctx context.Context, cells *AOI) ([]float64, error)
}
