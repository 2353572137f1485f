// Package indicators holds the closed set of quality indicators.
package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

// Register adds every indicator implementation to reg.
func Register(reg *core.Registry) {
	reg.RegisterIndicator("Minimal", minimalPlaceholders,
		func(b core.Base) core.Indicator { return &Minimal{Base: b} })
	reg.RegisterIndicator("GhsPopComparisonRoads", roadsPlaceholders,
		func(b core.Base) core.Indicator { return &GhsPopComparisonRoads{Base: b} })
	reg.RegisterIndicator("GhsPopComparisonBuildings", buildingsPlaceholders,
		func(b core.Base) core.Indicator { return &GhsPopComparisonBuildings{Base: b} })
	reg.RegisterIndicator("MappingSaturation", saturationPlaceholders,
		func(b core.Base) core.Indicator { return &MappingSaturation{Base: b} })
	reg.RegisterIndicator("Currentness", currentnessPlaceholders,
		func(b core.Base) core.Indicator { return &Currentness{Base: b} })
	reg.RegisterIndicator("TagsRatio", tagsRatioPlaceholders,
		func(b core.Base) core.Indicator { return &TagsRatio{Base: b} })
	reg.RegisterIndicator("BuildingCompleteness", completenessPlaceholders,
		func(b core.Base) core.Indicator { return &BuildingCompleteness{Base: b} })
}

const populationRaster = "GHS_POP_R2019A"

// queryStatistics runs a statistics query for the indicator's layer. An empty
// answer is a data gap.
func queryStatistics(ctx context.Context, b *core.Base, aoi *model.AOI, opts model.QueryOptions) (*model.Statistics, error) {
	if b.Statistics == nil {
		return nil, fmt.Errorf("%w: no statistics client", core.ErrConfiguration)
	}
	layer := b.Layer()
	stats, err := b.Statistics.Query(ctx, &layer, aoi, opts)
	if errors.Is(err, model.ErrNoData) {
		return nil, core.DataGap("statistics query for %s returned no data", layer.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics for %s: %w", layer.Name, err)
	}
	return stats, nil
}

// zonalSums returns the per feature sum of a raster. Missing or NaN sums
// count as zero.
func zonalSums(ctx context.Context, b *core.Base, aoi *model.AOI, rasterName string) ([]float64, error) {
	if b.Raster == nil {
		return nil, fmt.Errorf("%w: no raster client", core.ErrConfiguration)
	}
	raster, err := b.RasterByName(rasterName)
	if err != nil {
		return nil, err
	}
	stats, err := b.Raster.ZonalStats(ctx, aoi, raster, model.ZonalRequest{Stats: []string{"sum"}})
	if err != nil {
		return nil, fmt.Errorf("failed to get zonal stats of %s: %w", rasterName, err)
	}
	if len(stats) != aoi.Len() {
		return nil, fmt.Errorf("zonal stats of %s returned %d rows for %d features", rasterName, len(stats), aoi.Len())
	}
	sums := make([]float64, len(stats))
	for i, s := range stats {
		sums[i] = finiteOrZero(s["sum"])
	}
	return sums, nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// population sums the population raster over the AOI together with the AOI
// area. Zero area or population is a data gap so no division by zero can
// follow.
func population(ctx context.Context, b *core.Base) (pop, area float64, err error) {
	area = b.AOI().AreaSqKm()
	if area <= 0 {
		return 0, 0, core.DataGap("AOI has no area")
	}
	sums, err := zonalSums(ctx, b, b.AOI(), populationRaster)
	if err != nil {
		return 0, 0, err
	}
	pop = sum(sums)
	if pop <= 0 {
		return 0, 0, core.DataGap("no population in AOI")
	}
	return pop, area, nil
}
