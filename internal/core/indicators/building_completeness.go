package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var completenessPlaceholders = []string{"building_area_osm", "building_area_prediction", "completeness_ratio"}

var completenessBands = core.Thresholds(0.8, 0.2)

// The prediction model was trained on African data only.
var africaBBox = [4]float64{-25.4, -47.1, 63.5, 37.6}

// smodClasses are the GHS settlement model classes, in covariate order.
var smodClasses = map[int]string{
	10: "water",
	11: "very_low_rural",
	12: "low_rural",
	13: "rural_cluster",
	21: "suburban",
	22: "semi_dense_urban",
	23: "dense_urban",
	30: "urban_centre",
}

var smodOrder = []int{10, 11, 12, 13, 21, 22, 23, 30}

// BuildingCompleteness compares the mapped building area with the area a
// regression model predicts from population, night lights, settlement class
// and human development, per hex cell.
type BuildingCompleteness struct {
	core.Base
	cells      *model.AOI
	osmArea    []float64
	prediction []float64
}

func (b *BuildingCompleteness) Preprocess(ctx context.Context) error {
	if !b.AOI().Within(africaBBox[0], africaBBox[1], africaBBox[2], africaBBox[3]) {
		return core.DataGap("AOI is outside of Africa")
	}
	if b.Aux == nil || b.Predictor == nil {
		return fmt.Errorf("%w: building completeness needs auxiliary data and a predictor", core.ErrConfiguration)
	}

	cells, err := b.Aux.HexCells(ctx, b.AOI())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("failed to get hex cells: %w", err)
	}
	if err != nil || cells == nil || cells.Len() == 0 {
		return core.DataGap("no hex cells intersect the AOI")
	}
	b.cells = cells

	stats, err := queryStatistics(ctx, &b.Base, cells, model.QueryOptions{GroupByBoundary: true})
	if err != nil {
		return err
	}
	b.SetOSMTimestamp(stats.Timestamp)
	b.osmArea = cellValues(cells, stats.Groups)

	covariates, err := b.covariates(ctx, cells)
	if err != nil {
		return err
	}
	prediction, err := b.Predictor.Predict(ctx, covariates)
	if err != nil {
		return fmt.Errorf("failed to predict building area: %w", err)
	}
	if len(prediction) != cells.Len() {
		return fmt.Errorf("%w: %d predictions for %d cells", core.ErrInvariantViolation, len(prediction), cells.Len())
	}
	for i, p := range prediction {
		prediction[i] = math.Max(finiteOrZero(p), 0)
	}
	if sum(prediction) == 0 {
		return core.DataGap("predicted building area is zero")
	}
	b.prediction = prediction
	return nil
}

// cellValues orders grouped statistics by cell and converts square metres to
// square kilometres. Cells without a group have no mapped area.
func cellValues(cells *model.AOI, groups []model.GroupStatistics) []float64 {
	byID := make(map[string]float64, len(groups))
	for _, g := range groups {
		byID[g.ID] = g.Value
	}
	values := make([]float64, cells.Len())
	for i, f := range cells.Features {
		values[i] = finiteOrZero(byID[f.ID]) / 1e6
	}
	return values
}

// covariates builds one model input row per cell: SHDI, night light sum,
// population sum, population density and the eight settlement class shares.
func (b *BuildingCompleteness) covariates(ctx context.Context, cells *model.AOI) ([][]float64, error) {
	pop, err := zonalSums(ctx, &b.Base, cells, populationRaster)
	if err != nil {
		return nil, err
	}
	vnl, err := zonalSums(ctx, &b.Base, cells, "VNL")
	if err != nil {
		return nil, err
	}
	smod, err := b.settlementShares(ctx, cells)
	if err != nil {
		return nil, err
	}
	shdi, err := b.Aux.SHDI(ctx, cells)
	if err != nil {
		return nil, fmt.Errorf("failed to get SHDI: %w", err)
	}
	if len(shdi) != cells.Len() {
		return nil, fmt.Errorf("%w: %d SHDI values for %d cells", core.ErrInvariantViolation, len(shdi), cells.Len())
	}

	rows := make([][]float64, cells.Len())
	for i, f := range cells.Features {
		area := floatProperty(f.Properties, "area")
		density := 0.0
		if area > 0 {
			density = pop[i] / area
		}
		row := []float64{finiteOrZero(shdi[i]), vnl[i], pop[i], density}
		rows[i] = append(row, smod[i]...)
	}
	return rows, nil
}

func (b *BuildingCompleteness) settlementShares(ctx context.Context, cells *model.AOI) ([][]float64, error) {
	raster, err := b.RasterByName("GHS_SMOD_R2019A")
	if err != nil {
		return nil, err
	}
	if b.Raster == nil {
		return nil, fmt.Errorf("%w: no raster client", core.ErrConfiguration)
	}
	counts, err := b.Raster.ZonalStats(ctx, cells, raster, model.ZonalRequest{
		Stats:       []string{"count"},
		Categorical: true,
		CategoryMap: smodClasses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement classes: %w", err)
	}
	if len(counts) != cells.Len() {
		return nil, fmt.Errorf("%w: %d settlement rows for %d cells", core.ErrInvariantViolation, len(counts), cells.Len())
	}
	shares := make([][]float64, len(counts))
	for i, c := range counts {
		total := finiteOrZero(c["count"])
		row := make([]float64, len(smodOrder))
		for j, class := range smodOrder {
			if total > 0 {
				row[j] = finiteOrZero(c[smodClasses[class]]) / total
			}
		}
		shares[i] = row
	}
	return shares, nil
}

func floatProperty(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// ratio is the prediction weighted mean of the per cell completeness, which
// reduces to the total mapped over the total predicted area.
func (b *BuildingCompleteness) ratio() float64 {
	var osm, predicted float64
	for i, p := range b.prediction {
		if p > 0 {
			osm += b.osmArea[i]
			predicted += p
		}
	}
	return osm / predicted
}

func (b *BuildingCompleteness) Calculate() error {
	value := b.ratio()
	return b.Classify(value, completenessBands, map[string]string{
		"building_area_osm":        core.Num(sum(b.osmArea), 2),
		"building_area_prediction": core.Num(sum(b.prediction), 2),
		"completeness_ratio":       core.Num(value*100, 1),
	})
}

// CreateFigure draws the distribution of per cell completeness, weighted by
// predicted area.
func (b *BuildingCompleteness) CreateFigure() error {
	const bins, width = 15, 0.1
	heights := make([]float64, bins)
	total := sum(b.prediction)
	for i, p := range b.prediction {
		if p <= 0 {
			continue
		}
		bin := int(math.Min(b.osmArea[i]/p/width, bins-1))
		heights[bin] += p / total
	}
	bars := make([]model.FigureBar, bins)
	for i := range bars {
		lower := float64(i) * width
		class, _ := completenessBands.Classify(lower)
		bars[i] = model.FigureBar{X0: lower, X1: lower + width, Height: heights[i], Label: class.Label()}
	}
	return b.Figure(model.Figure{
		Title:   "Building completeness per hex cell",
		XLabel:  "Completeness",
		YLabel:  "Share of predicted area",
		Bars:    bars,
		Markers: []model.FigureMarker{{Name: "AOI", X: b.ratio()}},
	})
}
