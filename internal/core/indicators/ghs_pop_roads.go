package indicators

import (
	"context"
	"math"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var roadsPlaceholders = []string{
	"pop_count", "area", "pop_count_per_sqkm", "feature_length_per_sqkm", "feature_length_per_pop",
}

// redThreshold is the road length per person below which roads are treated
// as missing, independent of density.
const redThreshold = 0.0001

// greenMinimum returns the road length in km per person above which the
// network counts as complete for the given population density.
func greenMinimum(popPerSqkm float64) float64 {
	switch {
	case popPerSqkm >= 2500:
		return 0.0004
	case popPerSqkm >= 500:
		return 0.0036
	case popPerSqkm >= 1:
		return 0.0051
	default:
		return 0.1010
	}
}

func roadBands(popPerSqkm float64) core.Bands {
	gmin := greenMinimum(popPerSqkm)
	return core.Bands{
		{Lower: gmin, Upper: math.Inf(1), Class: model.ClassGreen},
		{Lower: redThreshold, Upper: gmin, Class: model.ClassYellow},
		{Lower: 0, Upper: redThreshold, Class: model.ClassRed},
	}
}

// GhsPopComparisonRoads relates the mapped road length to the population.
type GhsPopComparisonRoads struct {
	core.Base
	popCount     float64
	area         float64
	lengthKm     float64
	popPerSqkm   float64
	lengthPerPop float64
}

func (g *GhsPopComparisonRoads) Preprocess(ctx context.Context) error {
	pop, area, err := population(ctx, &g.Base)
	if err != nil {
		return err
	}
	stats, err := queryStatistics(ctx, &g.Base, g.AOI(), model.QueryOptions{})
	if err != nil {
		return err
	}
	g.SetOSMTimestamp(stats.Timestamp)

	g.popCount = pop
	g.area = area
	g.lengthKm = stats.Value / 1000
	g.popPerSqkm = pop / area
	g.lengthPerPop = g.lengthKm / pop
	return nil
}

func (g *GhsPopComparisonRoads) Calculate() error {
	return g.Classify(g.lengthPerPop, roadBands(g.popPerSqkm), map[string]string{
		"pop_count":               core.Num(g.popCount, 0),
		"area":                    core.Num(g.area, 1),
		"pop_count_per_sqkm":      core.Num(g.popPerSqkm, 1),
		"feature_length_per_sqkm": core.Num(g.lengthKm/g.area, 1),
		"feature_length_per_pop":  core.Num(g.lengthPerPop, 4),
	})
}

func (g *GhsPopComparisonRoads) CreateFigure() error {
	maxX := 10.0
	if g.popPerSqkm >= 100 {
		maxX = math.Round(g.popPerSqkm*2/10) * 10
	}
	gmin := greenMinimum(g.popPerSqkm)
	top := math.Max(gmin*1.5, g.lengthPerPop*1.2)
	return g.Figure(model.Figure{
		Title:  "Road length per person against population density",
		XLabel: "Population density [1/sqkm]",
		YLabel: "Road length per person [km]",
		Bands: []model.FigureBand{
			{Lower: gmin, Upper: top, Label: model.LabelGreen},
			{Lower: redThreshold, Upper: gmin, Label: model.LabelYellow},
			{Lower: 0, Upper: redThreshold, Label: model.LabelRed},
		},
		Lines: []model.FigureLine{
			{Name: "Threshold A", X: []float64{0, maxX}, Y: []float64{gmin, gmin}, Dashed: true},
			{Name: "Threshold B", X: []float64{0, maxX}, Y: []float64{redThreshold, redThreshold}, Dashed: true},
		},
		Points: []model.FigurePoint{{Name: "AOI", X: g.popPerSqkm, Y: g.lengthPerPop}},
	})
}
