package indicators

import (
	"context"
	"math"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var buildingsPlaceholders = []string{"pop_count", "area", "pop_count_per_sqkm", "feature_count_per_sqkm"}

var buildingsBands = core.Thresholds(1, 0.15)

// expectedBuildingDensity is the building count per sqkm expected for a
// population density.
func expectedBuildingDensity(popPerSqkm float64) float64 {
	return 5 * math.Sqrt(popPerSqkm)
}

// GhsPopComparisonBuildings relates the mapped building count to the
// population.
type GhsPopComparisonBuildings struct {
	core.Base
	popCount       float64
	area           float64
	popPerSqkm     float64
	countPerSqkm   float64
	expectedPerSqk float64
}

func (g *GhsPopComparisonBuildings) Preprocess(ctx context.Context) error {
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
	g.popPerSqkm = pop / area
	g.countPerSqkm = stats.Value / area
	g.expectedPerSqk = expectedBuildingDensity(g.popPerSqkm)
	return nil
}

func (g *GhsPopComparisonBuildings) Calculate() error {
	value := math.Min(g.countPerSqkm/g.expectedPerSqk, 1)
	return g.Classify(value, buildingsBands, map[string]string{
		"pop_count":              core.Num(g.popCount, 0),
		"area":                   core.Num(g.area, 1),
		"pop_count_per_sqkm":     core.Num(g.popPerSqkm, 1),
		"feature_count_per_sqkm": core.Num(g.countPerSqkm, 1),
	})
}

func (g *GhsPopComparisonBuildings) CreateFigure() error {
	maxX := math.Max(10, math.Ceil(g.popPerSqkm*2/10)*10)
	const steps = 50
	xs := make([]float64, 0, steps+1)
	green := make([]float64, 0, steps+1)
	yellow := make([]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		x := maxX * float64(i) / steps
		xs = append(xs, x)
		green = append(green, expectedBuildingDensity(x))
		yellow = append(yellow, expectedBuildingDensity(x)*0.15)
	}
	return g.Figure(model.Figure{
		Title:  "Buildings per sqkm against population density",
		XLabel: "Population density [1/sqkm]",
		YLabel: "Building density [1/sqkm]",
		Lines: []model.FigureLine{
			{Name: "Threshold A", X: xs, Y: green, Dashed: true},
			{Name: "Threshold B", X: xs, Y: yellow, Dashed: true},
		},
		Points: []model.FigurePoint{{Name: "AOI", X: g.popPerSqkm, Y: g.countPerSqkm}},
	})
}
