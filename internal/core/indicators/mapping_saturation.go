package indicators

import (
	"context"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var saturationPlaceholders = []string{"saturation", "months"}

var saturationBands = core.Thresholds(0.97, 0.3)

// seriesStart is the first month of the monthly contribution series.
const seriesStart = "2008-01-01//P1M"

// MappingSaturation measures how much of the currently mapped data already
// existed a few years ago. A flat curve means mapping has saturated.
type MappingSaturation struct {
	core.Base
	analyzer core.TemporalAnalyzer
	series   []model.SeriesPoint
}

func (m *MappingSaturation) Preprocess(ctx context.Context) error {
	stats, err := queryStatistics(ctx, &m.Base, m.AOI(), model.QueryOptions{Time: seriesStart})
	if err != nil {
		return err
	}
	m.analyzer = core.TemporalAnalyzer{Months: 36}
	data, err := m.analyzer.Prepare(stats.Series)
	if err != nil {
		return err
	}
	m.series = data
	last := data[len(data)-1].Timestamp
	m.SetOSMTimestamp(&last)
	return nil
}

func (m *MappingSaturation) Calculate() error {
	saturation := m.analyzer.Saturation(m.series)
	m.Log().Debug("saturation computed",
		"saturation", saturation, "trend_per_month", m.analyzer.TrendSlope(m.series))
	return m.Classify(saturation, saturationBands, map[string]string{
		"saturation": core.Num(saturation*100, 1),
		"months":     core.Num(float64(m.analyzer.Months), 0),
	})
}

func (m *MappingSaturation) CreateFigure() error {
	final := m.series[len(m.series)-1]
	xs := make([]float64, len(m.series))
	ys := make([]float64, len(m.series))
	for i, p := range m.series {
		xs[i] = float64(p.Timestamp.Year()) + float64(p.Timestamp.YearDay()-1)/365
		ys[i] = p.Value / final.Value
	}
	cutoff := final.Timestamp.AddDate(0, -m.analyzer.Months, 0)
	return m.Figure(model.Figure{
		Title:  "Mapping saturation",
		XLabel: "Year",
		YLabel: "Share of current features",
		Lines:  []model.FigureLine{{Name: "OSM contributions", X: xs, Y: ys}},
		Markers: []model.FigureMarker{{
			Name: "Look back",
			X:    float64(cutoff.Year()) + float64(cutoff.YearDay()-1)/365,
		}},
	})
}
