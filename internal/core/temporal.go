package core

import (
	"math"
	"slices"
	"time"

	"oqt_service/internal/domain/model"
)

// TemporalAnalyzer derives saturation measures from a monthly time series.
type TemporalAnalyzer struct {
	// Months is the look back window of the saturation measure.
	Months int
}

// Prepare sorts the series by time and drops NaN values. An empty, all zero
// or too short series is a data gap.
func (a *TemporalAnalyzer) Prepare(series []model.SeriesPoint) ([]model.SeriesPoint, error) {
	data := make([]model.SeriesPoint, 0, len(series))
	for _, p := range series {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			data = append(data, p)
		}
	}
	slices.SortFunc(data, func(x, y model.SeriesPoint) int {
		return x.Timestamp.Compare(y.Timestamp)
	})

	if len(data) < 2 {
		return nil, DataGap("time series has %d usable points", len(data))
	}
	if data[len(data)-1].Value <= 0 {
		return nil, DataGap("no features mapped at the end of the time series")
	}
	start, end := data[0].Timestamp, data[len(data)-1].Timestamp
	if start.After(end.AddDate(0, -a.Months, 0)) {
		return nil, DataGap("time series covers less than %d months", a.Months)
	}
	return data, nil
}

// Saturation returns the share of the final value that was already present
// Months before the end of the series. data must come from Prepare.
func (a *TemporalAnalyzer) Saturation(data []model.SeriesPoint) float64 {
	past, final := a.window(data)
	return past.Value / final.Value
}

// TrendSlope is the mean change per month over the last Months months.
func (a *TemporalAnalyzer) TrendSlope(data []model.SeriesPoint) float64 {
	past, final := a.window(data)
	months := monthsBetween(past.Timestamp, final.Timestamp)
	if months == 0 {
		return 0
	}
	return (final.Value - past.Value) / float64(months)
}

// window returns the last point at or before the look back cutoff and the
// final point.
func (a *TemporalAnalyzer) window(data []model.SeriesPoint) (past, final model.SeriesPoint) {
	final = data[len(data)-1]
	cutoff := final.Timestamp.AddDate(0, -a.Months, 0)
	past = data[0]
	for _, p := range data {
		if p.Timestamp.After(cutoff) {
			break
		}
		past = p
	}
	return past, final
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
