package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oqt_service/internal/domain/model"
)

func monthly(start time.Time, values ...float64) []model.SeriesPoint {
	out := make([]model.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = model.SeriesPoint{Timestamp: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func TestTemporalAnalyzer_Saturation(t *testing.T) {
	a := TemporalAnalyzer{Months: 3}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	series := monthly(start, 10, 20, 40, 80, 90, 95, 100)

	// shuffled input is sorted by Prepare
	series[0], series[6] = series[6], series[0]

	data, err := a.Prepare(series)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, a.Saturation(data), 1e-9, "80 of 100 existed three months earlier")
	assert.InDelta(t, 20.0/3.0, a.TrendSlope(data), 1e-9)
}

func TestTemporalAnalyzer_DataGaps(t *testing.T) {
	a := TemporalAnalyzer{Months: 36}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := map[string][]model.SeriesPoint{
		"empty":     nil,
		"all zero":  monthly(start, make([]float64, 48)...),
		"all nan":   monthly(start, math.NaN(), math.NaN(), math.NaN()),
		"too short": monthly(start, 1, 2, 3, 4),
	}
	for name, series := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Prepare(series)
			assert.ErrorIs(t, err, ErrDataGap)
		})
	}
}
